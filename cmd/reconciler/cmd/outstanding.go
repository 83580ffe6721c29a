package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
)

func newOutstandingCommand(a *app) *cobra.Command {
	outstanding := &cobra.Command{
		Use:   "outstanding",
		Short: "Track ledger transactions not yet on a bank statement",
		Long: `Outstanding items are deposits in transit and uncleared cheques recorded
when a reconciliation starts. They stay open until the bank clears them,
either by matching a later statement line or by hand.`,
	}

	list := func(use, short string, stale bool) *cobra.Command {
		var account string
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				service, err := a.loadService()
				if err != nil {
					return err
				}

				var items []*models.OutstandingItem
				if stale {
					items, err = service.Outstanding().GetStaleItems(cmd.Context(), account)
				} else {
					items, err = service.Outstanding().ListOpen(cmd.Context(), account)
				}
				if err != nil {
					return err
				}
				return a.render(cmd, &reporter.OutstandingReport{Items: items, AsOf: service.Now()})
			},
		}
		cmd.Flags().StringVarP(&account, "account", "a", "", "account ID (required)")
		_ = cmd.MarkFlagRequired("account")
		return cmd
	}

	var date string
	clearCmd := &cobra.Command{
		Use:   "clear <outstanding-id>",
		Short: "Mark an outstanding item as cleared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}

			cleared := service.Now()
			if date != "" {
				if cleared, err = time.Parse("2006-01-02", date); err != nil {
					return errors.ValidationError(errors.CodeInvalidDate, "date", date, err).
						WithSuggestion("use the YYYY-MM-DD format")
				}
			}

			item, err := service.Outstanding().MarkCleared(cmd.Context(), args[0], cleared)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Outstanding item %s cleared on %s\n",
				item.ID, cleared.Format("2006-01-02"))
			return nil
		},
	}
	clearCmd.Flags().StringVar(&date, "date", "", "cleared date as YYYY-MM-DD (default: today)")

	outstanding.AddCommand(
		list("list", "List open outstanding items of an account", false),
		list("stale", "List outstanding items older than outstanding.stale_after_days", true),
		clearCmd,
	)
	return outstanding
}

func newAuditCommand(a *app) *cobra.Command {
	var filter storage.AuditFilter

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		Long: `Audit lists recorded actions oldest first: imports, matches, exclusions,
reconciliation steps and cleared outstanding items.

Examples:
  reconciler audit --statement 5f0c...
  reconciler audit --reconciliation 9a1e... -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			entries, err := service.Audit().List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return a.render(cmd, entries)
		},
	}
	cmd.Flags().StringVar(&filter.StatementID, "statement", "", "only entries for this statement")
	cmd.Flags().StringVar(&filter.ReconciliationID, "reconciliation", "", "only entries for this reconciliation")
	return cmd
}
