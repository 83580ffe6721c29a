package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/events"
	"golang-bank-reconciliation/internal/reporter"
)

func newAutoMatchCommand(a *app) *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "automatch <statement-id>",
		Short: "Match the unmatched items of a statement against the ledger",
		Long: `Automatch scores every unmatched item against ledger transactions of the
same account dated within the candidate window and commits the best
candidate when it reaches the auto-match threshold. A ledger transaction is
never matched to two items.

Examples:
  reconciler automatch 5f0c...
  reconciler automatch 5f0c... --progress
  RECONCILER_MATCHING_AUTO_MATCH_THRESHOLD=90 reconciler automatch 5f0c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}

			if showProgress {
				unsubscribe := a.bus.Subscribe(func(e events.Event) {
					if e.Kind == events.KindProgress && e.Total > 0 {
						fmt.Fprintf(cmd.ErrOrStderr(), "\r[%d/%d] matching items", e.Processed, e.Total)
					}
				})
				defer unsubscribe()
			}

			run, err := service.AutoMatch(cmd.Context(), args[0])
			if showProgress {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}

			if a.v.GetBool(config.KeyVerbose) {
				if errs := multierr.Errors(run.Err); len(errs) > 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), FormatValidationErrors(errs))
				}
			}
			return a.render(cmd, run)
		},
	}
	cmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")
	return cmd
}

func newCandidatesCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "candidates <item-id>",
		Short: "List ranked ledger candidates for a statement item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.override(cmd, "limit", config.KeyMaxCandidates)
			service, err := a.loadService()
			if err != nil {
				return err
			}

			item, err := service.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cands, err := service.Candidates(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			return a.render(cmd, &reporter.CandidateReport{Item: item, Candidates: cands})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many candidates (0: all)")
	return cmd
}

func newMatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "match <item-id> <transaction-id>",
		Short: "Match a statement item to a ledger transaction by hand",
		Long: `Match links an unmatched item to the given ledger transaction regardless
of its score. It fails when the transaction is already matched to another
item.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			res, err := service.ManualMatch(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item %s matched to ledger transaction %s (score %d)\n",
				res.ItemID, res.TransactionID, res.Score)
			return nil
		},
	}
}

func newExcludeCommand(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "exclude <item-id>",
		Short: "Exclude a statement item from matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			item, err := service.Exclude(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item %s excluded\n", item.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the item needs no ledger counterpart")
	return cmd
}

func newUnmatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unmatch <item-id>",
		Short: "Return a matched or excluded item to unmatched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			item, err := service.Unmatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item %s is %s\n", item.ID, item.Status)
			return nil
		},
	}
}
