package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
)

func newReconcileCommand(a *app) *cobra.Command {
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Run month-end reconciliations",
		Long: `A reconciliation compares the closing balance of a statement with the
ledger balance of its account at the statement end date. Ledger
transactions not yet on any statement are tracked as outstanding items and
explain part of the difference; the remainder is the discrepancy.

Examples:
  reconciler reconcile start 5f0c...
  reconciler reconcile discrepancy 9a1e...
  reconciler reconcile complete 9a1e... --notes "bank fee booked in February"
  reconciler reconcile run january.csv --account checking --progress`,
	}

	reconcile.AddCommand(
		newReconcileStartCommand(a),
		newReconcileCompleteCommand(a),
		newReconcileSimpleCommand(a, "discrepancy", "Show the discrepancy of a reconciliation", false),
		newReconcileSimpleCommand(a, "refresh", "Recompute balances and outstanding items", true),
		newReconcileAbandonCommand(a),
		newReconcileListCommand(a),
		newReconcileRunCommand(a),
	)
	return reconcile
}

// renderReconciliation renders a reconciliation with its current discrepancy
func (a *app) renderReconciliation(cmd *cobra.Command, service *reconciler.Service, rec *models.BankReconciliation) error {
	disc, err := service.Sessions().CalculateDiscrepancy(cmd.Context(), rec.ID)
	if err != nil {
		return err
	}
	return a.render(cmd, &reporter.ReconciliationReport{Reconciliation: rec, Discrepancy: disc})
}

func newReconcileStartCommand(a *app) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "start <statement-id>",
		Short: "Start a reconciliation of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			rec, err := service.Sessions().Start(cmd.Context(), account, args[0])
			if err != nil {
				return err
			}
			return a.renderReconciliation(cmd, service, rec)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account ID (default: the statement's account)")
	return cmd
}

func newReconcileCompleteCommand(a *app) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "complete <reconciliation-id>",
		Short: "Complete a reconciliation",
		Long: `Complete marks the reconciliation and its statement as reconciled. A
non-zero discrepancy or unmatched items are logged as warnings and do not
block completion; record the explanation with --notes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			rec, err := service.Sessions().Complete(cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}
			return a.renderReconciliation(cmd, service, rec)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes stored with the reconciliation")
	return cmd
}

// newReconcileSimpleCommand builds discrepancy and refresh, which differ
// only in whether balances are recomputed first
func newReconcileSimpleCommand(a *app, use, short string, refresh bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <reconciliation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}

			var rec *models.BankReconciliation
			if refresh {
				rec, err = service.Sessions().Refresh(cmd.Context(), args[0])
			} else {
				rec, err = service.Sessions().Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return a.renderReconciliation(cmd, service, rec)
		},
	}
}

func newReconcileAbandonCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <reconciliation-id>",
		Short: "Discard an in-progress reconciliation",
		Long: `Abandon deletes an in-progress reconciliation so the statement can be
reconciled again. Matches and outstanding items are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			if err := service.Sessions().Abandon(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reconciliation %s abandoned\n", args[0])
			return nil
		},
	}
}

func newReconcileListCommand(a *app) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the reconciliations of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			recs, err := service.Sessions().List(cmd.Context(), account)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No reconciliations for account %s\n", account)
				return nil
			}
			for _, r := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  statement %s  %-11s  bank %12s  book %12s  %s\n",
					r.ID, r.StatementID, r.Status, r.BankBalance.StringFixed(2), r.BookBalance.StringFixed(2),
					r.StatementEndDate.Format("2006-01-02"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account ID (required)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newReconcileRunCommand(a *app) *cobra.Command {
	var (
		flags        importFlags
		noMatch      bool
		noStart      bool
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Import, auto-match and start reconciling a statement in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(a, cmd)
			service, err := a.loadService()
			if err != nil {
				return err
			}
			req, err := flags.request(args[0])
			if err != nil {
				return err
			}

			orchestrator, err := reconciler.NewReconciliationOrchestrator(service)
			if err != nil {
				return err
			}
			if showProgress {
				orchestrator.AddProgressCallback(func(progress *reconciler.ReconciliationProgress) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r[%d/%d] %s (%.1f%% complete)",
						progress.CompletedSteps, progress.TotalSteps,
						progress.CurrentStep, progress.PercentComplete)
				})
			}

			file, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			res, err := orchestrator.Process(cmd.Context(), file, &reconciler.ProcessRequest{
				Import:    *req,
				AutoMatch: !noMatch,
				Start:     !noMatch && !noStart,
			})
			if showProgress {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				if res != nil && res.Import != nil {
					a.logger.WithField("statement_id", res.Import.Statement.ID).
						Warn("Pipeline stopped after the statement was imported")
				}
				return err
			}
			return a.render(cmd, res)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&noMatch, "no-match", false, "only import the statement")
	cmd.Flags().BoolVar(&noStart, "no-start", false, "import and auto-match without starting a reconciliation")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")
	return cmd
}
