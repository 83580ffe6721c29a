package cmd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// importFlags are shared by import and reconcile run
type importFlags struct {
	account     string
	statementID string
	format      string
	opening     string
	lenient     bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.account, "account", "a", "", "account the statement belongs to (required)")
	cmd.Flags().StringVar(&f.statementID, "statement-id", "", "statement ID (generated when empty)")
	cmd.Flags().StringVar(&f.format, "format", "", "statement format: csv, ofx, qif (default: from file extension)")
	cmd.Flags().StringVar(&f.opening, "opening-balance", "0", "balance before the first statement line")
	cmd.Flags().BoolVar(&f.lenient, "lenient", false, "skip malformed rows instead of rejecting the file")
	cmd.Flags().String("profile", "", "built-in column mapping: "+strings.Join(parsers.ImportProfileNames(), ", "))
	cmd.Flags().String("mapping", "", "YAML column mapping file")
	_ = cmd.MarkFlagRequired("account")
}

// request builds an import request. Profile, mapping and lenient flags are
// applied to the configuration by apply.
func (f *importFlags) request(fileName string) (*reconciler.ImportRequest, error) {
	opening, err := decimal.NewFromString(f.opening)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "opening-balance", f.opening, err).
			WithSuggestion("use a plain decimal such as 1250.00")
	}
	return &reconciler.ImportRequest{
		AccountID:      f.account,
		StatementID:    f.statementID,
		Format:         models.StatementFormat(strings.ToLower(f.format)),
		FileName:       fileName,
		OpeningBalance: opening,
	}, nil
}

func (f *importFlags) apply(a *app, cmd *cobra.Command) {
	a.override(cmd, "profile", config.KeyImportProfile)
	a.override(cmd, "mapping", config.KeyImportMappingFile)
	a.override(cmd, "lenient", config.KeyImportLenient)
}

func newImportCommand(a *app) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a bank statement",
		Long: `Import parses a bank statement file and stores it with one item per line.
Running balances are computed from the opening balance.

Examples:
  reconciler import january.csv --account checking
  reconciler import january.csv --account checking --profile european --opening-balance 1200.50
  reconciler import export.txt --account savings --format csv --mapping mybank.yaml --lenient
  reconciler import february.ofx --account checking`,
		Args: cobra.ExactArgs(1),
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

			file, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			var res *reconciler.ImportResult
			err = logger.TimedOperation("statement import", a.logger, func() error {
				var importErr error
				res, importErr = service.Import(cmd.Context(), file, req)
				return importErr
			})
			if err != nil {
				return err
			}

			if a.v.GetBool(config.KeyVerbose) && len(res.Skipped) > 0 {
				skipped := make([]error, len(res.Skipped))
				for i, e := range res.Skipped {
					skipped[i] = e.ToReconcilerError(args[0])
				}
				fmt.Fprintln(cmd.ErrOrStderr(), FormatValidationErrors(skipped))
			}
			return a.render(cmd, res)
		},
	}
	flags.register(cmd)
	return cmd
}

func newLedgerCommand(a *app) *cobra.Command {
	ledger := &cobra.Command{
		Use:   "ledger",
		Short: "Manage general ledger transactions",
	}

	var account string
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a general ledger export",
		Long: `Import reads a CSV export of ledger transactions (id, account, date,
description, reference and amount or debit/credit columns) and stores it.
Existing transactions with the same ID are replaced.

Examples:
  reconciler ledger import ledger.csv
  reconciler ledger import checking.csv --account checking`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if account != "" {
				a.v.Set(config.KeyLedgerDefaultAccount, account)
			}
			service, err := a.loadService()
			if err != nil {
				return err
			}
			ledgerCfg, err := config.CreateLedgerConfig(a.v, a.fs)
			if err != nil {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "ledger", nil, err)
			}

			file, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			n, stats, err := service.ImportLedger(cmd.Context(), file, ledgerCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d ledger transactions from %s\n", n, args[0])
			if stats != nil && stats.ErrorCount > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d malformed rows\n", stats.ErrorCount)
			}
			return nil
		},
	}
	importCmd.Flags().StringVarP(&account, "account", "a", "", "account for rows without an account column")

	ledger.AddCommand(importCmd)
	return ledger
}

func newStatementCommand(a *app) *cobra.Command {
	statement := &cobra.Command{
		Use:   "statement",
		Short: "List and delete imported statements",
	}

	var account string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the statements of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			stmts, err := service.ListStatements(cmd.Context(), account)
			if err != nil {
				return err
			}
			if len(stmts) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No statements for account %s\n", account)
				return nil
			}
			for _, s := range stmts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s to %s  %4d items  closing %12s  %s\n",
					s.ID, s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"),
					s.ItemCount, s.ClosingBalance.StringFixed(2), s.Status)
			}
			return nil
		},
	}
	list.Flags().StringVarP(&account, "account", "a", "", "account ID (required)")
	_ = list.MarkFlagRequired("account")

	del := &cobra.Command{
		Use:   "delete <statement-id>",
		Short: "Delete a statement with its items and matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			if err := service.DeleteStatement(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted statement %s\n", args[0])
			return nil
		},
	}

	statement.AddCommand(list, del)
	return statement
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <statement-id>",
		Short: "Show the match status of a statement",
		Long: `Status reports item counts by match status, the items still needing
attention and, when a reconciliation is in progress, its discrepancy and
the open outstanding items.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.loadService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			stmt, items, err := service.GetStatement(ctx, args[0])
			if err != nil {
				return err
			}
			report := &reporter.StatementReport{
				Statement:   stmt,
				Items:       items,
				Summary:     reconciler.Summarize(stmt, items),
				GeneratedAt: service.Now(),
			}

			recs, err := service.Sessions().List(ctx, stmt.AccountID)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if rec.StatementID == stmt.ID {
					report.Reconciliation = rec
				}
			}
			if report.Reconciliation != nil && report.Reconciliation.Status == models.ReconciliationInProgress {
				if report.Discrepancy, err = service.Sessions().CalculateDiscrepancy(ctx, report.Reconciliation.ID); err != nil {
					return err
				}
				if report.Outstanding, err = service.Outstanding().ListOpen(ctx, stmt.AccountID); err != nil {
					return err
				}
			}
			return a.render(cmd, report)
		},
	}
}
