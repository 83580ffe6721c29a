package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// CLIErrorHandler turns command errors into messages and exit codes
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a handler writing to w
func NewCLIErrorHandler(w io.Writer, verbose bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		out:     w,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints err and returns the process exit code, 0 for nil
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := categoryHelp(err.Category); help != "" {
		fmt.Fprintf(h.out, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError covers errors raised outside the application packages,
// mostly cobra flag and argument errors
func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case os.IsNotExist(err):
		fmt.Fprintf(h.out, "Error: %v\n", err)
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case os.IsPermission(err):
		fmt.Fprintf(h.out, "Error: %v\n", err)
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")
	return 1
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the file exists and is readable
• Use an absolute path if the working directory is unclear`

	case errors.CategoryParse:
		return `Parse error help:
• Check the column mapping with --profile or --mapping
• Verify the date format and decimal separator of the export
• Use --lenient to skip malformed rows`

	case errors.CategoryValidation:
		return `Validation error help:
• Check the state of the statement, item or reconciliation involved
• Use 'reconciler status <statement-id>' to see where things stand`

	case errors.CategoryNotFound:
		return `Not found help:
• IDs are printed by import, status and the list commands
• Check that --db points at the database the data was imported into`

	case errors.CategoryConcurrency:
		return `Conflict help:
• The ledger transaction is already matched to another item
• Unmatch that item first or pick another candidate`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Verify the config file syntax if using --config
• Check RECONCILER_ environment variables
• Try running with default settings first`

	case errors.CategoryStorage:
		return `Storage error help:
• Check that the database file is writable and not locked by another process`
	}
	return ""
}

// FormatValidationErrors formats row or match errors for verbose output
func FormatValidationErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	if len(errs) == 1 {
		return fmt.Sprintf("Validation error: %v", errs[0])
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d validation errors:", len(errs)))

	var classified []*errors.ReconcilerError
	for i, err := range errs {
		if re, ok := errors.AsReconcilerError(err); ok {
			classified = append(classified, re)
		}
		if i < 10 {
			lines = append(lines, fmt.Sprintf("  %d. %v", i+1, err))
		}
	}
	if len(errs) > 10 {
		lines = append(lines, fmt.Sprintf("  ... and %d more errors", len(errs)-10))
	}

	if len(classified) > 1 {
		summary := errors.NewErrorSummary(classified)
		codes := make([]string, 0, len(summary.ByCode))
		for code, n := range summary.ByCode {
			codes = append(codes, fmt.Sprintf("%s: %d", code, n))
		}
		sort.Strings(codes)
		lines = append(lines, "By code: "+strings.Join(codes, ", "))
	}

	return strings.Join(lines, "\n")
}
