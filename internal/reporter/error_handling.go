package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// OutstandingReport pairs outstanding items with the date their age is
// measured against
type OutstandingReport struct {
	Items []*models.OutstandingItem
	AsOf  time.Time
}

// CandidateReport pairs a statement item with its ranked candidates
type CandidateReport struct {
	Item       *models.StatementItem
	Candidates []*models.MatchCandidate
}

// ReconciliationReport pairs a reconciliation with its discrepancy
type ReconciliationReport struct {
	Reconciliation *models.BankReconciliation
	Discrepancy    *reconciler.Discrepancy
}

// SafeReportGenerator wraps ReportGenerator with input validation, logging
// and fallbacks for failed output
type SafeReportGenerator struct {
	*ReportGenerator
	fs     afero.Fs
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator. Backup files
// for failed file output are created on fs.
func NewSafeReportGenerator(config *ReportConfig, fs afero.Fs, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		fs:              fs,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes any supported report value with error handling
// and fallbacks. Supported values are *StatementReport, *CandidateReport,
// *ReconciliationReport, *OutstandingReport, *matcher.RunResult,
// *reconciler.ImportResult, *reconciler.ProcessResult and
// []*models.ReconciliationAudit.
func (srg *SafeReportGenerator) GenerateReportSafely(result interface{}, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"report": reportKind(result),
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.generateWithFallback(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.Debug("Report generation completed successfully")
	return nil
}

// render dispatches a report value to the generator method for its type
func render(rg *ReportGenerator, result interface{}, writer io.Writer) error {
	switch r := result.(type) {
	case *StatementReport:
		return rg.GenerateReport(r, writer)
	case *CandidateReport:
		return rg.WriteCandidates(r.Item, r.Candidates, writer)
	case *ReconciliationReport:
		return rg.WriteReconciliation(r.Reconciliation, r.Discrepancy, writer)
	case *OutstandingReport:
		return rg.WriteOutstanding(r.Items, r.AsOf, writer)
	case *matcher.RunResult:
		return rg.WriteRunResult(r, writer)
	case *reconciler.ImportResult:
		return rg.WriteImportResult(r, writer)
	case *reconciler.ProcessResult:
		return rg.WriteProcessResult(r, writer)
	case []*models.ReconciliationAudit:
		return rg.WriteAudit(r, writer)
	default:
		return errors.ValidationError(
			errors.CodeOutOfRange,
			"result_type",
			fmt.Sprintf("%T", result),
			nil,
		).WithSuggestion("Provide a supported report value")
	}
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result interface{}, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("Provide a report value")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("Provide a valid output writer")
	}

	return nil
}

// generateWithFallback attempts to generate the report with fallback strategies
func (srg *SafeReportGenerator) generateWithFallback(result interface{}, writer io.Writer) error {
	err := render(srg.ReportGenerator, result, writer)
	if err == nil {
		return nil
	}
	if errors.IsValidation(err) {
		return err
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if srg.shouldAttemptOutputFallback(err, writer) {
		return srg.generateWithOutputFallback(result, writer, err)
	}

	if srg.shouldAttemptFormatFallback(err) {
		return srg.generateWithFormatFallback(result, writer, err)
	}

	return srg.wrapGenerationError(err)
}

// shouldAttemptFormatFallback determines if a format fallback should be attempted
func (srg *SafeReportGenerator) shouldAttemptFormatFallback(err error) bool {
	return srg.config.Format != FormatConsole
}

// generateWithFormatFallback attempts to generate with a fallback format
func (srg *SafeReportGenerator) generateWithFormatFallback(result interface{}, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := render(fallbackGenerator, result, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.Info("Report generated successfully using format fallback")
	return nil
}

// shouldAttemptOutputFallback determines if an output fallback should be attempted
func (srg *SafeReportGenerator) shouldAttemptOutputFallback(err error, writer io.Writer) bool {
	if file, ok := writer.(afero.File); ok && file.Name() != "" {
		return isFileError(err)
	}
	return false
}

// generateWithOutputFallback writes the report next to the original file
func (srg *SafeReportGenerator) generateWithOutputFallback(result interface{}, writer io.Writer, originalErr error) error {
	file, ok := writer.(afero.File)
	if !ok {
		return srg.wrapGenerationError(originalErr)
	}

	originalPath := file.Name()
	backupPath := generateBackupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	backupFile, err := srg.fs.Create(backupPath)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}
	defer backupFile.Close()

	fmt.Fprintf(backupFile, "NOTE: Report saved to backup location due to error with original output\n")
	fmt.Fprintf(backupFile, "Original file: %s\n", originalPath)
	fmt.Fprintf(backupFile, "Original error: %v\n\n", originalErr)

	if err := render(srg.ReportGenerator, result, backupFile); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	srg.logger.WithField("backup_file", backupPath).Warn("Could not write report to the requested file, saved a backup")
	return nil
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

// generateBackupPath creates a backup file path
func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case afero.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

// isFileError checks if the error is file-related
func isFileError(err error) bool {
	if err == nil {
		return false
	}
	if os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "file already closed") ||
		strings.Contains(msg, "file is closed") ||
		strings.Contains(msg, "bad file descriptor")
}
