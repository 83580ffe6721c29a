package reconciler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/events"
	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// ImportRequest describes one statement file to import
type ImportRequest struct {
	AccountID string

	// StatementID is generated when empty
	StatementID string

	// Format is guessed from FileName when empty
	Format   models.StatementFormat
	FileName string

	// OpeningBalance seeds the running balance
	OpeningBalance decimal.Decimal

	// Mapping overrides the configured column mapping for delimited files
	Mapping *parsers.ImportConfig

	// Lenient skips malformed rows. Nil uses the service default.
	Lenient *bool
}

// Validate validates the import request
func (r *ImportRequest) Validate() error {
	if strings.TrimSpace(r.AccountID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "account_id", r.AccountID, nil).
			WithSuggestion("every statement belongs to an account")
	}
	if r.Mapping != nil {
		if err := r.Mapping.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "mapping", r.Mapping.Name, err)
		}
	}
	return nil
}

// ImportResult is a persisted statement together with what the import noticed
type ImportResult struct {
	Statement  *models.BankStatement    `json:"statement"`
	Items      []*models.StatementItem  `json:"items"`
	Stats      *parsers.ParseStats      `json:"stats"`
	Skipped    []*parsers.ParseError    `json:"skipped,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
	Duplicates []matcher.DuplicateGroup `json:"-"`
}

// Importer turns statement files into persisted statements and items
type Importer struct {
	store        storage.StatementRepository
	audit        *AuditLog
	publisher    events.Publisher
	preprocessor *DataPreprocessor
	mapping      *parsers.ImportConfig
	lenient      bool
	now          func() time.Time
	logger       logger.Logger
}

// NewImporter creates an importer. config supplies the default mapping,
// preprocessing and lenient mode.
func NewImporter(store storage.StatementRepository, audit *AuditLog, publisher events.Publisher, config *Config) *Importer {
	config = config.withDefaults()
	if publisher == nil {
		publisher = events.Discard
	}
	return &Importer{
		store:        store,
		audit:        audit,
		publisher:    publisher,
		preprocessor: NewDataPreprocessor(config.Preprocessing),
		mapping:      config.Import,
		lenient:      config.Lenient,
		now:          config.Clock,
		logger:       logger.GetGlobalLogger().WithComponent("importer"),
	}
}

// Import parses r and persists the statement and its items as one unit.
// By default any malformed row aborts the import and nothing is stored; a
// lenient request skips such rows and reports them in the result.
func (im *Importer) Import(ctx context.Context, r io.Reader, req *ImportRequest) (*ImportResult, error) {
	if req == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "import_request", nil, nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = parsers.FormatFromFilename(req.FileName)
	}
	mapping := req.Mapping
	if mapping == nil {
		mapping = im.mapping
	}
	lenient := im.lenient
	if req.Lenient != nil {
		lenient = *req.Lenient
	}

	log := im.logger.WithFields(logger.Fields{
		"account_id": req.AccountID,
		"file":       req.FileName,
		"format":     format,
	})
	log.Info("Importing statement")

	parser, err := parsers.New(format, mapping)
	if err != nil {
		return nil, err
	}
	parsed, err := parser.Parse(ctx, r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Stats: parsed.Stats}
	if parsed.Stats.HasErrors() {
		if !lenient {
			first := parsed.Stats.Errors[0]
			log.WithField("errors", parsed.Stats.ErrorCount).Warn("Import rejected because of malformed rows")
			return nil, first.ToReconcilerError(req.FileName).
				WithContext("error_count", parsed.Stats.ErrorCount).
				WithSuggestion("fix the row or import with lenient mode to skip malformed rows")
		}
		result.Skipped = parsed.Stats.Errors
		for _, perr := range parsed.Stats.Errors {
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipped line %d: %s", perr.Line, perr.Message))
		}
	}
	result.Warnings = append(result.Warnings, parsed.Stats.Warnings...)

	if len(parsed.Entries) == 0 {
		return nil, errors.ValidationError(errors.CodeEmptyStatement, "statement", req.FileName, nil).
			WithSuggestion("the file contains no statement rows")
	}

	entries := im.preprocessor.PreprocessEntries(parsed.Entries)

	stmt := &models.BankStatement{
		ID:             req.StatementID,
		AccountID:      req.AccountID,
		OpeningBalance: req.OpeningBalance,
		SourceFormat:   parser.Format(),
		FileName:       req.FileName,
		Status:         models.StatementImported,
		ImportedAt:     im.now().UTC(),
	}
	if stmt.ID == "" {
		stmt.ID = uuid.NewString()
	}

	items := buildItems(stmt.ID, entries)
	models.ApplyRunningBalances(stmt.OpeningBalance, items)
	stmt.Recalculate(items)

	result.Warnings = append(result.Warnings, balanceHintWarnings(entries)...)

	result.Duplicates = matcher.DetectDuplicates(items)
	for _, group := range result.Duplicates {
		result.Warnings = append(result.Warnings, fmt.Sprintf("possible duplicate: %s (confidence %.2f)", group.Reason, group.Confidence))
	}

	if err := im.store.CreateStatement(ctx, stmt, items); err != nil {
		return nil, err
	}
	result.Statement = stmt
	result.Items = items

	log.WithFields(logger.Fields{
		"statement_id":    stmt.ID,
		"items":           len(items),
		"skipped":         len(result.Skipped),
		"warnings":        len(result.Warnings),
		"closing_balance": stmt.ClosingBalance.StringFixed(2),
	}).Info("Statement imported")

	im.publisher.Publish(events.Event{
		Kind:        events.KindImported,
		StatementID: stmt.ID,
		Processed:   len(items),
		Total:       parsed.Stats.RecordsParsed,
		Message:     fmt.Sprintf("%d items imported from %s", len(items), req.FileName),
		Payload:     stmt,
	})

	if err := im.audit.Record(ctx, &models.ReconciliationAudit{
		StatementID: stmt.ID,
		Action:      models.AuditStatementImported,
		Description: fmt.Sprintf("%d items imported from %s", len(items), req.FileName),
		NewValue:    stmt.ClosingBalance.StringFixed(2),
	}); err != nil {
		return result, err
	}
	return result, nil
}

func buildItems(statementID string, entries []models.StatementEntry) []*models.StatementItem {
	items := make([]*models.StatementItem, len(entries))
	for i, e := range entries {
		items[i] = &models.StatementItem{
			ID:          uuid.NewString(),
			StatementID: statementID,
			Sequence:    i + 1,
			Date:        e.Date,
			Description: e.Description,
			Reference:   e.Reference,
			Amount:      e.Amount,
			Type:        e.Type,
			Status:      models.StatusUnmatched,
		}
	}
	return items
}

// balanceHintWarnings reports consecutive balance column values whose
// difference disagrees with the amount of the later row
func balanceHintWarnings(entries []models.StatementEntry) []string {
	var warnings []string
	var prev *decimal.Decimal
	for _, e := range entries {
		if e.BalanceHint == nil {
			prev = nil
			continue
		}
		if prev != nil {
			if moved := e.BalanceHint.Sub(*prev); !moved.Equal(e.Amount) {
				warnings = append(warnings, fmt.Sprintf("line %d: balance column moved by %s but amount is %s",
					e.Line, moved.StringFixed(2), e.Amount.StringFixed(2)))
			}
		}
		prev = e.BalanceHint
	}
	return warnings
}
