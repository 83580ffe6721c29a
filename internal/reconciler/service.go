package reconciler

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"golang-bank-reconciliation/internal/events"
	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// Matching thresholds used by the auto-matcher and candidate lists
	Matching *matcher.MatchingConfig

	// Import is the default column mapping for delimited statements
	Import *parsers.ImportConfig

	// Preprocessing normalizes parsed entries before they become items
	Preprocessing *PreprocessingConfig

	// StaleAfterDays flags open outstanding items older than this
	StaleAfterDays int

	// Lenient skips malformed statement rows instead of rejecting the file
	Lenient bool

	// Clock stamps reconciliations, audit entries and outstanding items
	Clock func() time.Time `json:"-"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matching:       matcher.DefaultMatchingConfig(),
		Import:         parsers.DefaultImportConfig(),
		Preprocessing:  DefaultPreprocessingConfig(),
		StaleAfterDays: 30,
		Lenient:        false,
		Clock:          time.Now,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StaleAfterDays < 0 {
		return fmt.Errorf("stale-after days cannot be negative, got %d", c.StaleAfterDays)
	}
	if c.Matching != nil {
		if err := c.Matching.Validate(); err != nil {
			return fmt.Errorf("matching: %w", err)
		}
	}
	if c.Import != nil {
		if err := c.Import.Validate(); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	return nil
}

// withDefaults fills unset fields from DefaultConfig
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Matching == nil {
		out.Matching = def.Matching
	}
	if out.Import == nil {
		out.Import = def.Import
	}
	if out.Preprocessing == nil {
		out.Preprocessing = def.Preprocessing
	}
	if out.Clock == nil {
		out.Clock = def.Clock
	}
	return &out
}

// Service wires the importer, matcher, reconciliation sessions, outstanding
// tracking and the audit log around one repository
type Service struct {
	store       storage.Repository
	config      *Config
	importer    *Importer
	matcher     *matcher.AutoMatcher
	sessions    *SessionManager
	outstanding *OutstandingTracker
	audit       *AuditLog
	publisher   events.Publisher
	logger      logger.Logger
}

// NewService creates a reconciliation service. A nil config uses
// DefaultConfig and a nil publisher discards events.
func NewService(store storage.Repository, config *Config, publisher events.Publisher) (*Service, error) {
	if store == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("Provide a storage implementation")
	}

	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}
	if publisher == nil {
		publisher = events.Discard
	}

	am, err := matcher.NewAutoMatcher(store, config.Matching, publisher)
	if err != nil {
		return nil, err
	}
	am.SetClock(config.Clock)

	audit := NewAuditLog(store, config.Clock)
	outstanding := NewOutstandingTracker(store, audit, config.StaleAfterDays, config.Clock)

	s := &Service{
		store:       store,
		config:      config,
		importer:    NewImporter(store, audit, publisher, config),
		matcher:     am,
		sessions:    NewSessionManager(store, outstanding, audit, publisher, config.Clock),
		outstanding: outstanding,
		audit:       audit,
		publisher:   publisher,
		logger:      logger.GetGlobalLogger().WithComponent("reconciliation_service"),
	}
	am.AddListener(&matchListener{service: s})

	return s, nil
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Matcher returns the auto-matcher
func (s *Service) Matcher() *matcher.AutoMatcher {
	return s.matcher
}

// Sessions returns the reconciliation session manager
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Outstanding returns the outstanding item tracker
func (s *Service) Outstanding() *OutstandingTracker {
	return s.outstanding
}

// Audit returns the audit log
func (s *Service) Audit() *AuditLog {
	return s.audit
}

// Import parses r and persists the statement. A nil mapping in req uses the
// configured default mapping.
func (s *Service) Import(ctx context.Context, r io.Reader, req *ImportRequest) (*ImportResult, error) {
	return s.importer.Import(ctx, r, req)
}

// ImportLedger reads a ledger export and stores its transactions
func (s *Service) ImportLedger(ctx context.Context, r io.Reader, config *parsers.LedgerParserConfig) (int, *parsers.ParseStats, error) {
	txns, stats, err := parsers.NewLedgerParser(config).Parse(ctx, r)
	if err != nil {
		return 0, stats, err
	}
	if err := s.store.SaveTransactions(ctx, txns); err != nil {
		return 0, stats, err
	}

	s.logger.WithFields(logger.Fields{
		"transactions": len(txns),
		"errors":       stats.ErrorCount,
	}).Info("Ledger transactions imported")
	return len(txns), stats, nil
}

// GetStatement returns a statement and its items in sequence order
func (s *Service) GetStatement(ctx context.Context, id string) (*models.BankStatement, []*models.StatementItem, error) {
	stmt, err := s.store.GetStatement(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.ListItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return stmt, items, nil
}

// GetItem returns one statement item
func (s *Service) GetItem(ctx context.Context, id string) (*models.StatementItem, error) {
	return s.store.GetItem(ctx, id)
}

// ListStatements returns the statements of an account in import order
func (s *Service) ListStatements(ctx context.Context, accountID string) ([]*models.BankStatement, error) {
	return s.store.ListStatements(ctx, accountID)
}

// Now returns the current time of the configured clock
func (s *Service) Now() time.Time {
	return s.config.Clock()
}

// DeleteStatement removes a statement, its items and their match results.
// Statements under an in-progress reconciliation cannot be deleted.
func (s *Service) DeleteStatement(ctx context.Context, id string) error {
	stmt, err := s.store.GetStatement(ctx, id)
	if err != nil {
		return err
	}

	active, err := s.store.FindActiveReconciliation(ctx, id)
	switch {
	case err == nil:
		return errors.InvalidStateError("bank statement", id, "under reconciliation "+active.ID, "not under reconciliation").
			WithSuggestion("complete or abandon the reconciliation first")
	case !errors.IsNotFound(err):
		return err
	}

	if err := s.store.DeleteStatement(ctx, id); err != nil {
		return err
	}

	s.logger.WithField("statement_id", id).Info("Statement deleted")
	return s.audit.Record(ctx, &models.ReconciliationAudit{
		StatementID:   id,
		Action:        models.AuditStatementDeleted,
		Description:   fmt.Sprintf("statement %s of account %s deleted", id, stmt.AccountID),
		PreviousValue: fmt.Sprintf("%d items", stmt.ItemCount),
	})
}

// AutoMatch runs the auto-matcher over a statement
func (s *Service) AutoMatch(ctx context.Context, statementID string) (*matcher.RunResult, error) {
	return s.matcher.Run(ctx, statementID)
}

// Candidates lists ranked ledger candidates for an item
func (s *Service) Candidates(ctx context.Context, itemID string) ([]*models.MatchCandidate, error) {
	return s.matcher.Candidates(ctx, itemID)
}

// ManualMatch links an item to a ledger transaction chosen by an operator
func (s *Service) ManualMatch(ctx context.Context, itemID, transactionID string) (*models.MatchResult, error) {
	return s.matcher.ManualMatch(ctx, itemID, transactionID)
}

// Exclude marks an item as not needing a ledger counterpart
func (s *Service) Exclude(ctx context.Context, itemID, reason string) (*models.StatementItem, error) {
	return s.matcher.Exclude(ctx, itemID, reason)
}

// Unmatch returns an item to UNMATCHED
func (s *Service) Unmatch(ctx context.Context, itemID string) (*models.StatementItem, error) {
	return s.matcher.Unmatch(ctx, itemID)
}

// StatusSummary counts the items of a statement by match status
func (s *Service) StatusSummary(ctx context.Context, statementID string) (*StatusSummary, error) {
	stmt, items, err := s.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	return Summarize(stmt, items), nil
}

// activeReconciliationID returns the in-progress reconciliation of a
// statement, or "" when there is none
func (s *Service) activeReconciliationID(ctx context.Context, statementID string) string {
	rec, err := s.store.FindActiveReconciliation(ctx, statementID)
	if err != nil {
		return ""
	}
	return rec.ID
}

// matchListener keeps outstanding items and the audit log in step with
// item state changes made by the matcher
type matchListener struct {
	service *Service
}

func (l *matchListener) MatchCommitted(ctx context.Context, stmt *models.BankStatement, item *models.StatementItem, res *models.MatchResult) error {
	s := l.service

	var errs error
	if _, err := s.outstanding.MarkClearedByTransaction(ctx, res.TransactionID, item.Date); err != nil {
		errs = multierr.Append(errs, err)
	}

	action := models.AuditAutoMatched
	if res.Method == models.MatchMethodManual {
		action = models.AuditManualMatched
	}
	errs = multierr.Append(errs, s.audit.Record(ctx, &models.ReconciliationAudit{
		ReconciliationID: s.activeReconciliationID(ctx, stmt.ID),
		StatementID:      stmt.ID,
		Action:           action,
		Description:      fmt.Sprintf("item %s matched to ledger transaction %s with score %d", item.ID, res.TransactionID, res.Score),
		PreviousValue:    string(models.StatusUnmatched),
		NewValue:         string(item.Status),
	}))
	return errs
}

func (l *matchListener) StatusChanged(ctx context.Context, stmt *models.BankStatement, item *models.StatementItem, previous models.MatchStatus) error {
	s := l.service

	action := models.AuditItemUnmatched
	description := fmt.Sprintf("item %s returned to %s", item.ID, item.Status)
	if item.Status == models.StatusExcluded {
		action = models.AuditItemExcluded
		description = fmt.Sprintf("item %s excluded: %s", item.ID, item.ExcludeReason)
	}

	return s.audit.Record(ctx, &models.ReconciliationAudit{
		ReconciliationID: s.activeReconciliationID(ctx, stmt.ID),
		StatementID:      stmt.ID,
		Action:           action,
		Description:      description,
		PreviousValue:    string(previous),
		NewValue:         string(item.Status),
	})
}
