package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/events"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

type sessionStore interface {
	storage.LedgerReader
	storage.StatementRepository
	storage.ReconciliationRepository
}

// Discrepancy is the unexplained difference of a reconciliation:
// bank balance − book balance − outstanding adjustment.
//
// The outstanding adjustment is what the bank has yet to post for open
// outstanding items, the negated sum of their ledger amounts: an uncashed
// cheque of -100 is a +100 adjustment.
type Discrepancy struct {
	ReconciliationID      string          `json:"reconciliationId"`
	BankBalance           decimal.Decimal `json:"bankBalance"`
	BookBalance           decimal.Decimal `json:"bookBalance"`
	OutstandingAdjustment decimal.Decimal `json:"outstandingAdjustment"`
	OutstandingCount      int             `json:"outstandingCount"`
	Amount                decimal.Decimal `json:"amount"`
}

// IsZero reports whether the reconciliation balances
func (d *Discrepancy) IsZero() bool {
	return d.Amount.IsZero()
}

// SessionManager owns the lifecycle of reconciliation sessions:
// IN_PROGRESS on Start, RECONCILED on Complete, never reopened
type SessionManager struct {
	store       sessionStore
	outstanding *OutstandingTracker
	audit       *AuditLog
	publisher   events.Publisher
	now         func() time.Time
	logger      logger.Logger
}

// NewSessionManager creates a session manager
func NewSessionManager(store sessionStore, outstanding *OutstandingTracker, audit *AuditLog,
	publisher events.Publisher, now func() time.Time) *SessionManager {
	if publisher == nil {
		publisher = events.Discard
	}
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		store:       store,
		outstanding: outstanding,
		audit:       audit,
		publisher:   publisher,
		now:         now,
		logger:      logger.GetGlobalLogger().WithComponent("reconciliation_session"),
	}
}

// Start opens a reconciliation of accountID against a statement. The book
// balance is the ledger activity of the account up to the statement end
// date; the bank balance is the statement closing balance. Ledger
// transactions without a matched statement item are recorded as
// outstanding.
func (sm *SessionManager) Start(ctx context.Context, accountID, statementID string) (*models.BankReconciliation, error) {
	stmt, err := sm.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		accountID = stmt.AccountID
	}
	if stmt.AccountID != accountID {
		return nil, errors.New(errors.CategoryValidation, errors.CodeOutOfRange,
			fmt.Sprintf("statement %s belongs to account %s, not %s", stmt.ID, stmt.AccountID, accountID))
	}
	if stmt.Status == models.StatementReconciled {
		return nil, errors.InvalidStateError("bank statement", stmt.ID, string(stmt.Status), string(models.StatementImported))
	}

	active, err := sm.store.FindActiveReconciliation(ctx, statementID)
	if err == nil {
		return nil, errors.ValidationError(errors.CodeDuplicate, "reconciliation", active.ID, nil).
			WithSuggestion("complete or abandon the reconciliation in progress first")
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	book, err := sm.bookBalance(ctx, accountID, stmt.EndDate)
	if err != nil {
		return nil, err
	}

	rec := &models.BankReconciliation{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		StatementID:      statementID,
		Status:           models.ReconciliationInProgress,
		BookBalance:      book,
		BankBalance:      stmt.ClosingBalance,
		StatementEndDate: stmt.EndDate,
		StartedAt:        sm.now().UTC(),
	}
	if err := sm.store.CreateReconciliation(ctx, rec); err != nil {
		return nil, err
	}

	if _, err := sm.outstanding.Record(ctx, accountID, stmt.EndDate, rec.ID); err != nil {
		return nil, err
	}

	sm.logger.WithFields(logger.Fields{
		"reconciliation_id": rec.ID,
		"statement_id":      statementID,
		"book_balance":      book.StringFixed(2),
		"bank_balance":      rec.BankBalance.StringFixed(2),
	}).Info("Reconciliation started")

	if err := sm.audit.Record(ctx, &models.ReconciliationAudit{
		ReconciliationID: rec.ID,
		StatementID:      statementID,
		Action:           models.AuditReconcileStarted,
		Description:      fmt.Sprintf("reconciliation of account %s started", accountID),
		NewValue:         string(rec.Status),
	}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns a reconciliation by ID
func (sm *SessionManager) Get(ctx context.Context, id string) (*models.BankReconciliation, error) {
	return sm.store.GetReconciliation(ctx, id)
}

// List returns the reconciliations of an account
func (sm *SessionManager) List(ctx context.Context, accountID string) ([]*models.BankReconciliation, error) {
	return sm.store.ListReconciliations(ctx, accountID)
}

// Refresh recomputes both balances of an in-progress reconciliation and
// records transactions that became outstanding since it started
func (sm *SessionManager) Refresh(ctx context.Context, id string) (*models.BankReconciliation, error) {
	rec, err := sm.inProgress(ctx, id)
	if err != nil {
		return nil, err
	}
	stmt, err := sm.store.GetStatement(ctx, rec.StatementID)
	if err != nil {
		return nil, err
	}

	previous := fmt.Sprintf("book=%s bank=%s", rec.BookBalance.StringFixed(2), rec.BankBalance.StringFixed(2))

	if rec.BookBalance, err = sm.bookBalance(ctx, rec.AccountID, stmt.EndDate); err != nil {
		return nil, err
	}
	rec.BankBalance = stmt.ClosingBalance
	rec.StatementEndDate = stmt.EndDate
	if err := sm.store.UpdateReconciliation(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := sm.outstanding.Record(ctx, rec.AccountID, stmt.EndDate, rec.ID); err != nil {
		return nil, err
	}

	if err := sm.audit.Record(ctx, &models.ReconciliationAudit{
		ReconciliationID: rec.ID,
		StatementID:      rec.StatementID,
		Action:           models.AuditReconcileRefreshed,
		Description:      "balances recomputed",
		PreviousValue:    previous,
		NewValue:         fmt.Sprintf("book=%s bank=%s", rec.BookBalance.StringFixed(2), rec.BankBalance.StringFixed(2)),
	}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Complete closes an in-progress reconciliation with notes and marks its
// statement RECONCILED. A non-zero discrepancy is accepted and logged.
func (sm *SessionManager) Complete(ctx context.Context, id, notes string) (*models.BankReconciliation, error) {
	rec, err := sm.inProgress(ctx, id)
	if err != nil {
		return nil, err
	}

	disc, err := sm.discrepancy(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !disc.IsZero() {
		sm.logger.WithFields(logger.Fields{
			"reconciliation_id": rec.ID,
			"discrepancy":       disc.Amount.StringFixed(2),
		}).Warn("Completing reconciliation with a non-zero discrepancy")
	}

	completed := sm.now().UTC()
	rec.Status = models.ReconciliationCompleted
	rec.Notes = notes
	rec.CompletedAt = &completed
	if err := sm.store.UpdateReconciliation(ctx, rec); err != nil {
		return nil, err
	}

	stmt, err := sm.store.GetStatement(ctx, rec.StatementID)
	if err != nil {
		return nil, err
	}
	stmt.Status = models.StatementReconciled
	if err := sm.store.UpdateStatement(ctx, stmt); err != nil {
		return nil, err
	}

	sm.logger.WithField("reconciliation_id", rec.ID).Info("Reconciliation completed")
	sm.publisher.Publish(events.Event{
		Kind:        events.KindReconciled,
		StatementID: rec.StatementID,
		Message:     fmt.Sprintf("reconciliation %s completed with discrepancy %s", rec.ID, disc.Amount.StringFixed(2)),
		Payload:     rec,
	})

	if err := sm.audit.Record(ctx, &models.ReconciliationAudit{
		ReconciliationID: rec.ID,
		StatementID:      rec.StatementID,
		Action:           models.AuditReconcileCompleted,
		Description:      fmt.Sprintf("completed with discrepancy %s", disc.Amount.StringFixed(2)),
		PreviousValue:    string(models.ReconciliationInProgress),
		NewValue:         string(rec.Status),
	}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Abandon discards an in-progress reconciliation. Committed matches and
// recorded outstanding items are kept.
func (sm *SessionManager) Abandon(ctx context.Context, id string) error {
	rec, err := sm.inProgress(ctx, id)
	if err != nil {
		return err
	}
	if err := sm.store.DeleteReconciliation(ctx, rec.ID); err != nil {
		return err
	}

	sm.logger.WithField("reconciliation_id", rec.ID).Info("Reconciliation abandoned")
	return sm.audit.Record(ctx, &models.ReconciliationAudit{
		ReconciliationID: rec.ID,
		StatementID:      rec.StatementID,
		Action:           models.AuditReconcileAbandoned,
		Description:      "reconciliation abandoned",
		PreviousValue:    string(models.ReconciliationInProgress),
	})
}

// CalculateDiscrepancy derives the discrepancy of a reconciliation without
// changing any state
func (sm *SessionManager) CalculateDiscrepancy(ctx context.Context, id string) (*Discrepancy, error) {
	rec, err := sm.store.GetReconciliation(ctx, id)
	if err != nil {
		return nil, err
	}
	return sm.discrepancy(ctx, rec)
}

func (sm *SessionManager) discrepancy(ctx context.Context, rec *models.BankReconciliation) (*Discrepancy, error) {
	total, count, err := sm.outstanding.OpenTotal(ctx, rec.AccountID, rec.StatementEndDate)
	if err != nil {
		return nil, err
	}
	adjustment := total.Neg()
	return &Discrepancy{
		ReconciliationID:      rec.ID,
		BankBalance:           rec.BankBalance,
		BookBalance:           rec.BookBalance,
		OutstandingAdjustment: adjustment,
		OutstandingCount:      count,
		Amount:                rec.BankBalance.Sub(rec.BookBalance).Sub(adjustment),
	}, nil
}

func (sm *SessionManager) inProgress(ctx context.Context, id string) (*models.BankReconciliation, error) {
	rec, err := sm.store.GetReconciliation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.IsInProgress() {
		return nil, errors.InvalidStateError("reconciliation", rec.ID, string(rec.Status), string(models.ReconciliationInProgress))
	}
	return rec, nil
}

// bookBalance sums the signed ledger activity of accountID up to asOf
func (sm *SessionManager) bookBalance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	txns, err := sm.store.FindTransactions(ctx, storage.LedgerQuery{AccountID: accountID, To: asOf})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, txn := range txns {
		total = total.Add(txn.Amount)
	}
	return total, nil
}
