package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

type outstandingStore interface {
	storage.LedgerReader
	storage.MatchRepository
	storage.OutstandingRepository
}

// OutstandingTracker records ledger transactions that no bank statement has
// confirmed yet and clears them once a statement item is matched to them
type OutstandingTracker struct {
	store          outstandingStore
	audit          *AuditLog
	staleAfterDays int
	now            func() time.Time
	logger         logger.Logger
}

// NewOutstandingTracker creates a tracker. Open items older than
// staleAfterDays are reported by GetStaleItems.
func NewOutstandingTracker(store outstandingStore, audit *AuditLog, staleAfterDays int, now func() time.Time) *OutstandingTracker {
	if now == nil {
		now = time.Now
	}
	return &OutstandingTracker{
		store:          store,
		audit:          audit,
		staleAfterDays: staleAfterDays,
		now:            now,
		logger:         logger.GetGlobalLogger().WithComponent("outstanding"),
	}
}

// Record creates outstanding items for ledger transactions of accountID
// dated up to asOf that are not linked to any matched statement item and
// are not tracked yet. It returns the newly created items.
func (t *OutstandingTracker) Record(ctx context.Context, accountID string, asOf time.Time, reconciliationID string) ([]*models.OutstandingItem, error) {
	txns, err := t.store.FindTransactions(ctx, storage.LedgerQuery{AccountID: accountID, To: asOf})
	if err != nil {
		return nil, err
	}
	claimed, err := t.store.ClaimedTransactionIDs(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var created []*models.OutstandingItem
	for _, txn := range txns {
		if _, ok := claimed[txn.ID]; ok {
			continue
		}
		_, err := t.store.FindOutstandingByTransaction(ctx, txn.ID)
		if err == nil {
			continue
		}
		if !errors.IsNotFound(err) {
			return created, err
		}

		item := &models.OutstandingItem{
			ID:              uuid.NewString(),
			AccountID:       accountID,
			TransactionID:   txn.ID,
			Reference:       txn.Reference,
			Description:     txn.Description,
			Amount:          txn.Amount,
			TransactionDate: models.CalendarDay(txn.Date),
			CreatedAt:       t.now().UTC(),
		}
		if err := t.store.SaveOutstanding(ctx, item); err != nil {
			return created, err
		}
		created = append(created, item)
	}

	if len(created) > 0 {
		t.logger.WithFields(logger.Fields{
			"account_id": accountID,
			"created":    len(created),
		}).Info("Recorded outstanding items")

		if err := t.audit.Record(ctx, &models.ReconciliationAudit{
			ReconciliationID: reconciliationID,
			Action:           models.AuditOutstandingRecorded,
			Description:      fmt.Sprintf("%d outstanding items recorded for account %s", len(created), accountID),
			NewValue:         fmt.Sprintf("%d", len(created)),
		}); err != nil {
			return created, err
		}
	}
	return created, nil
}

// MarkCleared closes an open outstanding item
func (t *OutstandingTracker) MarkCleared(ctx context.Context, id string, clearedDate time.Time) (*models.OutstandingItem, error) {
	item, err := t.store.GetOutstanding(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.clear(ctx, item, clearedDate)
}

// MarkClearedByTransaction clears the outstanding item of a ledger
// transaction. It returns nil without error when the transaction is not
// outstanding or already cleared.
func (t *OutstandingTracker) MarkClearedByTransaction(ctx context.Context, transactionID string, clearedDate time.Time) (*models.OutstandingItem, error) {
	item, err := t.store.FindOutstandingByTransaction(ctx, transactionID)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if item.Cleared {
		return nil, nil
	}
	return t.clear(ctx, item, clearedDate)
}

func (t *OutstandingTracker) clear(ctx context.Context, item *models.OutstandingItem, clearedDate time.Time) (*models.OutstandingItem, error) {
	if item.Cleared {
		return nil, errors.InvalidStateError("outstanding item", item.ID, "cleared", "open")
	}

	cleared := models.CalendarDay(clearedDate)
	item.Cleared = true
	item.ClearedDate = &cleared
	if err := t.store.SaveOutstanding(ctx, item); err != nil {
		return nil, err
	}

	t.logger.WithFields(logger.Fields{
		"outstanding_id": item.ID,
		"transaction_id": item.TransactionID,
	}).Info("Outstanding item cleared")

	err := t.audit.Record(ctx, &models.ReconciliationAudit{
		Action:        models.AuditOutstandingCleared,
		Description:   fmt.Sprintf("outstanding transaction %s cleared on %s", item.TransactionID, cleared.Format("2006-01-02")),
		PreviousValue: "open",
		NewValue:      "cleared",
	})
	return item, err
}

// GetStaleItems returns open items of accountID older than the stale threshold
func (t *OutstandingTracker) GetStaleItems(ctx context.Context, accountID string) ([]*models.OutstandingItem, error) {
	open, err := t.store.ListOutstanding(ctx, accountID, true)
	if err != nil {
		return nil, err
	}

	asOf := t.now()
	stale := make([]*models.OutstandingItem, 0, len(open))
	for _, item := range open {
		if item.IsStale(asOf, t.staleAfterDays) {
			stale = append(stale, item)
		}
	}
	return stale, nil
}

// ListOpen returns the uncleared items of accountID ordered by transaction date
func (t *OutstandingTracker) ListOpen(ctx context.Context, accountID string) ([]*models.OutstandingItem, error) {
	return t.store.ListOutstanding(ctx, accountID, true)
}

// OpenTotal sums the uncleared items of accountID dated up to asOf
func (t *OutstandingTracker) OpenTotal(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, int, error) {
	open, err := t.store.ListOutstanding(ctx, accountID, true)
	if err != nil {
		return decimal.Zero, 0, err
	}

	total := decimal.Zero
	count := 0
	limit := models.CalendarDay(asOf)
	for _, item := range open {
		if models.CalendarDay(item.TransactionDate).After(limit) {
			continue
		}
		total = total.Add(item.Amount)
		count++
	}
	return total, count, nil
}
