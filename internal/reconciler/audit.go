package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/logger"
)

// AuditLog appends reconciliation audit entries. Entries are never updated
// or removed.
type AuditLog struct {
	store  storage.AuditRepository
	now    func() time.Time
	logger logger.Logger
}

// NewAuditLog creates an audit log over store
func NewAuditLog(store storage.AuditRepository, now func() time.Time) *AuditLog {
	if now == nil {
		now = time.Now
	}
	return &AuditLog{
		store:  store,
		now:    now,
		logger: logger.GetGlobalLogger().WithComponent("audit"),
	}
}

// Record stamps entry with a new ID and the current time and appends it
func (a *AuditLog) Record(ctx context.Context, entry *models.ReconciliationAudit) error {
	entry.ID = uuid.NewString()
	entry.Timestamp = a.now().UTC()

	if err := a.store.AppendAudit(ctx, entry); err != nil {
		a.logger.WithError(err).WithField("action", entry.Action).Error("Failed to append audit entry")
		return err
	}

	a.logger.WithFields(logger.Fields{
		"action":            entry.Action,
		"statement_id":      entry.StatementID,
		"reconciliation_id": entry.ReconciliationID,
	}).Debug(entry.Description)
	return nil
}

// List returns audit entries in append order
func (a *AuditLog) List(ctx context.Context, filter storage.AuditFilter) ([]*models.ReconciliationAudit, error) {
	return a.store.ListAudit(ctx, filter)
}
