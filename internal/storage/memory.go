package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

// MemoryStore is a mutex-guarded in-memory Repository. It copies values on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	ledger          map[string]*models.LedgerTransaction
	statements      map[string]*models.BankStatement
	items           map[string]*models.StatementItem
	statementItems  map[string][]string
	results         []*models.MatchResult
	reconciliations map[string]*models.BankReconciliation
	outstanding     map[string]*models.OutstandingItem
	audit           []*models.ReconciliationAudit
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledger:          make(map[string]*models.LedgerTransaction),
		statements:      make(map[string]*models.BankStatement),
		items:           make(map[string]*models.StatementItem),
		statementItems:  make(map[string][]string),
		reconciliations: make(map[string]*models.BankReconciliation),
		outstanding:     make(map[string]*models.OutstandingItem),
	}
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) FindTransactions(ctx context.Context, q LedgerQuery) ([]*models.LedgerTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.LedgerTransaction
	for _, txn := range m.ledger {
		if txn.AccountID != q.AccountID || !withinDays(txn.Date, q.From, q.To) {
			continue
		}
		c := *txn
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.ledger[id]
	if !ok {
		return nil, errors.NotFoundError("ledger transaction", id)
	}
	c := *txn
	return &c, nil
}

func (m *MemoryStore) SaveTransactions(ctx context.Context, txns []*models.LedgerTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, txn := range txns {
		c := *txn
		m.ledger[txn.ID] = &c
	}
	return nil
}

func (m *MemoryStore) CreateStatement(ctx context.Context, stmt *models.BankStatement, items []*models.StatementItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.statements[stmt.ID]; exists {
		return errors.ValidationError(errors.CodeDuplicate, "statement", stmt.ID, nil)
	}
	for _, item := range items {
		if _, exists := m.items[item.ID]; exists {
			return errors.ValidationError(errors.CodeDuplicate, "statement item", item.ID, nil)
		}
	}

	s := *stmt
	m.statements[stmt.ID] = &s
	ids := make([]string, 0, len(items))
	for _, item := range items {
		m.items[item.ID] = item.Clone()
		ids = append(ids, item.ID)
	}
	m.statementItems[stmt.ID] = ids
	return nil
}

func (m *MemoryStore) GetStatement(ctx context.Context, id string) (*models.BankStatement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stmt, ok := m.statements[id]
	if !ok {
		return nil, errors.NotFoundError("statement", id)
	}
	s := *stmt
	return &s, nil
}

func (m *MemoryStore) ListStatements(ctx context.Context, accountID string) ([]*models.BankStatement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.BankStatement
	for _, stmt := range m.statements {
		if accountID != "" && stmt.AccountID != accountID {
			continue
		}
		s := *stmt
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ImportedAt.Equal(out[j].ImportedAt) {
			return out[i].ImportedAt.Before(out[j].ImportedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateStatement(ctx context.Context, stmt *models.BankStatement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statements[stmt.ID]; !ok {
		return errors.NotFoundError("statement", stmt.ID)
	}
	s := *stmt
	m.statements[stmt.ID] = &s
	return nil
}

func (m *MemoryStore) DeleteStatement(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statements[id]; !ok {
		return errors.NotFoundError("statement", id)
	}
	for _, itemID := range m.statementItems[id] {
		delete(m.items, itemID)
	}
	delete(m.statementItems, id)
	delete(m.statements, id)

	kept := m.results[:0]
	for _, r := range m.results {
		if r.StatementID != id {
			kept = append(kept, r)
		}
	}
	m.results = kept
	return nil
}

func (m *MemoryStore) GetItem(ctx context.Context, id string) (*models.StatementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, errors.NotFoundError("statement item", id)
	}
	return item.Clone(), nil
}

func (m *MemoryStore) ListItems(ctx context.Context, statementID string) ([]*models.StatementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.statementItems[statementID]
	if !ok {
		return nil, errors.NotFoundError("statement", statementID)
	}
	out := make([]*models.StatementItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.items[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *MemoryStore) UpdateItem(ctx context.Context, item *models.StatementItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; !ok {
		return errors.NotFoundError("statement item", item.ID)
	}
	if item.IsMatched() {
		if owner, claimed := m.claimOwner(item.MatchedTransactionID); claimed && owner != item.ID {
			return errors.ConcurrencyError(item.MatchedTransactionID, owner)
		}
	}
	m.items[item.ID] = item.Clone()
	return nil
}

func (m *MemoryStore) CommitMatch(ctx context.Context, item *models.StatementItem, result *models.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.items[item.ID]
	if !ok {
		return errors.NotFoundError("statement item", item.ID)
	}
	if stored.Status != models.StatusUnmatched {
		return errors.InvalidStateError("statement item", item.ID, string(stored.Status), string(models.StatusUnmatched))
	}
	if owner, claimed := m.claimOwner(result.TransactionID); claimed {
		return errors.ConcurrencyError(result.TransactionID, owner)
	}

	m.items[item.ID] = item.Clone()
	r := *result
	m.results = append(m.results, &r)
	return nil
}

// claimOwner must be called with the lock held
func (m *MemoryStore) claimOwner(transactionID string) (string, bool) {
	for _, it := range m.items {
		if it.IsMatched() && it.MatchedTransactionID == transactionID {
			return it.ID, true
		}
	}
	return "", false
}

func (m *MemoryStore) ClaimedTransactionIDs(ctx context.Context, accountID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	claimed := make(map[string]string)
	for _, it := range m.items {
		if !it.IsMatched() {
			continue
		}
		if stmt, ok := m.statements[it.StatementID]; ok && stmt.AccountID == accountID {
			claimed[it.MatchedTransactionID] = it.ID
		}
	}
	return claimed, nil
}

func (m *MemoryStore) ListMatchResults(ctx context.Context, statementID string) ([]*models.MatchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.MatchResult
	for _, r := range m.results {
		if r.StatementID == statementID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reconciliations[rec.ID]; exists {
		return errors.ValidationError(errors.CodeDuplicate, "reconciliation", rec.ID, nil)
	}
	c := *rec
	m.reconciliations[rec.ID] = &c
	return nil
}

func (m *MemoryStore) GetReconciliation(ctx context.Context, id string) (*models.BankReconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.reconciliations[id]
	if !ok {
		return nil, errors.NotFoundError("reconciliation", id)
	}
	c := *rec
	return &c, nil
}

func (m *MemoryStore) UpdateReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reconciliations[rec.ID]; !ok {
		return errors.NotFoundError("reconciliation", rec.ID)
	}
	c := *rec
	m.reconciliations[rec.ID] = &c
	return nil
}

func (m *MemoryStore) DeleteReconciliation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reconciliations[id]; !ok {
		return errors.NotFoundError("reconciliation", id)
	}
	delete(m.reconciliations, id)
	return nil
}

func (m *MemoryStore) FindActiveReconciliation(ctx context.Context, statementID string) (*models.BankReconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.reconciliations {
		if rec.StatementID == statementID && rec.IsInProgress() {
			c := *rec
			return &c, nil
		}
	}
	return nil, errors.NotFoundError("active reconciliation for statement", statementID)
}

func (m *MemoryStore) ListReconciliations(ctx context.Context, accountID string) ([]*models.BankReconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.BankReconciliation
	for _, rec := range m.reconciliations {
		if accountID == "" || rec.AccountID == accountID {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) SaveOutstanding(ctx context.Context, item *models.OutstandingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *item
	m.outstanding[item.ID] = &c
	return nil
}

func (m *MemoryStore) GetOutstanding(ctx context.Context, id string) (*models.OutstandingItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.outstanding[id]
	if !ok {
		return nil, errors.NotFoundError("outstanding item", id)
	}
	c := *item
	return &c, nil
}

func (m *MemoryStore) FindOutstandingByTransaction(ctx context.Context, transactionID string) (*models.OutstandingItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, item := range m.outstanding {
		if item.TransactionID == transactionID {
			c := *item
			return &c, nil
		}
	}
	return nil, errors.NotFoundError("outstanding item for transaction", transactionID)
}

func (m *MemoryStore) ListOutstanding(ctx context.Context, accountID string, openOnly bool) ([]*models.OutstandingItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.OutstandingItem
	for _, item := range m.outstanding {
		if item.AccountID != accountID || (openOnly && item.Cleared) {
			continue
		}
		c := *item
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) AppendAudit(ctx context.Context, entry *models.ReconciliationAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *entry
	m.audit = append(m.audit, &c)
	return nil
}

func (m *MemoryStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*models.ReconciliationAudit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.ReconciliationAudit
	for _, e := range m.audit {
		if filter.StatementID != "" && e.StatementID != filter.StatementID {
			continue
		}
		if filter.ReconciliationID != "" && e.ReconciliationID != filter.ReconciliationID {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func withinDays(date, from, to time.Time) bool {
	d := models.CalendarDay(date)
	if !from.IsZero() && d.Before(models.CalendarDay(from)) {
		return false
	}
	if !to.IsZero() && d.After(models.CalendarDay(to)) {
		return false
	}
	return true
}
