// Package storage defines the persistence contract of the reconciliation
// engine and ships SQLite and in-memory implementations of it.
package storage

import (
	"context"
	"time"

	"golang-bank-reconciliation/internal/models"
)

// Repository defines the complete storage interface.
type Repository interface {
	LedgerReader
	LedgerWriter
	StatementRepository
	MatchRepository
	ReconciliationRepository
	OutstandingRepository
	AuditRepository
	Close() error
}

// LedgerQuery selects ledger transactions of one account whose calendar
// date lies within [From, To]. A zero bound is open.
type LedgerQuery struct {
	AccountID string
	From      time.Time
	To        time.Time
}

// LedgerReader is the read side of the general ledger
type LedgerReader interface {
	// FindTransactions returns matching transactions ordered by date then ID
	FindTransactions(ctx context.Context, q LedgerQuery) ([]*models.LedgerTransaction, error)

	// GetTransaction returns a NotFoundError for unknown IDs
	GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error)
}

// LedgerWriter seeds the ledger. The engine itself never writes ledger data.
type LedgerWriter interface {
	// SaveTransactions inserts or replaces transactions by ID
	SaveTransactions(ctx context.Context, txns []*models.LedgerTransaction) error
}

// StatementRepository handles bank statements and their items
type StatementRepository interface {
	// CreateStatement persists a statement together with its items as one unit
	CreateStatement(ctx context.Context, stmt *models.BankStatement, items []*models.StatementItem) error
	GetStatement(ctx context.Context, id string) (*models.BankStatement, error)
	ListStatements(ctx context.Context, accountID string) ([]*models.BankStatement, error)
	UpdateStatement(ctx context.Context, stmt *models.BankStatement) error

	// DeleteStatement removes the statement, its items and their match results
	DeleteStatement(ctx context.Context, id string) error

	GetItem(ctx context.Context, id string) (*models.StatementItem, error)

	// ListItems returns the items of a statement ordered by sequence
	ListItems(ctx context.Context, statementID string) ([]*models.StatementItem, error)

	// UpdateItem overwrites the mutable match fields of an item. Linking an
	// item to a ledger transaction goes through CommitMatch instead.
	UpdateItem(ctx context.Context, item *models.StatementItem) error
}

// MatchRepository records matches between statement items and ledger transactions
type MatchRepository interface {
	// CommitMatch atomically links item to result.TransactionID and appends
	// result. It fails with a ConcurrencyError when the transaction is
	// already linked to another matched item and with an invalid state
	// error when the stored item is no longer unmatched.
	CommitMatch(ctx context.Context, item *models.StatementItem, result *models.MatchResult) error

	// ClaimedTransactionIDs maps ledger transaction IDs already linked to a
	// matched item of the account to that item's ID
	ClaimedTransactionIDs(ctx context.Context, accountID string) (map[string]string, error)

	ListMatchResults(ctx context.Context, statementID string) ([]*models.MatchResult, error)
}

// ReconciliationRepository handles reconciliation sessions
type ReconciliationRepository interface {
	CreateReconciliation(ctx context.Context, rec *models.BankReconciliation) error
	GetReconciliation(ctx context.Context, id string) (*models.BankReconciliation, error)
	UpdateReconciliation(ctx context.Context, rec *models.BankReconciliation) error
	DeleteReconciliation(ctx context.Context, id string) error

	// FindActiveReconciliation returns the in-progress session for a
	// statement or a NotFoundError
	FindActiveReconciliation(ctx context.Context, statementID string) (*models.BankReconciliation, error)
	ListReconciliations(ctx context.Context, accountID string) ([]*models.BankReconciliation, error)
}

// OutstandingRepository handles outstanding items
type OutstandingRepository interface {
	// SaveOutstanding inserts or replaces an outstanding item by ID
	SaveOutstanding(ctx context.Context, item *models.OutstandingItem) error
	GetOutstanding(ctx context.Context, id string) (*models.OutstandingItem, error)
	FindOutstandingByTransaction(ctx context.Context, transactionID string) (*models.OutstandingItem, error)

	// ListOutstanding returns items of the account ordered by transaction date
	ListOutstanding(ctx context.Context, accountID string, openOnly bool) ([]*models.OutstandingItem, error)
}

// AuditFilter narrows ListAudit. Empty fields match everything.
type AuditFilter struct {
	StatementID      string
	ReconciliationID string
}

// AuditRepository is the append-only audit log
type AuditRepository interface {
	AppendAudit(ctx context.Context, entry *models.ReconciliationAudit) error

	// ListAudit returns entries in append order
	ListAudit(ctx context.Context, filter AuditFilter) ([]*models.ReconciliationAudit, error)
}
