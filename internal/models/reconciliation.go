package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchMethod records how a match was made
type MatchMethod string

const (
	MatchMethodAuto   MatchMethod = "AUTO"
	MatchMethodManual MatchMethod = "MANUAL"
)

// ScoreBreakdown holds the weighted sub-scores behind a match score
type ScoreBreakdown struct {
	Amount      int `json:"amount"`
	Date        int `json:"date"`
	Description int `json:"description"`
	Reference   int `json:"reference"`
}

// Total returns the sum of the sub-scores capped at 100
func (b ScoreBreakdown) Total() int {
	total := b.Amount + b.Date + b.Description + b.Reference
	if total > 100 {
		return 100
	}
	if total < 0 {
		return 0
	}
	return total
}

// MatchCandidate pairs a statement item with a scored ledger transaction
type MatchCandidate struct {
	Item        *StatementItem     `json:"item"`
	Transaction *LedgerTransaction `json:"transaction"`
	Score       int                `json:"score"`
	Breakdown   ScoreBreakdown     `json:"breakdown"`
	Reason      string             `json:"reason"`
}

// DaysApart returns the calendar-day distance between the item and the transaction
func (c *MatchCandidate) DaysApart() int {
	return DaysBetween(c.Item.Date, c.Transaction.Date)
}

// MatchResult is the append-only record of a committed match
type MatchResult struct {
	ID            string      `json:"id"`
	ItemID        string      `json:"itemId"`
	StatementID   string      `json:"statementId"`
	TransactionID string      `json:"transactionId"`
	Score         int         `json:"score"`
	Method        MatchMethod `json:"method"`
	Exact         bool        `json:"exact"`
	MatchedAt     time.Time   `json:"matchedAt"`
}

// ReconciliationStatus is the lifecycle state of a reconciliation session
type ReconciliationStatus string

const (
	ReconciliationInProgress ReconciliationStatus = "IN_PROGRESS"
	ReconciliationCompleted  ReconciliationStatus = "RECONCILED"
)

// BankReconciliation is one reconciliation session of an account against a statement
type BankReconciliation struct {
	ID               string               `json:"id"`
	AccountID        string               `json:"accountId"`
	StatementID      string               `json:"statementId"`
	Status           ReconciliationStatus `json:"status"`
	BookBalance      decimal.Decimal      `json:"bookBalance"`
	BankBalance      decimal.Decimal      `json:"bankBalance"`
	StatementEndDate time.Time            `json:"statementEndDate"`
	Notes            string               `json:"notes,omitempty"`
	StartedAt        time.Time            `json:"startedAt"`
	CompletedAt      *time.Time           `json:"completedAt,omitempty"`
}

// IsInProgress returns true while the session accepts changes
func (r *BankReconciliation) IsInProgress() bool {
	return r.Status == ReconciliationInProgress
}

// String returns a string representation of the reconciliation
func (r *BankReconciliation) String() string {
	return fmt.Sprintf("BankReconciliation{ID: %s, Account: %s, Status: %s, Book: %s, Bank: %s}",
		r.ID, r.AccountID, r.Status, r.BookBalance.String(), r.BankBalance.String())
}

// OutstandingItem is a ledger transaction not yet seen on a bank statement
type OutstandingItem struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"accountId"`
	TransactionID   string          `json:"transactionId"`
	Reference       string          `json:"reference,omitempty"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transactionDate"`
	Cleared         bool            `json:"cleared"`
	ClearedDate     *time.Time      `json:"clearedDate,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Age returns the number of calendar days between the transaction date and asOf
func (o *OutstandingItem) Age(asOf time.Time) int {
	return int(CalendarDay(asOf).Sub(CalendarDay(o.TransactionDate)).Hours() / 24)
}

// IsStale reports whether an open item is older than thresholdDays
func (o *OutstandingItem) IsStale(asOf time.Time, thresholdDays int) bool {
	return !o.Cleared && o.Age(asOf) > thresholdDays
}

// Audit actions
const (
	AuditStatementImported   = "STATEMENT_IMPORTED"
	AuditStatementDeleted    = "STATEMENT_DELETED"
	AuditAutoMatched         = "AUTO_MATCHED"
	AuditManualMatched       = "MANUAL_MATCHED"
	AuditItemExcluded        = "ITEM_EXCLUDED"
	AuditItemUnmatched       = "ITEM_UNMATCHED"
	AuditReconcileStarted    = "RECONCILIATION_STARTED"
	AuditReconcileRefreshed  = "RECONCILIATION_REFRESHED"
	AuditReconcileCompleted  = "RECONCILIATION_COMPLETED"
	AuditReconcileAbandoned  = "RECONCILIATION_ABANDONED"
	AuditOutstandingCleared  = "OUTSTANDING_CLEARED"
	AuditOutstandingRecorded = "OUTSTANDING_RECORDED"
)

// ReconciliationAudit is one append-only audit record
type ReconciliationAudit struct {
	ID               string    `json:"id"`
	ReconciliationID string    `json:"reconciliationId,omitempty"`
	StatementID      string    `json:"statementId,omitempty"`
	Action           string    `json:"action"`
	Description      string    `json:"description"`
	PreviousValue    string    `json:"previousValue,omitempty"`
	NewValue         string    `json:"newValue,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
