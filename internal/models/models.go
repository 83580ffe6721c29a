package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a bank movement
type TransactionType string

const (
	// TransactionTypeDebit represents money leaving the account
	TransactionTypeDebit TransactionType = "DEBIT"
	// TransactionTypeCredit represents money entering the account
	TransactionTypeCredit TransactionType = "CREDIT"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// TypeForAmount derives the transaction type from the sign of a signed amount.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	if amount.IsNegative() {
		return TransactionTypeDebit
	}
	return TransactionTypeCredit
}

// MatchStatus is the lifecycle state of a statement item
type MatchStatus string

const (
	StatusUnmatched     MatchStatus = "UNMATCHED"
	StatusAutoMatched   MatchStatus = "AUTO_MATCHED"
	StatusManualMatched MatchStatus = "MANUAL_MATCHED"
	StatusExcluded      MatchStatus = "EXCLUDED"
)

// IsMatched reports whether the status links the item to a ledger transaction.
func (s MatchStatus) IsMatched() bool {
	return s == StatusAutoMatched || s == StatusManualMatched
}

// IsValid checks if the match status is one of the known states
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusUnmatched, StatusAutoMatched, StatusManualMatched, StatusExcluded:
		return true
	}
	return false
}

// StatementFormat identifies the source format of an imported statement
type StatementFormat string

const (
	FormatCSV StatementFormat = "csv"
	FormatQIF StatementFormat = "qif"
	FormatOFX StatementFormat = "ofx"
)

// StatementStatus is the lifecycle state of a bank statement
type StatementStatus string

const (
	StatementImported   StatementStatus = "IMPORTED"
	StatementReconciled StatementStatus = "RECONCILED"
)

// StatementItem is one line of an imported bank statement
type StatementItem struct {
	ID                   string          `json:"id"`
	StatementID          string          `json:"statementId"`
	Sequence             int             `json:"sequence"`
	Date                 time.Time       `json:"date"`
	Description          string          `json:"description"`
	Reference            string          `json:"reference,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Type                 TransactionType `json:"type"`
	RunningBalance       decimal.Decimal `json:"runningBalance"`
	Status               MatchStatus     `json:"status"`
	Confidence           int             `json:"confidence"`
	MatchedTransactionID string          `json:"matchedTransactionId,omitempty"`
	ExcludeReason        string          `json:"excludeReason,omitempty"`
}

// IsMatched returns true if the item is linked to a ledger transaction
func (i *StatementItem) IsMatched() bool {
	return i.Status.IsMatched()
}

// ResetMatch returns the item to the unmatched state
func (i *StatementItem) ResetMatch() {
	i.Status = StatusUnmatched
	i.Confidence = 0
	i.MatchedTransactionID = ""
	i.ExcludeReason = ""
}

// Clone returns a copy of the item
func (i *StatementItem) Clone() *StatementItem {
	c := *i
	return &c
}

// String returns a string representation of the item
func (i *StatementItem) String() string {
	return fmt.Sprintf("StatementItem{ID: %s, Date: %s, Amount: %s, Status: %s}",
		i.ID, i.Date.Format("2006-01-02"), i.Amount.String(), i.Status)
}

// LedgerTransaction is an internally recorded transaction against a bank
// account. Amount is net signed: debits minus credits.
type LedgerTransaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewLedgerTransactionFromColumns builds a transaction from separate debit
// and credit amounts.
func NewLedgerTransactionFromColumns(id, accountID string, date time.Time, description, reference string, debit, credit decimal.Decimal) *LedgerTransaction {
	return &LedgerTransaction{
		ID:          id,
		AccountID:   accountID,
		Date:        date,
		Description: description,
		Reference:   reference,
		Amount:      debit.Sub(credit),
	}
}

// Validate performs basic validation on the LedgerTransaction
func (t *LedgerTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	return nil
}

// String returns a string representation of the LedgerTransaction
func (t *LedgerTransaction) String() string {
	return fmt.Sprintf("LedgerTransaction{ID: %s, Date: %s, Amount: %s}",
		t.ID, t.Date.Format("2006-01-02"), t.Amount.String())
}

// BankStatement groups the items imported from one statement file
type BankStatement struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	SourceFormat   StatementFormat `json:"sourceFormat"`
	FileName       string          `json:"fileName,omitempty"`
	Status         StatementStatus `json:"status"`
	ImportedAt     time.Time       `json:"importedAt"`
	ItemCount      int             `json:"itemCount"`
}

// Recalculate derives the date range, item count and closing balance from
// items ordered by sequence. Running balances must already be applied.
func (s *BankStatement) Recalculate(items []*StatementItem) {
	s.ItemCount = len(items)
	if len(items) == 0 {
		s.StartDate = time.Time{}
		s.EndDate = time.Time{}
		s.ClosingBalance = s.OpeningBalance
		return
	}

	s.StartDate = items[0].Date
	s.EndDate = items[0].Date
	for _, item := range items[1:] {
		if item.Date.Before(s.StartDate) {
			s.StartDate = item.Date
		}
		if item.Date.After(s.EndDate) {
			s.EndDate = item.Date
		}
	}
	s.ClosingBalance = items[len(items)-1].RunningBalance
}

// String returns a string representation of the BankStatement
func (s *BankStatement) String() string {
	return fmt.Sprintf("BankStatement{ID: %s, Account: %s, Items: %d, Closing: %s}",
		s.ID, s.AccountID, s.ItemCount, s.ClosingBalance.String())
}

// ApplyRunningBalances sets RunningBalance on each item as the cumulative sum
// of amounts seeded from opening.
func ApplyRunningBalances(opening decimal.Decimal, items []*StatementItem) {
	balance := opening
	for _, item := range items {
		balance = balance.Add(item.Amount)
		item.RunningBalance = balance
	}
}

// StatementEntry is one normalized row produced by a statement parser
type StatementEntry struct {
	Line        int
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Reference   string
	Type        TransactionType
	BalanceHint *decimal.Decimal
}
