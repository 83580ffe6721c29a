package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
)

// LedgerIndex is an in-memory snapshot of ledger transactions indexed by
// calendar day and amount. It implements storage.LedgerReader so a batch
// run can load its ledger window once and query it per item.
type LedgerIndex struct {
	// DateIndex maps date strings (YYYY-MM-DD) to transaction slices
	DateIndex map[string][]*models.LedgerTransaction

	// ExactAmountIndex maps exact amounts to transaction slices
	ExactAmountIndex map[string][]*models.LedgerTransaction

	// AmountRangeIndex provides sorted amounts for range-based lookups
	AmountRangeIndex []*AmountIndexEntry

	byID            map[string]*models.LedgerTransaction
	AllTransactions []*models.LedgerTransaction
}

// AmountIndexEntry represents an entry in the sorted amount index
type AmountIndexEntry struct {
	Amount       decimal.Decimal
	Transactions []*models.LedgerTransaction
}

// IndexStats provides statistics about an index
type IndexStats struct {
	TotalTransactions int
	UniqueDates       int
	UniqueAmounts     int
}

const dayKeyLayout = "2006-01-02"

// NewLedgerIndex builds an index over txns
func NewLedgerIndex(txns []*models.LedgerTransaction) *LedgerIndex {
	index := &LedgerIndex{
		DateIndex:        make(map[string][]*models.LedgerTransaction),
		ExactAmountIndex: make(map[string][]*models.LedgerTransaction),
		byID:             make(map[string]*models.LedgerTransaction, len(txns)),
		AllTransactions:  txns,
	}
	index.buildIndexes()
	return index
}

// LoadLedgerIndex reads the ledger of one account between from and to and indexes it
func LoadLedgerIndex(ctx context.Context, ledger storage.LedgerReader, accountID string, from, to time.Time) (*LedgerIndex, error) {
	txns, err := ledger.FindTransactions(ctx, storage.LedgerQuery{AccountID: accountID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return NewLedgerIndex(txns), nil
}

func (li *LedgerIndex) buildIndexes() {
	amountMap := make(map[string]*AmountIndexEntry)

	for _, txn := range li.AllTransactions {
		amountKey := txn.Amount.String()
		dateKey := models.CalendarDay(txn.Date).Format(dayKeyLayout)

		li.byID[txn.ID] = txn
		li.ExactAmountIndex[amountKey] = append(li.ExactAmountIndex[amountKey], txn)
		li.DateIndex[dateKey] = append(li.DateIndex[dateKey], txn)

		if entry, exists := amountMap[amountKey]; exists {
			entry.Transactions = append(entry.Transactions, txn)
		} else {
			amountMap[amountKey] = &AmountIndexEntry{
				Amount:       txn.Amount,
				Transactions: []*models.LedgerTransaction{txn},
			}
		}
	}

	li.AmountRangeIndex = make([]*AmountIndexEntry, 0, len(amountMap))
	for _, entry := range amountMap {
		li.AmountRangeIndex = append(li.AmountRangeIndex, entry)
	}
	sort.Slice(li.AmountRangeIndex, func(i, j int) bool {
		return li.AmountRangeIndex[i].Amount.LessThan(li.AmountRangeIndex[j].Amount)
	})
}

// GetByExactAmount returns transactions with the exact amount
func (li *LedgerIndex) GetByExactAmount(amount decimal.Decimal) []*models.LedgerTransaction {
	return li.ExactAmountIndex[amount.String()]
}

// GetByAmountRange returns transactions within the specified amount range (inclusive)
func (li *LedgerIndex) GetByAmountRange(minAmount, maxAmount decimal.Decimal) []*models.LedgerTransaction {
	var result []*models.LedgerTransaction

	startIdx := sort.Search(len(li.AmountRangeIndex), func(i int) bool {
		return li.AmountRangeIndex[i].Amount.GreaterThanOrEqual(minAmount)
	})
	for i := startIdx; i < len(li.AmountRangeIndex); i++ {
		entry := li.AmountRangeIndex[i]
		if entry.Amount.GreaterThan(maxAmount) {
			break
		}
		result = append(result, entry.Transactions...)
	}
	return result
}

// GetByDateRange returns transactions whose calendar day lies in [startDate, endDate]
func (li *LedgerIndex) GetByDateRange(startDate, endDate time.Time) []*models.LedgerTransaction {
	var result []*models.LedgerTransaction

	end := models.CalendarDay(endDate)
	for current := models.CalendarDay(startDate); !current.After(end); current = current.AddDate(0, 0, 1) {
		result = append(result, li.DateIndex[current.Format(dayKeyLayout)]...)
	}
	return result
}

// FindTransactions implements storage.LedgerReader over the snapshot
func (li *LedgerIndex) FindTransactions(ctx context.Context, q storage.LedgerQuery) ([]*models.LedgerTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pool []*models.LedgerTransaction
	if q.From.IsZero() || q.To.IsZero() {
		pool = li.AllTransactions
	} else {
		pool = li.GetByDateRange(q.From, q.To)
	}

	result := make([]*models.LedgerTransaction, 0, len(pool))
	for _, txn := range pool {
		if q.AccountID != "" && txn.AccountID != q.AccountID {
			continue
		}
		day := models.CalendarDay(txn.Date)
		if !q.From.IsZero() && day.Before(models.CalendarDay(q.From)) {
			continue
		}
		if !q.To.IsZero() && day.After(models.CalendarDay(q.To)) {
			continue
		}
		result = append(result, txn)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetTransaction implements storage.LedgerReader over the snapshot
func (li *LedgerIndex) GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error) {
	if txn, ok := li.byID[id]; ok {
		return txn, nil
	}
	return nil, errors.NotFoundError("ledger transaction", id)
}

// GetIndexStats returns statistics about the index
func (li *LedgerIndex) GetIndexStats() IndexStats {
	return IndexStats{
		TotalTransactions: len(li.AllTransactions),
		UniqueDates:       len(li.DateIndex),
		UniqueAmounts:     len(li.ExactAmountIndex),
	}
}
