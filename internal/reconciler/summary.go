package reconciler

import (
	"fmt"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
)

// StatusSummary counts the items of a statement by match status. Excluded
// items appear in neither the matched nor the unmatched totals.
type StatusSummary struct {
	StatementID    string          `json:"statementId"`
	AccountID      string          `json:"accountId"`
	Status         string          `json:"status"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`

	TotalItems    int `json:"totalItems"`
	AutoMatched   int `json:"autoMatched"`
	ManualMatched int `json:"manualMatched"`
	Unmatched     int `json:"unmatched"`
	Excluded      int `json:"excluded"`

	MatchedAmount   decimal.Decimal `json:"matchedAmount"`
	UnmatchedAmount decimal.Decimal `json:"unmatchedAmount"`
	ExcludedAmount  decimal.Decimal `json:"excludedAmount"`
}

// Matched returns the number of auto and manually matched items
func (s *StatusSummary) Matched() int {
	return s.AutoMatched + s.ManualMatched
}

// MatchRate returns matched items as a percentage of the items that need a
// counterpart, i.e. excluding EXCLUDED items
func (s *StatusSummary) MatchRate() float64 {
	relevant := s.TotalItems - s.Excluded
	if relevant == 0 {
		return 0
	}
	return float64(s.Matched()) / float64(relevant) * 100
}

func (s *StatusSummary) String() string {
	return fmt.Sprintf("%d items: %d auto, %d manual, %d unmatched, %d excluded",
		s.TotalItems, s.AutoMatched, s.ManualMatched, s.Unmatched, s.Excluded)
}

// Summarize builds the status summary of stmt from its items
func Summarize(stmt *models.BankStatement, items []*models.StatementItem) *StatusSummary {
	s := &StatusSummary{
		StatementID:     stmt.ID,
		AccountID:       stmt.AccountID,
		Status:          string(stmt.Status),
		OpeningBalance:  stmt.OpeningBalance,
		ClosingBalance:  stmt.ClosingBalance,
		TotalItems:      len(items),
		MatchedAmount:   decimal.Zero,
		UnmatchedAmount: decimal.Zero,
		ExcludedAmount:  decimal.Zero,
	}

	for _, item := range items {
		switch item.Status {
		case models.StatusAutoMatched:
			s.AutoMatched++
			s.MatchedAmount = s.MatchedAmount.Add(item.Amount)
		case models.StatusManualMatched:
			s.ManualMatched++
			s.MatchedAmount = s.MatchedAmount.Add(item.Amount)
		case models.StatusExcluded:
			s.Excluded++
			s.ExcludedAmount = s.ExcludedAmount.Add(item.Amount)
		default:
			s.Unmatched++
			s.UnmatchedAmount = s.UnmatchedAmount.Add(item.Amount)
		}
	}
	return s
}
