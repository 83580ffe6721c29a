package matcher

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/iter"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/logger"
)

// TransactionSet is a set of ledger transaction IDs
type TransactionSet map[string]struct{}

// NewTransactionSet creates a set from the keys of claimed
func NewTransactionSet(claimed map[string]string) TransactionSet {
	set := make(TransactionSet, len(claimed))
	for id := range claimed {
		set[id] = struct{}{}
	}
	return set
}

// Add inserts id
func (s TransactionSet) Add(id string) {
	s[id] = struct{}{}
}

// Has reports whether id is in the set. A nil set is empty.
func (s TransactionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// CandidateGenerator finds and ranks ledger transactions for a statement item
type CandidateGenerator struct {
	ledger storage.LedgerReader
	scorer *Scorer
	config *MatchingConfig
	logger logger.Logger
}

// NewCandidateGenerator creates a generator reading from ledger
func NewCandidateGenerator(ledger storage.LedgerReader, config *MatchingConfig) *CandidateGenerator {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &CandidateGenerator{
		ledger: ledger,
		scorer: NewScorer(config),
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("candidates"),
	}
}

// Scorer returns the scorer used to rank candidates
func (g *CandidateGenerator) Scorer() *Scorer {
	return g.scorer
}

// Candidates returns the ledger transactions of accountID within the
// candidate window of item that score at least the candidate floor, best
// first. Transactions in exclude are skipped. No qualifying transaction
// yields an empty slice and no error.
func (g *CandidateGenerator) Candidates(ctx context.Context, accountID string, item *models.StatementItem, exclude TransactionSet) ([]*models.MatchCandidate, error) {
	day := models.CalendarDay(item.Date)
	txns, err := g.ledger.FindTransactions(ctx, storage.LedgerQuery{
		AccountID: accountID,
		From:      day.AddDate(0, 0, -g.config.CandidateWindowDays),
		To:        day.AddDate(0, 0, g.config.CandidateWindowDays),
	})
	if err != nil {
		return nil, err
	}

	pool := txns[:0:0]
	for _, txn := range txns {
		if !exclude.Has(txn.ID) {
			pool = append(pool, txn)
		}
	}

	mapper := iter.Mapper[*models.LedgerTransaction, *models.MatchCandidate]{MaxGoroutines: g.config.Workers}
	scored := mapper.Map(pool, func(txn **models.LedgerTransaction) *models.MatchCandidate {
		breakdown := g.scorer.Breakdown(item, *txn)
		return &models.MatchCandidate{
			Item:        item,
			Transaction: *txn,
			Score:       breakdown.Total(),
			Breakdown:   breakdown,
			Reason:      Reason(breakdown),
		}
	})

	candidates := make([]*models.MatchCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Score >= g.config.CandidateFloor {
			candidates = append(candidates, c)
		}
	}
	SortCandidates(candidates)

	if g.config.MaxCandidates > 0 && len(candidates) > g.config.MaxCandidates {
		candidates = candidates[:g.config.MaxCandidates]
	}

	g.logger.WithFields(logger.Fields{
		"item_id":    item.ID,
		"window":     len(txns),
		"excluded":   len(txns) - len(pool),
		"candidates": len(candidates),
	}).Debug("Generated candidates")

	return candidates, nil
}

// SortCandidates orders candidates by score descending, then nearest date,
// then description, then transaction ID
func SortCandidates(candidates []*models.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if da, db := a.DaysApart(), b.DaysApart(); da != db {
			return da < db
		}
		if a.Transaction.Description != b.Transaction.Description {
			return a.Transaction.Description < b.Transaction.Description
		}
		return a.Transaction.ID < b.Transaction.ID
	})
}
