package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"golang-bank-reconciliation/internal/events"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// Store is the persistence the matcher needs
type Store interface {
	storage.LedgerReader
	storage.StatementRepository
	storage.MatchRepository
}

// FailureReason explains why an item was left unmatched by a run
type FailureReason string

const (
	FailureBelowThreshold FailureReason = "below_threshold"
	FailureNoCandidates   FailureReason = "no_candidates"
	FailureConflict       FailureReason = "conflict"
	FailureError          FailureReason = "error"
)

// ItemFailure records an item the run could not match
type ItemFailure struct {
	ItemID    string        `json:"itemId"`
	Reason    FailureReason `json:"reason"`
	BestScore int           `json:"bestScore"`
	Err       error         `json:"-"`
}

// RunResult summarizes one auto-match run over a statement
type RunResult struct {
	StatementID string                `json:"statementId"`
	Processed   int                   `json:"processed"`
	Matched     int                   `json:"matched"`
	Unmatched   int                   `json:"unmatched"`
	Results     []*models.MatchResult `json:"results"`
	Failures    []ItemFailure         `json:"failures"`
	Duration    time.Duration         `json:"duration"`

	// Err combines the errors of conflict and error failures. It does not
	// mean the run was aborted.
	Err error `json:"-"`
}

// Listener is told about item state changes after they are persisted.
// Errors are logged and published but never undo the change.
type Listener interface {
	MatchCommitted(ctx context.Context, stmt *models.BankStatement, item *models.StatementItem, result *models.MatchResult) error
	StatusChanged(ctx context.Context, stmt *models.BankStatement, item *models.StatementItem, previous models.MatchStatus) error
}

// AutoMatcher commits matches between statement items and ledger
// transactions, automatically or on request
type AutoMatcher struct {
	store     Store
	config    *MatchingConfig
	scorer    *Scorer
	publisher events.Publisher
	listeners []Listener
	locks     *keyedMutex
	logger    logger.Logger
	now       func() time.Time
}

// NewAutoMatcher creates a matcher over store. A nil publisher discards events.
func NewAutoMatcher(store Store, config *MatchingConfig, publisher events.Publisher) (*AutoMatcher, error) {
	if store == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("provide a storage implementation")
	}
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config.String(), err)
	}
	if publisher == nil {
		publisher = events.Discard
	}

	return &AutoMatcher{
		store:     store,
		config:    config.Clone(),
		scorer:    NewScorer(config),
		publisher: publisher,
		locks:     newKeyedMutex(),
		logger:    logger.GetGlobalLogger().WithComponent("automatcher"),
		now:       time.Now,
	}, nil
}

// AddListener registers l for state change notifications
func (am *AutoMatcher) AddListener(l Listener) {
	am.listeners = append(am.listeners, l)
}

// SetClock replaces the time source used for match timestamps
func (am *AutoMatcher) SetClock(now func() time.Time) {
	am.now = now
}

// Config returns a copy of the matching configuration
func (am *AutoMatcher) Config() *MatchingConfig {
	return am.config.Clone()
}

// Scorer returns the scorer used for all match paths
func (am *AutoMatcher) Scorer() *Scorer {
	return am.scorer
}

// Candidates ranks ledger transactions for one item. Transactions claimed
// by other items are left out.
func (am *AutoMatcher) Candidates(ctx context.Context, itemID string) ([]*models.MatchCandidate, error) {
	item, stmt, err := am.load(ctx, itemID, false)
	if err != nil {
		return nil, err
	}

	claimed, err := am.store.ClaimedTransactionIDs(ctx, stmt.AccountID)
	if err != nil {
		return nil, err
	}
	exclude := make(TransactionSet, len(claimed))
	for txnID, owner := range claimed {
		if owner != item.ID {
			exclude.Add(txnID)
		}
	}

	return NewCandidateGenerator(am.store, am.config).Candidates(ctx, stmt.AccountID, item, exclude)
}

// Run auto-matches every UNMATCHED item of a statement. Items already
// matched or excluded are not touched, so repeated runs are idempotent.
// Failures of single items are recorded in the result and do not stop the run.
func (am *AutoMatcher) Run(ctx context.Context, statementID string) (*RunResult, error) {
	start := time.Now()
	log := am.logger.WithField("statement_id", statementID)

	stmt, err := am.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if err := checkOpen(stmt); err != nil {
		return nil, err
	}

	unlock := am.locks.Lock(stmt.AccountID)
	defer unlock()

	items, err := am.store.ListItems(ctx, statementID)
	if err != nil {
		return nil, err
	}
	var pending []*models.StatementItem
	for _, item := range items {
		if item.Status == models.StatusUnmatched {
			pending = append(pending, item)
		}
	}

	result := &RunResult{StatementID: statementID}
	if len(pending) == 0 {
		log.Info("No unmatched items to process")
		result.Duration = time.Since(start)
		am.publisher.Publish(events.Event{Kind: events.KindCompleted, StatementID: statementID, Payload: result})
		return result, nil
	}

	claimed, err := am.store.ClaimedTransactionIDs(ctx, stmt.AccountID)
	if err != nil {
		return nil, err
	}
	exclude := NewTransactionSet(claimed)

	from, to := dateSpan(pending)
	window := am.config.CandidateWindowDays
	index, err := LoadLedgerIndex(ctx, am.store, stmt.AccountID, from.AddDate(0, 0, -window), to.AddDate(0, 0, window))
	if err != nil {
		return nil, err
	}
	gen := NewCandidateGenerator(index, am.config)

	log.WithFields(logger.Fields{
		"pending": len(pending),
		"claimed": len(claimed),
		"ledger":  len(index.AllTransactions),
	}).Info("Starting auto-match run")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "auto-match",
		Total:     int64(len(pending)),
		Logger:    log,
	})

	for i, item := range pending {
		if err := ctx.Err(); err != nil {
			result.Err = multierr.Append(result.Err, err)
			break
		}
		result.Processed++

		res, failure := am.matchItem(ctx, stmt, item, gen, exclude)
		if res != nil {
			result.Matched++
			result.Results = append(result.Results, res)
		} else {
			result.Unmatched++
			result.Failures = append(result.Failures, *failure)
			if failure.Err != nil {
				result.Err = multierr.Append(result.Err, fmt.Errorf("item %s: %w", failure.ItemID, failure.Err))
			}
		}

		tracker.Increment()
		am.publisher.Publish(events.Event{
			Kind:        events.KindProgress,
			StatementID: statementID,
			ItemID:      item.ID,
			Processed:   i + 1,
			Total:       len(pending),
		})
	}

	result.Duration = time.Since(start)
	if result.Err != nil {
		tracker.CompleteWithError(result.Err)
	} else {
		tracker.Complete()
	}

	log.WithFields(logger.Fields{
		"processed": result.Processed,
		"matched":   result.Matched,
		"unmatched": result.Unmatched,
	}).Info("Auto-match run finished")

	am.publisher.Publish(events.Event{
		Kind:        events.KindCompleted,
		StatementID: statementID,
		Processed:   result.Processed,
		Total:       len(pending),
		Message:     fmt.Sprintf("%d of %d items matched", result.Matched, result.Processed),
		Payload:     result,
		Err:         result.Err,
	})
	return result, nil
}

// matchItem commits the best eligible candidate of item. Exactly one of the
// return values is non-nil.
func (am *AutoMatcher) matchItem(ctx context.Context, stmt *models.BankStatement, item *models.StatementItem,
	gen *CandidateGenerator, exclude TransactionSet) (*models.MatchResult, *ItemFailure) {

	candidates, err := gen.Candidates(ctx, stmt.AccountID, item, exclude)
	if err != nil {
		return nil, &ItemFailure{ItemID: item.ID, Reason: FailureError, Err: err}
	}
	if len(candidates) == 0 {
		return nil, &ItemFailure{ItemID: item.ID, Reason: FailureNoCandidates}
	}

	best := candidates[0].Score
	var conflict error
	for _, c := range candidates {
		if c.Score < am.config.AutoMatchThreshold {
			break
		}
		if exclude.Has(c.Transaction.ID) {
			continue
		}

		res, err := am.commit(ctx, stmt, item, c.Transaction, c.Score, models.MatchMethodAuto)
		if err == nil {
			exclude.Add(c.Transaction.ID)
			return res, nil
		}
		if errors.IsConcurrency(err) {
			// claimed outside this run; try the next candidate
			exclude.Add(c.Transaction.ID)
			conflict = err
			continue
		}
		return nil, &ItemFailure{ItemID: item.ID, Reason: FailureError, BestScore: best, Err: err}
	}

	if conflict != nil {
		return nil, &ItemFailure{ItemID: item.ID, Reason: FailureConflict, BestScore: best, Err: conflict}
	}
	return nil, &ItemFailure{ItemID: item.ID, Reason: FailureBelowThreshold, BestScore: best}
}

// ManualMatch links an UNMATCHED item to a ledger transaction regardless of
// score. It fails with a ConcurrencyError when the transaction is already
// linked to another item.
func (am *AutoMatcher) ManualMatch(ctx context.Context, itemID, transactionID string) (*models.MatchResult, error) {
	item, stmt, err := am.load(ctx, itemID, true)
	if err != nil {
		return nil, err
	}

	unlock := am.locks.Lock(stmt.AccountID)
	defer unlock()

	// reload under the lock
	if item, err = am.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	if item.Status != models.StatusUnmatched {
		return nil, errors.InvalidStateError("statement item", item.ID, string(item.Status), string(models.StatusUnmatched)).
			WithSuggestion("unmatch the item before matching it again")
	}

	txn, err := am.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.AccountID != stmt.AccountID {
		return nil, errors.New(errors.CategoryValidation, errors.CodeOutOfRange,
			fmt.Sprintf("transaction %s belongs to account %s, statement %s to account %s",
				txn.ID, txn.AccountID, stmt.ID, stmt.AccountID))
	}

	score := am.scorer.Score(item, txn)
	res, err := am.commit(ctx, stmt, item, txn, score, models.MatchMethodManual)
	if err != nil {
		return nil, err
	}

	am.logger.WithFields(logger.Fields{
		"item_id":        item.ID,
		"transaction_id": txn.ID,
		"score":          score,
	}).Info("Manual match committed")
	return res, nil
}

// Exclude marks an UNMATCHED item as not needing a ledger counterpart
func (am *AutoMatcher) Exclude(ctx context.Context, itemID, reason string) (*models.StatementItem, error) {
	return am.transition(ctx, itemID, func(item *models.StatementItem) error {
		if item.Status != models.StatusUnmatched {
			return errors.InvalidStateError("statement item", item.ID, string(item.Status), string(models.StatusUnmatched))
		}
		item.Status = models.StatusExcluded
		item.Confidence = 0
		item.ExcludeReason = strings.TrimSpace(reason)
		return nil
	})
}

// Unmatch returns a matched or excluded item to UNMATCHED. The match result
// log is append-only and keeps the original entry.
func (am *AutoMatcher) Unmatch(ctx context.Context, itemID string) (*models.StatementItem, error) {
	return am.transition(ctx, itemID, func(item *models.StatementItem) error {
		if item.Status == models.StatusUnmatched {
			return errors.InvalidStateError("statement item", item.ID, string(item.Status),
				"AUTO_MATCHED, MANUAL_MATCHED or EXCLUDED")
		}
		item.ResetMatch()
		return nil
	})
}

func (am *AutoMatcher) transition(ctx context.Context, itemID string, apply func(*models.StatementItem) error) (*models.StatementItem, error) {
	_, stmt, err := am.load(ctx, itemID, true)
	if err != nil {
		return nil, err
	}

	unlock := am.locks.Lock(stmt.AccountID)
	defer unlock()

	item, err := am.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	previous := item.Status
	if err := apply(item); err != nil {
		return nil, err
	}
	if err := am.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	am.logger.WithFields(logger.Fields{
		"item_id": item.ID,
		"from":    previous,
		"to":      item.Status,
	}).Info("Statement item status changed")

	for _, l := range am.listeners {
		if err := l.StatusChanged(ctx, stmt, item, previous); err != nil {
			am.listenerFailed(stmt, item, err)
		}
	}
	return item, nil
}

// commit persists the link and notifies listeners. item is updated in place on success.
func (am *AutoMatcher) commit(ctx context.Context, stmt *models.BankStatement, item *models.StatementItem,
	txn *models.LedgerTransaction, score int, method models.MatchMethod) (*models.MatchResult, error) {

	status := models.StatusAutoMatched
	if method == models.MatchMethodManual {
		status = models.StatusManualMatched
	}

	updated := item.Clone()
	updated.Status = status
	updated.Confidence = score
	updated.MatchedTransactionID = txn.ID
	updated.ExcludeReason = ""

	res := &models.MatchResult{
		ID:            uuid.NewString(),
		ItemID:        item.ID,
		StatementID:   item.StatementID,
		TransactionID: txn.ID,
		Score:         score,
		Method:        method,
		Exact:         am.config.IsExact(score),
		MatchedAt:     am.now().UTC(),
	}

	if err := am.store.CommitMatch(ctx, updated, res); err != nil {
		return nil, err
	}
	*item = *updated

	for _, l := range am.listeners {
		if err := l.MatchCommitted(ctx, stmt, item, res); err != nil {
			am.listenerFailed(stmt, item, err)
		}
	}

	am.publisher.Publish(events.Event{
		Kind:        events.KindMatched,
		StatementID: stmt.ID,
		ItemID:      item.ID,
		Message:     fmt.Sprintf("%s match with %s (score %d)", strings.ToLower(string(method)), txn.ID, score),
		Payload:     res,
	})
	return res, nil
}

func (am *AutoMatcher) listenerFailed(stmt *models.BankStatement, item *models.StatementItem, err error) {
	am.logger.WithError(err).WithField("item_id", item.ID).Warn("Match listener failed")
	am.publisher.Publish(events.Event{Kind: events.KindError, StatementID: stmt.ID, ItemID: item.ID, Err: err})
}

func (am *AutoMatcher) load(ctx context.Context, itemID string, requireOpen bool) (*models.StatementItem, *models.BankStatement, error) {
	item, err := am.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	stmt, err := am.store.GetStatement(ctx, item.StatementID)
	if err != nil {
		return nil, nil, err
	}
	if requireOpen {
		if err := checkOpen(stmt); err != nil {
			return nil, nil, err
		}
	}
	return item, stmt, nil
}

// checkOpen rejects changes to reconciled statements
func checkOpen(stmt *models.BankStatement) error {
	if stmt.Status == models.StatementReconciled {
		return errors.InvalidStateError("bank statement", stmt.ID, string(stmt.Status), string(models.StatementImported)).
			WithSuggestion("reconciled statements cannot be re-matched")
	}
	return nil
}

func dateSpan(items []*models.StatementItem) (from, to time.Time) {
	from, to = items[0].Date, items[0].Date
	for _, item := range items[1:] {
		if item.Date.Before(from) {
			from = item.Date
		}
		if item.Date.After(to) {
			to = item.Date
		}
	}
	return models.CalendarDay(from), models.CalendarDay(to)
}
