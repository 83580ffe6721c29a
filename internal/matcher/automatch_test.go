package matcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/events"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
)

type fixture struct {
	ctx   context.Context
	store *storage.MemoryStore
	am    *AutoMatcher
}

// newFixture seeds a statement "s1" on account "acc" with items and the
// ledger with txns
func newFixture(t *testing.T, items []*models.StatementItem, txns []*models.LedgerTransaction) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	if err := store.SaveTransactions(ctx, txns); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	stmt := &models.BankStatement{
		ID:           "s1",
		AccountID:    "acc",
		SourceFormat: models.FormatCSV,
		Status:       models.StatementImported,
		ImportedAt:   time.Now(),
	}
	for i, item := range items {
		item.StatementID = stmt.ID
		item.Sequence = i + 1
	}
	models.ApplyRunningBalances(decimal.Zero, items)
	stmt.Recalculate(items)
	if err := store.CreateStatement(ctx, stmt, items); err != nil {
		t.Fatalf("seed statement: %v", err)
	}

	am, err := NewAutoMatcher(store, nil, nil)
	if err != nil {
		t.Fatalf("NewAutoMatcher: %v", err)
	}
	return &fixture{ctx: ctx, store: store, am: am}
}

func (f *fixture) item(t *testing.T, id string) *models.StatementItem {
	t.Helper()
	item, err := f.store.GetItem(f.ctx, id)
	if err != nil {
		t.Fatalf("GetItem(%s): %v", id, err)
	}
	return item
}

type recordingListener struct {
	mu        sync.Mutex
	committed []string
	changed   []string
	err       error
}

func (l *recordingListener) MatchCommitted(_ context.Context, _ *models.BankStatement, item *models.StatementItem, res *models.MatchResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.committed = append(l.committed, item.ID+"->"+res.TransactionID)
	return l.err
}

func (l *recordingListener) StatusChanged(_ context.Context, _ *models.BankStatement, item *models.StatementItem, previous models.MatchStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changed = append(l.changed, fmt.Sprintf("%s:%s->%s", item.ID, previous, item.Status))
	return l.err
}

func TestNewAutoMatcherValidation(t *testing.T) {
	if _, err := NewAutoMatcher(nil, nil, nil); !errors.IsValidation(err) {
		t.Errorf("expected validation error for nil store, got %v", err)
	}

	cfg := DefaultMatchingConfig()
	cfg.CandidateFloor = 99
	_, err := NewAutoMatcher(storage.NewMemoryStore(), cfg, nil)
	if errors.CategoryOf(err) != errors.CategoryConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRunIdenticalItemMatches(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{newItem("i1", "1500.00", day(10), "DEPOSIT FROM CUSTOMER ABC", "DEP001")},
		[]*models.LedgerTransaction{newTxn("t1", "acc", "1500.00", day(10), "DEPOSIT FROM CUSTOMER ABC", "DEP001")},
	)

	run, err := f.am.Run(f.ctx, "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Processed != 1 || run.Matched != 1 || run.Unmatched != 0 {
		t.Fatalf("unexpected run result %+v", run)
	}

	res := run.Results[0]
	if res.Score != 100 || !res.Exact || res.Method != models.MatchMethodAuto || res.TransactionID != "t1" {
		t.Errorf("unexpected match result %+v", res)
	}

	item := f.item(t, "i1")
	if item.Status != models.StatusAutoMatched || item.Confidence != 100 || item.MatchedTransactionID != "t1" {
		t.Errorf("unexpected item state %+v", item)
	}

	results, _ := f.store.ListMatchResults(f.ctx, "s1")
	if len(results) != 1 {
		t.Errorf("expected 1 stored result, got %d", len(results))
	}
}

func TestRunNearMissStaysUnmatched(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{newItem("i1", "-250.00", day(10), "UTILITY PAYMENT", "")},
		[]*models.LedgerTransaction{newTxn("t1", "acc", "-250.01", day(11), "UTILITY PAYMENT", "")},
	)

	run, err := f.am.Run(f.ctx, "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Matched != 0 || len(run.Failures) != 1 {
		t.Fatalf("unexpected run result %+v", run)
	}
	failure := run.Failures[0]
	if failure.Reason != FailureBelowThreshold || failure.BestScore != 70 {
		t.Errorf("unexpected failure %+v", failure)
	}
	if run.Err != nil {
		t.Errorf("below-threshold items are not errors: %v", run.Err)
	}

	candidates, err := f.am.Candidates(f.ctx, "i1")
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Score != 70 {
		t.Errorf("expected one candidate scoring 70, got %v", candidateIDs(candidates))
	}
	if f.item(t, "i1").Status != models.StatusUnmatched {
		t.Error("item should stay unmatched")
	}
}

func TestRunCompetingItems(t *testing.T) {
	tests := []struct {
		name        string
		txns        []*models.LedgerTransaction
		wantMatched int
	}{
		{
			name: "single transaction",
			txns: []*models.LedgerTransaction{
				newTxn("t1", "acc", "-42.00", day(5), "GYM", ""),
			},
			wantMatched: 1,
		},
		{
			name: "next best candidate",
			txns: []*models.LedgerTransaction{
				newTxn("t1", "acc", "-42.00", day(5), "GYM", ""),
				newTxn("t2", "acc", "-42.00", day(6), "GYM", ""),
			},
			wantMatched: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []*models.StatementItem{
				newItem("i1", "-42.00", day(5), "GYM", ""),
				newItem("i2", "-42.00", day(5), "GYM", ""),
			}, tt.txns)

			run, err := f.am.Run(f.ctx, "s1")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if run.Matched != tt.wantMatched {
				t.Fatalf("expected %d matched, got %+v", tt.wantMatched, run)
			}

			claimed, _ := f.store.ClaimedTransactionIDs(f.ctx, "acc")
			if len(claimed) != tt.wantMatched {
				t.Errorf("expected %d claimed transactions, got %v", tt.wantMatched, claimed)
			}
			seen := map[string]bool{}
			for _, id := range []string{"i1", "i2"} {
				item := f.item(t, id)
				if !item.IsMatched() {
					continue
				}
				if seen[item.MatchedTransactionID] {
					t.Errorf("transaction %s linked twice", item.MatchedTransactionID)
				}
				seen[item.MatchedTransactionID] = true
			}
			if f.item(t, "i1").MatchedTransactionID != "t1" {
				t.Error("first item in sequence should take the best candidate")
			}
		})
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{
			newItem("i1", "10.00", day(1), "A", ""),
			newItem("i2", "20.00", day(2), "B", ""),
		},
		[]*models.LedgerTransaction{newTxn("t1", "acc", "10.00", day(1), "A", "")},
	)

	first, err := f.am.Run(f.ctx, "s1")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Matched != 1 || first.Failures[0].Reason != FailureNoCandidates {
		t.Fatalf("unexpected first run %+v", first)
	}

	second, err := f.am.Run(f.ctx, "s1")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Matched != 0 || second.Processed != 1 {
		t.Errorf("unexpected second run %+v", second)
	}
	if f.item(t, "i1").MatchedTransactionID != "t1" {
		t.Error("matched item changed on rerun")
	}

	results, _ := f.store.ListMatchResults(f.ctx, "s1")
	if len(results) != 1 {
		t.Errorf("expected 1 stored result after rerun, got %d", len(results))
	}
}

func TestRunSkipsClaimedTransactions(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{
			newItem("i1", "-42.00", day(5), "GYM", ""),
			newItem("i2", "-42.00", day(5), "GYM", ""),
		},
		[]*models.LedgerTransaction{newTxn("t1", "acc", "-42.00", day(5), "GYM", "")},
	)

	if _, err := f.am.ManualMatch(f.ctx, "i2", "t1"); err != nil {
		t.Fatalf("ManualMatch: %v", err)
	}

	run, err := f.am.Run(f.ctx, "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Processed != 1 || run.Matched != 0 || run.Failures[0].Reason != FailureNoCandidates {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{newItem("i1", "10.00", day(1), "A", "")},
		[]*models.LedgerTransaction{newTxn("t1", "acc", "10.00", day(1), "A", "")},
	)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	run, err := f.am.Run(ctx, "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Processed != 0 || run.Err == nil {
		t.Errorf("expected no processed items and an error, got %+v", run)
	}
	if f.item(t, "i1").Status != models.StatusUnmatched {
		t.Error("cancelled run should not change items")
	}
}

func TestRunEvents(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{
			newItem("i1", "10.00", day(1), "A", ""),
			newItem("i2", "99.00", day(1), "B", ""),
		},
		[]*models.LedgerTransaction{newTxn("t1", "acc", "10.00", day(1), "A", "")},
	)

	bus := events.NewBus()
	var mu sync.Mutex
	kinds := map[events.Kind]int{}
	var completed *RunResult
	bus.Subscribe(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds[e.Kind]++
		if e.Kind == events.KindCompleted {
			completed, _ = e.Payload.(*RunResult)
		}
	})

	am, err := NewAutoMatcher(f.store, nil, bus)
	if err != nil {
		t.Fatalf("NewAutoMatcher: %v", err)
	}
	if _, err := am.Run(f.ctx, "s1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if kinds[events.KindProgress] != 2 || kinds[events.KindMatched] != 1 || kinds[events.KindCompleted] != 1 {
		t.Errorf("unexpected event counts %v", kinds)
	}
	if completed == nil || completed.Matched != 1 {
		t.Errorf("completed event should carry the run result, got %+v", completed)
	}
}

func TestRunRejectsReconciledStatement(t *testing.T) {
	f := newFixture(t, []*models.StatementItem{newItem("i1", "10.00", day(1), "A", "")}, nil)

	stmt, _ := f.store.GetStatement(f.ctx, "s1")
	stmt.Status = models.StatementReconciled
	if err := f.store.UpdateStatement(f.ctx, stmt); err != nil {
		t.Fatalf("UpdateStatement: %v", err)
	}

	if _, err := f.am.Run(f.ctx, "s1"); !errors.IsValidation(err) {
		t.Errorf("expected invalid state error from Run, got %v", err)
	}
	if _, err := f.am.Exclude(f.ctx, "i1", "fee"); !errors.IsValidation(err) {
		t.Errorf("expected invalid state error from Exclude, got %v", err)
	}
	if _, err := f.am.Candidates(f.ctx, "i1"); err != nil {
		t.Errorf("candidates should stay readable: %v", err)
	}
	if _, err := f.am.Run(f.ctx, "missing"); !errors.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestManualMatch(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{
			newItem("i1", "-42.00", day(5), "GYM", ""),
			newItem("i2", "-42.00", day(5), "GYM", ""),
		},
		[]*models.LedgerTransaction{
			newTxn("t1", "acc", "-42.00", day(5), "GYM", ""),
			newTxn("t2", "acc", "-99.00", day(20), "SOMETHING ELSE", ""),
			newTxn("t3", "other", "-42.00", day(5), "GYM", ""),
		},
	)
	listener := &recordingListener{}
	f.am.AddListener(listener)
	matchedAt := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	f.am.SetClock(func() time.Time { return matchedAt })

	res, err := f.am.ManualMatch(f.ctx, "i1", "t1")
	if err != nil {
		t.Fatalf("ManualMatch: %v", err)
	}
	if res.Method != models.MatchMethodManual || res.Score != 90 || !res.MatchedAt.Equal(matchedAt) {
		t.Errorf("unexpected result %+v", res)
	}
	if f.item(t, "i1").Status != models.StatusManualMatched {
		t.Error("expected MANUAL_MATCHED")
	}

	if _, err := f.am.ManualMatch(f.ctx, "i2", "t1"); !errors.IsConcurrency(err) {
		t.Errorf("expected concurrency error, got %v", err)
	}
	if f.item(t, "i2").Status != models.StatusUnmatched {
		t.Error("losing item should stay unmatched")
	}

	if _, err := f.am.ManualMatch(f.ctx, "i1", "t2"); !errors.IsValidation(err) {
		t.Errorf("expected invalid state error for a matched item, got %v", err)
	}
	if _, err := f.am.ManualMatch(f.ctx, "i2", "t3"); !errors.IsValidation(err) {
		t.Errorf("expected validation error for another account, got %v", err)
	}
	if _, err := f.am.ManualMatch(f.ctx, "i2", "nope"); !errors.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}

	low, err := f.am.ManualMatch(f.ctx, "i2", "t2")
	if err != nil {
		t.Fatalf("low scoring manual match should be allowed: %v", err)
	}
	if low.Score >= DefaultMatchingConfig().AutoMatchThreshold || low.Exact {
		t.Errorf("unexpected low score result %+v", low)
	}
	if got := f.item(t, "i2").Confidence; got != low.Score {
		t.Errorf("expected confidence %d, got %d", low.Score, got)
	}

	if len(listener.committed) != 2 || listener.committed[0] != "i1->t1" {
		t.Errorf("unexpected listener calls %v", listener.committed)
	}
}

func TestManualMatchConcurrent(t *testing.T) {
	const n = 8
	items := make([]*models.StatementItem, n)
	for i := range items {
		items[i] = newItem(fmt.Sprintf("i%d", i), "-42.00", day(5), "GYM", "")
	}
	f := newFixture(t, items, []*models.LedgerTransaction{newTxn("t1", "acc", "-42.00", day(5), "GYM", "")})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.am.ManualMatch(f.ctx, id, "t1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.IsConcurrency(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(items[i].ID)
	}
	wg.Wait()

	if wins != 1 || conflicts != n-1 {
		t.Errorf("expected 1 win and %d conflicts, got %d and %d", n-1, wins, conflicts)
	}
}

func TestExcludeAndUnmatch(t *testing.T) {
	f := newFixture(t,
		[]*models.StatementItem{
			newItem("i1", "-5.00", day(2), "MONTHLY FEE", ""),
			newItem("i2", "10.00", day(2), "A", ""),
		},
		[]*models.LedgerTransaction{newTxn("t1", "acc", "10.00", day(2), "A", "")},
	)
	listener := &recordingListener{err: fmt.Errorf("listener down")}
	f.am.AddListener(listener)

	item, err := f.am.Exclude(f.ctx, "i1", "  bank fee  ")
	if err != nil {
		t.Fatalf("Exclude: %v", err)
	}
	if item.Status != models.StatusExcluded || item.ExcludeReason != "bank fee" {
		t.Errorf("unexpected excluded item %+v", item)
	}
	if _, err := f.am.Exclude(f.ctx, "i1", "again"); !errors.IsValidation(err) {
		t.Errorf("expected invalid state error, got %v", err)
	}

	item, err = f.am.Unmatch(f.ctx, "i1")
	if err != nil {
		t.Fatalf("Unmatch: %v", err)
	}
	if item.Status != models.StatusUnmatched || item.ExcludeReason != "" {
		t.Errorf("unexpected unmatched item %+v", item)
	}
	if _, err := f.am.Unmatch(f.ctx, "i1"); !errors.IsValidation(err) {
		t.Errorf("expected invalid state error, got %v", err)
	}

	if _, err := f.am.ManualMatch(f.ctx, "i2", "t1"); err != nil {
		t.Fatalf("ManualMatch: %v", err)
	}
	if _, err := f.am.Unmatch(f.ctx, "i2"); err != nil {
		t.Fatalf("Unmatch matched item: %v", err)
	}
	claimed, _ := f.store.ClaimedTransactionIDs(f.ctx, "acc")
	if len(claimed) != 0 {
		t.Errorf("unmatch should release the transaction, got %v", claimed)
	}
	results, _ := f.store.ListMatchResults(f.ctx, "s1")
	if len(results) != 1 {
		t.Errorf("match results are append-only, got %d", len(results))
	}

	want := []string{
		"i1:UNMATCHED->EXCLUDED",
		"i1:EXCLUDED->UNMATCHED",
		"i2:MANUAL_MATCHED->UNMATCHED",
	}
	if !equalIDs(listener.changed, want) {
		t.Errorf("expected listener calls %v, got %v", want, listener.changed)
	}
}
