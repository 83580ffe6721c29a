package matcher

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/errors"
)

// candidateLedger surrounds an item on 2024-01-10 for -100 "Coffee Shop"
func candidateLedger() []*models.LedgerTransaction {
	return []*models.LedgerTransaction{
		newTxn("L-same", "acc", "-100.00", day(10), "Coffee Shop", ""),
		newTxn("L-far", "acc", "-100.00", day(13), "Coffee Shop", ""),
		newTxn("L-near", "acc", "-100.00", day(9), "Coffee Shop", ""),
		newTxn("L-a", "acc", "-100.00", day(8), "Coffee Shop X", ""),
		newTxn("L-z", "acc", "-100.00", day(12), "Coffee Shop A", ""),
		newTxn("L-edge", "acc", "-100.00", day(17), "Coffee Shop", ""),
		newTxn("L-out", "acc", "-100.00", day(18), "Coffee Shop", ""),
		newTxn("L-low", "acc", "-500.00", day(10), "Rent", ""),
		newTxn("L-other", "other", "-100.00", day(10), "Coffee Shop", ""),
	}
}

func candidateIDs(candidates []*models.MatchCandidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Transaction.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCandidateGenerator(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.SaveTransactions(ctx, candidateLedger()); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	item := newItem("i1", "-100.00", day(10), "Coffee Shop", "")

	tests := []struct {
		name    string
		config  func() *MatchingConfig
		exclude TransactionSet
		want    []string
	}{
		{
			name:   "window floor and ordering",
			config: DefaultMatchingConfig,
			want:   []string{"L-same", "L-near", "L-far", "L-z", "L-a", "L-edge"},
		},
		{
			name:    "excluded transactions are skipped",
			config:  DefaultMatchingConfig,
			exclude: TransactionSet{"L-same": {}, "L-z": {}},
			want:    []string{"L-near", "L-far", "L-a", "L-edge"},
		},
		{
			name: "max candidates truncates",
			config: func() *MatchingConfig {
				c := DefaultMatchingConfig()
				c.MaxCandidates = 2
				return c
			},
			want: []string{"L-same", "L-near"},
		},
		{
			name:   "strict profile narrows the window",
			config: StrictMatchingConfig,
			want:   []string{"L-same", "L-near", "L-far", "L-z", "L-a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewCandidateGenerator(store, tt.config())
			candidates, err := gen.Candidates(ctx, "acc", item, tt.exclude)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := candidateIDs(candidates); !equalIDs(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			for _, c := range candidates {
				if c.Score != c.Breakdown.Total() {
					t.Errorf("%s: score %d does not match breakdown %+v", c.Transaction.ID, c.Score, c.Breakdown)
				}
				if c.Reason == "" {
					t.Errorf("%s: missing reason", c.Transaction.ID)
				}
			}
		})
	}
}

func TestCandidateGeneratorEmpty(t *testing.T) {
	gen := NewCandidateGenerator(NewLedgerIndex(nil), nil)
	candidates, err := gen.Candidates(context.Background(), "acc", newItem("i1", "10", day(5), "x", ""), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidates == nil || len(candidates) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", candidates)
	}
}

func TestSortCandidatesTieBreaks(t *testing.T) {
	item := newItem("i", "1", day(10), "", "")
	mk := func(id, desc string, d, score int) *models.MatchCandidate {
		return &models.MatchCandidate{Item: item, Transaction: newTxn(id, "acc", "1", day(d), desc, ""), Score: score}
	}
	candidates := []*models.MatchCandidate{
		mk("t4", "b", 10, 80),
		mk("t3", "b", 10, 80),
		mk("t2", "a", 10, 80),
		mk("t5", "a", 12, 80),
		mk("t1", "z", 10, 90),
	}

	SortCandidates(candidates)

	want := []string{"t1", "t2", "t3", "t4", "t5"}
	if got := candidateIDs(candidates); !equalIDs(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLedgerIndex(t *testing.T) {
	ctx := context.Background()
	index := NewLedgerIndex(candidateLedger())

	stats := index.GetIndexStats()
	if stats.TotalTransactions != 9 {
		t.Errorf("expected 9 transactions, got %d", stats.TotalTransactions)
	}

	if got := len(index.GetByExactAmount(decimal.RequireFromString("-100"))); got != 8 {
		t.Errorf("expected 8 transactions of -100, got %d", got)
	}
	if got := len(index.GetByAmountRange(decimal.NewFromInt(-600), decimal.NewFromInt(-200))); got != 1 {
		t.Errorf("expected 1 transaction in range, got %d", got)
	}
	if got := len(index.GetByDateRange(day(9), day(10))); got != 4 {
		t.Errorf("expected 4 transactions on 9th and 10th, got %d", got)
	}

	txns, err := index.FindTransactions(ctx, storage.LedgerQuery{AccountID: "acc", From: day(8), To: day(10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"L-a", "L-near", "L-low", "L-same"}
	got := make([]string, len(txns))
	for i, txn := range txns {
		got[i] = txn.ID
	}
	if !equalIDs(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := index.GetTransaction(ctx, "missing"); !errors.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if txn, err := index.GetTransaction(ctx, "L-edge"); err != nil || txn.ID != "L-edge" {
		t.Errorf("expected L-edge, got %v, %v", txn, err)
	}
}

func TestLoadLedgerIndex(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.SaveTransactions(ctx, candidateLedger()); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	index, err := LoadLedgerIndex(ctx, store, "acc", day(9), day(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := index.GetIndexStats().TotalTransactions; got != 4 {
		t.Errorf("expected 4 transactions, got %d", got)
	}
}

func TestDetectDuplicates(t *testing.T) {
	items := []*models.StatementItem{
		newItem("i1", "-42.00", day(3), "GYM MEMBERSHIP", "G1"),
		newItem("i2", "-42.00", day(3), "GYM MEMBERSHIP", "G1"),
		newItem("i3", "-42.00", day(4), "GYM MEMBERSHIP", "G1"),
		newItem("i4", "15.00", day(3), "Refund", ""),
		newItem("i5", "15.00", day(3), "Other", ""),
	}

	groups := DetectDuplicates(items)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	if len(groups[0].Items) != 2 || groups[0].Items[1].ID != "i2" {
		t.Errorf("unexpected first group %+v", groups[0])
	}
	if groups[0].Confidence < 0.999 {
		t.Errorf("expected full confidence for identical items, got %f", groups[0].Confidence)
	}
	if groups[1].Confidence >= groups[0].Confidence || groups[1].Confidence < 0.6 {
		t.Errorf("unexpected confidence for differing descriptions: %f", groups[1].Confidence)
	}
	if len(DetectDuplicates(items[:1])) != 0 {
		t.Error("expected no groups for a single item")
	}
}

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock("a")
	unlockB := km.Lock("b")

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("a")
		unlock()
		close(done)
	}()

	unlockB()
	select {
	case <-done:
		t.Fatal("second lock on a acquired while held")
	default:
	}

	unlockA()
	<-done

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Errorf("expected released entries to be dropped, got %d", len(km.locks))
	}
}
