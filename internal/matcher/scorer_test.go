package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func newItem(id string, amount string, date time.Time, description, reference string) *models.StatementItem {
	amt := decimal.RequireFromString(amount)
	return &models.StatementItem{
		ID:          id,
		Date:        date,
		Description: description,
		Reference:   reference,
		Amount:      amt,
		Type:        models.TypeForAmount(amt),
		Status:      models.StatusUnmatched,
	}
}

func newTxn(id, account, amount string, date time.Time, description, reference string) *models.LedgerTransaction {
	return &models.LedgerTransaction{
		ID:          id,
		AccountID:   account,
		Date:        date,
		Description: description,
		Reference:   reference,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestScoreIdenticalFields(t *testing.T) {
	item := newItem("i1", "1500.00", day(10), "DEPOSIT FROM CUSTOMER ABC", "DEP001")
	txn := newTxn("t1", "acc", "1500.00", day(10), "DEPOSIT FROM CUSTOMER ABC", "DEP001")

	if got := Score(item, txn); got != 100 {
		t.Errorf("expected score 100, got %d", got)
	}
}

func TestScoreNearMiss(t *testing.T) {
	item := newItem("i1", "-250.00", day(10), "UTILITY PAYMENT", "")
	txn := newTxn("t1", "acc", "-250.01", day(11), "UTILITY PAYMENT", "")

	b := NewScorer(nil).Breakdown(item, txn)
	want := models.ScoreBreakdown{Amount: 30, Date: 20, Description: 20, Reference: 0}
	if b != want {
		t.Errorf("expected breakdown %+v, got %+v", want, b)
	}
	if b.Total() != 70 {
		t.Errorf("expected total 70, got %d", b.Total())
	}
}

func TestAmountBands(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"100.00", "100.00", 40},
		{"100.00", "100.004", 40},
		{"100.00", "100.01", 30},
		{"100.00", "99.50", 30},
		{"100.00", "101.00", 30},
		{"100.00", "101.01", 0},
		{"100.00", "-100.00", 0},
	}

	s := NewScorer(nil)
	for _, tt := range tests {
		item := newItem("i", tt.a, day(1), "", "")
		txn := newTxn("t", "acc", tt.b, day(1), "", "")
		if got := s.Breakdown(item, txn).Amount; got != tt.want {
			t.Errorf("amount %s vs %s: expected %d, got %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestDateBands(t *testing.T) {
	base := time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		other time.Time
		want  int
	}{
		{"same day different time", time.Date(2024, 1, 10, 0, 5, 0, 0, time.UTC), 30},
		{"one day after", day(11), 20},
		{"three days before", day(7), 20},
		{"four days after", day(14), 0},
	}

	s := NewScorer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := newItem("i", "1", base, "", "")
			txn := newTxn("t", "acc", "1", tt.other, "", "")
			if got := s.Breakdown(item, txn).Date; got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestDescriptionScore(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"Coffee Shop", "Coffee Shop", 20},
		{"kitten", "sitting", 11}, // distance 3 of 7, truncated
		{"abc", "ABC", 0},
		{"", "", 0},
		{"", "anything", 0},
		{"Café", "Cafe", 15},
	}
	for _, tt := range tests {
		if got := DescriptionScore(tt.a, tt.b); got != tt.want {
			t.Errorf("DescriptionScore(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if sim := DescriptionSimilarity("kitten", "sitting"); sim < 0.57 || sim > 0.58 {
		t.Errorf("unexpected similarity %f", sim)
	}
}

func TestReferenceScore(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"DEP001", "dep001", 10},
		{" CHQ12 ", "chq12", 10},
		{"", "", 0},
		{"A1", "", 0},
		{"A1", "A2", 0},
	}
	for _, tt := range tests {
		if got := ReferenceScore(tt.a, tt.b); got != tt.want {
			t.Errorf("ReferenceScore(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestScoreBoundsAndSymmetry(t *testing.T) {
	amounts := []string{"0", "10.00", "-10.00", "10.50", "1000"}
	descriptions := []string{"", "Rent", "RENT MARCH", "Transfer to savings"}
	refs := []string{"", "R1", "r1"}

	for ai, a := range amounts {
		for bi, b := range amounts {
			for di, da := range descriptions {
				db := descriptions[(di+bi)%len(descriptions)]
				ra := refs[ai%len(refs)]
				rb := refs[(ai+bi)%len(refs)]
				dateA := day(10)
				dateB := day(10 + (ai+di)%5)

				forward := Score(newItem("i", a, dateA, da, ra), newTxn("t", "acc", b, dateB, db, rb))
				backward := Score(newItem("i", b, dateB, db, rb), newTxn("t", "acc", a, dateA, da, ra))

				if forward < 0 || forward > 100 {
					t.Fatalf("score %d out of bounds", forward)
				}
				if forward != backward {
					t.Fatalf("score not symmetric: %d vs %d (%s/%s %q/%q)", forward, backward, a, b, da, db)
				}
			}
		}
	}
}

func TestReason(t *testing.T) {
	got := Reason(models.ScoreBreakdown{Amount: 40, Date: 20, Description: 15, Reference: 10})
	want := "exact amount, date within tolerance, description 15/20, reference match"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestMatchingConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *MatchingConfig)
		ok     bool
	}{
		{"default", func(c *MatchingConfig) {}, true},
		{"threshold above 100", func(c *MatchingConfig) { c.AutoMatchThreshold = 101 }, false},
		{"exact below auto", func(c *MatchingConfig) { c.ExactMatchThreshold = 70 }, false},
		{"floor above auto", func(c *MatchingConfig) { c.CandidateFloor = 85 }, false},
		{"tolerance wider than window", func(c *MatchingConfig) { c.DateToleranceDays = 10 }, false},
		{"negative amount tolerance", func(c *MatchingConfig) { c.AmountTolerance = decimal.NewFromInt(-1) }, false},
		{"negative workers", func(c *MatchingConfig) { c.Workers = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMatchingConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}

	for _, name := range []string{"default", "strict", "relaxed"} {
		cfg := GetMatchingProfile(name)
		if cfg == nil {
			t.Fatalf("missing profile %s", name)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("profile %s invalid: %v", name, err)
		}
	}
	if GetMatchingProfile("bogus") != nil {
		t.Error("expected nil for unknown profile")
	}
}
