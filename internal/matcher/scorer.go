package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"golang-bank-reconciliation/internal/models"
)

// Maximum points per factor
const (
	AmountPoints      = 40
	DatePoints        = 30
	DescriptionPoints = 20
	ReferencePoints   = 10
)

// Reduced points for near misses
const (
	amountClosePoints = 30
	dateClosePoints   = 20
)

var cent = decimal.New(1, -2)

// unit costs for insert, delete and substitute
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Scorer computes match scores. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	amountTolerance   decimal.Decimal
	dateToleranceDays int
}

// NewScorer creates a scorer using the tolerances of config
func NewScorer(config *MatchingConfig) *Scorer {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &Scorer{
		amountTolerance:   config.AmountTolerance,
		dateToleranceDays: config.DateToleranceDays,
	}
}

var defaultScorer = NewScorer(nil)

// Score returns the score of item against txn using the default tolerances
func Score(item *models.StatementItem, txn *models.LedgerTransaction) int {
	return defaultScorer.Score(item, txn)
}

// Score returns the 0..100 match score of item against txn
func (s *Scorer) Score(item *models.StatementItem, txn *models.LedgerTransaction) int {
	return s.Breakdown(item, txn).Total()
}

// Breakdown returns the individual sub-scores of item against txn
func (s *Scorer) Breakdown(item *models.StatementItem, txn *models.LedgerTransaction) models.ScoreBreakdown {
	return models.ScoreBreakdown{
		Amount:      s.amountScore(item.Amount, txn.Amount),
		Date:        s.dateScore(item, txn),
		Description: DescriptionScore(item.Description, txn.Description),
		Reference:   ReferenceScore(item.Reference, txn.Reference),
	}
}

func (s *Scorer) amountScore(a, b decimal.Decimal) int {
	diff := a.Sub(b).Abs()
	switch {
	case diff.LessThan(cent):
		return AmountPoints
	case diff.LessThanOrEqual(s.amountTolerance):
		return amountClosePoints
	default:
		return 0
	}
}

func (s *Scorer) dateScore(item *models.StatementItem, txn *models.LedgerTransaction) int {
	days := models.DaysBetween(item.Date, txn.Date)
	switch {
	case days == 0:
		return DatePoints
	case days <= s.dateToleranceDays:
		return dateClosePoints
	default:
		return 0
	}
}

// DescriptionSimilarity returns (maxLen - distance) / maxLen for the
// case-sensitive rune-level edit distance of a and b. Empty input yields 0.
func DescriptionSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings(ra, rb, editOptions)
	return float64(maxLen-dist) / float64(maxLen)
}

// DescriptionScore scales the description similarity to 0..20, truncated
func DescriptionScore(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	maxLen := max(len(ra), len(rb))
	dist := levenshtein.DistanceForStrings(ra, rb, editOptions)
	return DescriptionPoints * (maxLen - dist) / maxLen
}

// ReferenceScore awards full points to equal non-empty references, ignoring case
func ReferenceScore(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(a, b) {
		return ReferencePoints
	}
	return 0
}

// Reason renders a breakdown as a short human-readable explanation
func Reason(b models.ScoreBreakdown) string {
	var parts []string

	switch b.Amount {
	case AmountPoints:
		parts = append(parts, "exact amount")
	case amountClosePoints:
		parts = append(parts, "amount within tolerance")
	default:
		parts = append(parts, "amount differs")
	}

	switch b.Date {
	case DatePoints:
		parts = append(parts, "same day")
	case dateClosePoints:
		parts = append(parts, "date within tolerance")
	default:
		parts = append(parts, "date outside tolerance")
	}

	if b.Description > 0 {
		parts = append(parts, fmt.Sprintf("description %d/%d", b.Description, DescriptionPoints))
	}
	if b.Reference > 0 {
		parts = append(parts, "reference match")
	}

	return strings.Join(parts, ", ")
}
