// Package matcher scores statement items against ledger transactions and
// commits matches.
//
// The package is built in layers:
//  1. Scorer: a pure, deterministic 0..100 score from amount, date,
//     description and reference sub-scores
//  2. CandidateGenerator: ledger transactions inside a date window around an
//     item, scored and ranked, below-floor candidates discarded
//  3. AutoMatcher: walks the unmatched items of a statement and commits the
//     best candidate when it clears the auto-match threshold, never linking
//     one ledger transaction to two items
//
// Example usage:
//
//	cfg := matcher.DefaultMatchingConfig()
//	am, err := matcher.NewAutoMatcher(store, cfg, bus)
//	if err != nil {
//		return err
//	}
//	run, err := am.Run(ctx, statementID)
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the thresholds and windows used for matching. The
// sub-score bands of the Scorer are fixed; the config decides which scores
// are good enough.
type MatchingConfig struct {
	// AutoMatchThreshold is the minimum score the auto-matcher commits
	AutoMatchThreshold int `json:"auto_match_threshold" mapstructure:"auto_match_threshold"`

	// ExactMatchThreshold marks a committed match as exact
	ExactMatchThreshold int `json:"exact_match_threshold" mapstructure:"exact_match_threshold"`

	// CandidateFloor discards candidates scoring below it
	CandidateFloor int `json:"candidate_floor" mapstructure:"candidate_floor"`

	// CandidateWindowDays is the ± window, in calendar days, searched around an item date
	CandidateWindowDays int `json:"candidate_window_days" mapstructure:"candidate_window_days"`

	// DateToleranceDays is the distance that still earns the reduced date score
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days"`

	// AmountTolerance is the largest difference that still earns the reduced amount score
	AmountTolerance decimal.Decimal `json:"amount_tolerance" mapstructure:"-"`

	// MaxCandidates truncates candidate lists; 0 keeps all of them
	MaxCandidates int `json:"max_candidates" mapstructure:"max_candidates"`

	// Workers bounds the goroutines used to score candidates; 0 uses GOMAXPROCS
	Workers int `json:"workers" mapstructure:"workers"`
}

// DefaultMatchingConfig returns the standard matching configuration
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AutoMatchThreshold:  80,
		ExactMatchThreshold: 95,
		CandidateFloor:      50,
		CandidateWindowDays: 7,
		DateToleranceDays:   3,
		AmountTolerance:     decimal.NewFromInt(1),
		MaxCandidates:       0,
		Workers:             0,
	}
}

// StrictMatchingConfig only auto-commits near-certain matches
func StrictMatchingConfig() *MatchingConfig {
	cfg := DefaultMatchingConfig()
	cfg.AutoMatchThreshold = 90
	cfg.CandidateFloor = 60
	cfg.CandidateWindowDays = 3
	return cfg
}

// RelaxedMatchingConfig widens the candidate search for messy statements
func RelaxedMatchingConfig() *MatchingConfig {
	cfg := DefaultMatchingConfig()
	cfg.AutoMatchThreshold = 75
	cfg.CandidateFloor = 40
	cfg.CandidateWindowDays = 14
	return cfg
}

// GetMatchingProfile returns a named preset, or nil for unknown names
func GetMatchingProfile(name string) *MatchingConfig {
	switch name {
	case "", "default":
		return DefaultMatchingConfig()
	case "strict":
		return StrictMatchingConfig()
	case "relaxed":
		return RelaxedMatchingConfig()
	default:
		return nil
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.AutoMatchThreshold < 0 || mc.AutoMatchThreshold > 100 {
		return fmt.Errorf("auto-match threshold must be between 0 and 100: %d", mc.AutoMatchThreshold)
	}

	if mc.ExactMatchThreshold < mc.AutoMatchThreshold || mc.ExactMatchThreshold > 100 {
		return fmt.Errorf("exact-match threshold must be between the auto-match threshold and 100: %d", mc.ExactMatchThreshold)
	}

	if mc.CandidateFloor < 0 || mc.CandidateFloor > mc.AutoMatchThreshold {
		return fmt.Errorf("candidate floor must be between 0 and the auto-match threshold: %d", mc.CandidateFloor)
	}

	if mc.CandidateWindowDays < 0 {
		return fmt.Errorf("candidate window days cannot be negative: %d", mc.CandidateWindowDays)
	}

	if mc.DateToleranceDays < 0 || mc.DateToleranceDays > mc.CandidateWindowDays {
		return fmt.Errorf("date tolerance days must be between 0 and the candidate window: %d", mc.DateToleranceDays)
	}

	if mc.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.AmountTolerance)
	}

	if mc.MaxCandidates < 0 {
		return fmt.Errorf("max candidates cannot be negative: %d", mc.MaxCandidates)
	}

	if mc.Workers < 0 {
		return fmt.Errorf("workers cannot be negative: %d", mc.Workers)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// IsExact reports whether score marks an exact match
func (mc *MatchingConfig) IsExact(score int) bool {
	return score >= mc.ExactMatchThreshold
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{AutoMatch: %d, Exact: %d, Floor: %d, Window: ±%d days, DateTolerance: %d days, AmountTolerance: %s}",
		mc.AutoMatchThreshold, mc.ExactMatchThreshold, mc.CandidateFloor, mc.CandidateWindowDays,
		mc.DateToleranceDays, mc.AmountTolerance.String())
}
