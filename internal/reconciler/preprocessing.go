package reconciler

import (
	"regexp"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/models"
)

// PreprocessingConfig contains configuration for statement entry cleanup
type PreprocessingConfig struct {
	// TrimWhitespace trims descriptions and references
	TrimWhitespace bool

	// CollapseSpaces replaces runs of whitespace inside descriptions by one space
	CollapseSpaces bool

	// NormalizeTimezone moves every date to its calendar day in UTC
	NormalizeTimezone bool

	// MaxDescriptionLength truncates longer descriptions; 0 keeps them whole
	MaxDescriptionLength int
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		TrimWhitespace:       true,
		CollapseSpaces:       true,
		NormalizeTimezone:    true,
		MaxDescriptionLength: 0,
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// DataPreprocessor normalizes parsed statement entries before they become items
type DataPreprocessor struct {
	config *PreprocessingConfig
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &DataPreprocessor{config: config}
}

// PreprocessEntries returns normalized copies of entries in the same order
func (dp *DataPreprocessor) PreprocessEntries(entries []models.StatementEntry) []models.StatementEntry {
	out := make([]models.StatementEntry, len(entries))
	for i, e := range entries {
		out[i] = dp.preprocessEntry(e)
	}
	return out
}

func (dp *DataPreprocessor) preprocessEntry(e models.StatementEntry) models.StatementEntry {
	e.Description = dp.normalizeString(e.Description)
	if dp.config.TrimWhitespace {
		e.Reference = strings.TrimSpace(e.Reference)
	}
	if dp.config.MaxDescriptionLength > 0 {
		if r := []rune(e.Description); len(r) > dp.config.MaxDescriptionLength {
			e.Description = string(r[:dp.config.MaxDescriptionLength])
		}
	}
	if dp.config.NormalizeTimezone {
		e.Date = normalizeDate(e.Date)
	}
	if e.Type == "" {
		e.Type = models.TypeForAmount(e.Amount)
	}
	return e
}

func (dp *DataPreprocessor) normalizeString(s string) string {
	if dp.config.CollapseSpaces {
		s = whitespaceRun.ReplaceAllString(s, " ")
	}
	if dp.config.TrimWhitespace {
		s = strings.TrimSpace(s)
	}
	return s
}

// normalizeDate keeps the calendar day of t in its own location
func normalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return models.CalendarDay(t)
}
