package parsers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ImportConfig is the column mapping for delimited statement files.
// Column indices are zero based; -1 marks an optional column as absent.
type ImportConfig struct {
	Name               string `yaml:"name,omitempty" json:"name,omitempty"`
	DateFormat         string `yaml:"dateFormat" json:"dateFormat"`
	DecimalSeparator   string `yaml:"decimalSeparator" json:"decimalSeparator"`
	ThousandsSeparator string `yaml:"thousandsSeparator" json:"thousandsSeparator"`
	HasHeaderRow       bool   `yaml:"hasHeaderRow" json:"hasHeaderRow"`
	DateColumn         int    `yaml:"dateColumn" json:"dateColumn"`
	DescriptionColumn  int    `yaml:"descriptionColumn" json:"descriptionColumn"`
	AmountColumn       int    `yaml:"amountColumn" json:"amountColumn"`
	ReferenceColumn    int    `yaml:"referenceColumn" json:"referenceColumn"`
	BalanceColumn      int    `yaml:"balanceColumn" json:"balanceColumn"`
	CreditIndicator    string `yaml:"creditIndicator,omitempty" json:"creditIndicator,omitempty"`
	DebitIndicator     string `yaml:"debitIndicator,omitempty" json:"debitIndicator,omitempty"`
	Delimiter          string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
}

// DefaultImportConfig returns the mapping for a plain
// date,description,amount file with a header row
func DefaultImportConfig() *ImportConfig {
	return &ImportConfig{
		Name:               "standard",
		DateFormat:         "yyyy-MM-dd",
		DecimalSeparator:   ".",
		ThousandsSeparator: ",",
		HasHeaderRow:       true,
		DateColumn:         0,
		DescriptionColumn:  1,
		AmountColumn:       2,
		ReferenceColumn:    -1,
		BalanceColumn:      -1,
		Delimiter:          ",",
	}
}

var importProfiles = map[string]*ImportConfig{
	"standard": DefaultImportConfig(),
	"european": {
		Name:               "european",
		DateFormat:         "dd.MM.yyyy",
		DecimalSeparator:   ",",
		ThousandsSeparator: ".",
		HasHeaderRow:       true,
		DateColumn:         0,
		DescriptionColumn:  1,
		AmountColumn:       2,
		ReferenceColumn:    -1,
		BalanceColumn:      3,
		Delimiter:          ";",
	},
	"us_bank": {
		Name:               "us_bank",
		DateFormat:         "MM/dd/yyyy",
		DecimalSeparator:   ".",
		ThousandsSeparator: ",",
		HasHeaderRow:       true,
		DateColumn:         0,
		DescriptionColumn:  2,
		AmountColumn:       3,
		ReferenceColumn:    1,
		BalanceColumn:      4,
		Delimiter:          ",",
	},
	"indicator": {
		Name:               "indicator",
		DateFormat:         "dd/MM/yyyy",
		DecimalSeparator:   ".",
		ThousandsSeparator: ",",
		HasHeaderRow:       true,
		DateColumn:         0,
		DescriptionColumn:  1,
		AmountColumn:       2,
		ReferenceColumn:    -1,
		BalanceColumn:      -1,
		CreditIndicator:    "CR",
		DebitIndicator:     "DR",
		Delimiter:          ",",
	},
}

// GetImportProfile returns a copy of a named built-in mapping, or nil
func GetImportProfile(name string) *ImportConfig {
	if profile, ok := importProfiles[strings.ToLower(name)]; ok {
		return profile.Clone()
	}
	return nil
}

// ImportProfileNames lists the built-in mappings
func ImportProfileNames() []string {
	names := make([]string, 0, len(importProfiles))
	for name := range importProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the configuration
func (c *ImportConfig) Clone() *ImportConfig {
	clone := *c
	return &clone
}

// Validate checks that the mapping is usable
func (c *ImportConfig) Validate() error {
	if c.DateColumn < 0 || c.DescriptionColumn < 0 || c.AmountColumn < 0 {
		return fmt.Errorf("date, description and amount columns are required")
	}

	seen := map[int]string{}
	for name, idx := range map[string]int{
		"dateColumn":        c.DateColumn,
		"descriptionColumn": c.DescriptionColumn,
		"amountColumn":      c.AmountColumn,
		"referenceColumn":   c.ReferenceColumn,
		"balanceColumn":     c.BalanceColumn,
	} {
		if idx < 0 {
			continue
		}
		if other, dup := seen[idx]; dup {
			return fmt.Errorf("%s and %s both map to column %d", name, other, idx)
		}
		seen[idx] = name
	}

	if c.DecimalSeparator == "" {
		return fmt.Errorf("decimal separator cannot be empty")
	}
	if c.DecimalSeparator == c.ThousandsSeparator {
		return fmt.Errorf("decimal and thousands separators must differ")
	}
	if strings.TrimSpace(c.DateFormat) == "" {
		return fmt.Errorf("date format cannot be empty")
	}
	if len([]rune(c.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if c.CreditIndicator != "" && strings.EqualFold(c.CreditIndicator, c.DebitIndicator) {
		return fmt.Errorf("credit and debit indicators must differ")
	}
	return nil
}

// DelimiterRune returns the field delimiter, defaulting to a comma
func (c *ImportConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return ','
	}
	if c.Delimiter == `\t` {
		return '\t'
	}
	return []rune(c.Delimiter)[0]
}

// Layout returns the Go time layout for DateFormat
func (c *ImportConfig) Layout() string {
	return DateLayout(c.DateFormat)
}

// LoadImportConfigFile reads a YAML column mapping. Keys missing from the
// file keep their DefaultImportConfig values.
func LoadImportConfigFile(fs afero.Fs, path string) (*ImportConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read import config: %w", err)
	}
	return ParseImportConfig(data)
}

// ParseImportConfig decodes a YAML column mapping
func ParseImportConfig(data []byte) (*ImportConfig, error) {
	cfg := DefaultImportConfig()
	cfg.Name = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode import config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid import config: %w", err)
	}
	return cfg, nil
}

// dateTokens maps pattern tokens to Go layout elements, longest first
var dateTokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"yy", "06"},
	{"MM", "01"},
	{"dd", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
	{"M", "1"},
	{"d", "2"},
}

// DateLayout translates a yyyy/MM/dd style pattern into a Go layout.
// Strings that already contain a Go reference year are returned unchanged.
func DateLayout(format string) string {
	if strings.Contains(format, "2006") || (strings.Contains(format, "06") && !strings.ContainsAny(format, "yMd")) {
		return format
	}

	var b strings.Builder
	for i := 0; i < len(format); {
		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}
