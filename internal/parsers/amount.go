package parsers

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a monetary string using the given separators.
// It accepts currency symbols, surrounding whitespace, a leading or
// trailing minus, a leading plus and accounting-style parentheses for
// negatives, e.g. "(1.234,56 €)" with decimal "," and thousands ".".
func ParseAmount(raw, decimalSep, thousandsSep string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}

	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = s[:len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	if thousandsSep != "" {
		s = strings.ReplaceAll(s, thousandsSep, "")
	}
	if decimalSep != "" && decimalSep != "." {
		if strings.Contains(s, ".") {
			return decimal.Zero, fmt.Errorf("unexpected '.' in amount %q", raw)
		}
		s = strings.ReplaceAll(s, decimalSep, ".")
	}

	if s == "" || strings.Count(s, ".") > 1 {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, fmt.Errorf("invalid character %q in amount %q", r, raw)
		}
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}
