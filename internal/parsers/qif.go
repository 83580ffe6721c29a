package parsers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

// qifDateLayouts are tried in order when no explicit format is configured
var qifDateLayouts = []string{
	"01/02/2006", "1/2/2006", "01/02'06", "1/2'06", "01/02/06", "1/2/06", "2006-01-02",
}

// QIFParser reads Quicken interchange (QIF) bank account exports
type QIFParser struct {
	layouts []string
}

// NewQIFParser creates a QIF parser. A non-empty dateFormat is tried
// before the common QIF layouts.
func NewQIFParser(dateFormat string) *QIFParser {
	layouts := make([]string, 0, len(qifDateLayouts)+1)
	if strings.TrimSpace(dateFormat) != "" {
		layouts = append(layouts, DateLayout(dateFormat))
	}
	return &QIFParser{layouts: append(layouts, qifDateLayouts...)}
}

// Format implements StatementParser
func (p *QIFParser) Format() models.StatementFormat {
	return models.FormatQIF
}

type qifRecord struct {
	line                int
	date, amount        string
	payee, memo, number string
}

// Parse implements StatementParser
func (p *QIFParser) Parse(ctx context.Context, r io.Reader) (*ParseResult, error) {
	scanner := bufio.NewScanner(r)
	stats := NewParseStats()
	result := &ParseResult{Stats: stats}

	lineNo := 0
	var cur *qifRecord
	flush := func() {
		if cur == nil {
			return
		}
		stats.RecordsParsed++
		entry, perr := p.toEntry(cur)
		if perr != nil {
			stats.AddError(perr)
		} else {
			result.Entries = append(result.Entries, entry)
			stats.RecordsValid++
		}
		cur = nil
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "!") {
			continue
		}
		if line == "^" {
			flush()
			continue
		}

		if cur == nil {
			cur = &qifRecord{line: lineNo}
		}
		value := strings.TrimSpace(line[1:])
		switch line[0] {
		case 'D':
			cur.date = value
		case 'T', 'U':
			cur.amount = value
		case 'P':
			cur.payee = value
		case 'M':
			cur.memo = value
		case 'N':
			cur.number = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, "", lineNo, "", "", err)
	}
	// tolerate a missing final terminator
	flush()

	stats.TotalLines = lineNo
	return result, nil
}

func (p *QIFParser) toEntry(rec *qifRecord) (models.StatementEntry, *ParseError) {
	entry := models.StatementEntry{Line: rec.line, Reference: rec.number}

	if rec.date == "" {
		return entry, &ParseError{Line: rec.line, Field: "date", Message: "record has no D line", Code: errors.CodeMissingColumn}
	}
	var parsed bool
	for _, layout := range p.layouts {
		if d, err := time.Parse(layout, strings.ReplaceAll(rec.date, " ", "")); err == nil {
			entry.Date = d
			parsed = true
			break
		}
	}
	if !parsed {
		return entry, &ParseError{Line: rec.line, Field: "date", Value: rec.date,
			Message: "unrecognised QIF date", Code: errors.CodeInvalidDate}
	}

	amount, err := ParseAmount(rec.amount, ".", ",")
	if err != nil {
		return entry, &ParseError{Line: rec.line, Field: "amount", Value: rec.amount,
			Message: "invalid amount", Code: errors.CodeInvalidAmount, Err: err}
	}
	entry.Amount = amount
	entry.Type = models.TypeForAmount(amount)

	entry.Description = rec.payee
	if entry.Description == "" {
		entry.Description = rec.memo
	} else if rec.memo != "" {
		entry.Description = fmt.Sprintf("%s %s", rec.payee, rec.memo)
	}
	return entry, nil
}
