package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// DelimitedParser reads delimited text statements through an ImportConfig
type DelimitedParser struct {
	*BaseParser
	config *ImportConfig
	layout string
}

// NewDelimitedParser creates a parser for the given column mapping
func NewDelimitedParser(config *ImportConfig) (*DelimitedParser, error) {
	if config == nil {
		config = DefaultImportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "import", config.Name, err)
	}

	p := &DelimitedParser{
		BaseParser: NewBaseParser(config.DelimiterRune(), "delimited_parser"),
		config:     config.Clone(),
		layout:     config.Layout(),
	}
	p.logger.WithFields(logger.Fields{
		"profile":     config.Name,
		"date_layout": p.layout,
		"has_header":  config.HasHeaderRow,
	}).Debug("Created delimited parser")

	return p, nil
}

// Format implements StatementParser
func (p *DelimitedParser) Format() models.StatementFormat {
	return models.FormatCSV
}

// Parse implements StatementParser
func (p *DelimitedParser) Parse(ctx context.Context, r io.Reader) (*ParseResult, error) {
	reader := p.NewReader(r)
	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()
	result := &ParseResult{Stats: stats}

	headerPending := p.config.HasHeaderRow
	for {
		record, err := p.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := parseCtx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			stats.RecordsParsed++
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Message: "failed to read record",
				Code:    errors.CodeInvalidFormat,
				Err:     err,
			})
			continue
		}

		if headerPending {
			parseCtx.Headers = record
			headerPending = false
			continue
		}

		stats.RecordsParsed++
		entry, parseErr := p.parseRecord(record, parseCtx.LineNumber)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}
		result.Entries = append(result.Entries, entry)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber
	p.logger.WithFields(logger.Fields{
		"records": stats.RecordsParsed,
		"valid":   stats.RecordsValid,
		"errors":  stats.ErrorCount,
	}).Debug("Parsed delimited statement")

	return result, nil
}

func (p *DelimitedParser) field(record []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[idx]), true
}

func (p *DelimitedParser) parseRecord(record []string, line int) (models.StatementEntry, *ParseError) {
	entry := models.StatementEntry{Line: line}

	dateStr, ok := p.field(record, p.config.DateColumn)
	if !ok {
		return entry, missingColumn(line, p.config.DateColumn, "date")
	}
	date, err := time.Parse(p.layout, dateStr)
	if err != nil {
		return entry, &ParseError{Line: line, Column: p.config.DateColumn, Field: "date", Value: dateStr,
			Message: fmt.Sprintf("date does not match format %s", p.config.DateFormat), Code: errors.CodeInvalidDate, Err: err}
	}
	entry.Date = date

	description, ok := p.field(record, p.config.DescriptionColumn)
	if !ok {
		return entry, missingColumn(line, p.config.DescriptionColumn, "description")
	}
	entry.Description = description

	amountStr, ok := p.field(record, p.config.AmountColumn)
	if !ok {
		return entry, missingColumn(line, p.config.AmountColumn, "amount")
	}
	kind, cleaned := p.indicatorKind(amountStr, record)
	amount, err := ParseAmount(cleaned, p.config.DecimalSeparator, p.config.ThousandsSeparator)
	if err != nil {
		return entry, &ParseError{Line: line, Column: p.config.AmountColumn, Field: "amount", Value: amountStr,
			Message: "invalid amount", Code: errors.CodeInvalidAmount, Err: err}
	}

	switch kind {
	case models.TransactionTypeDebit:
		amount = amount.Abs().Neg()
	case models.TransactionTypeCredit:
		amount = amount.Abs()
	default:
		kind = models.TypeForAmount(amount)
	}
	entry.Amount = amount
	entry.Type = kind

	if ref, ok := p.field(record, p.config.ReferenceColumn); ok {
		entry.Reference = ref
	}

	if balStr, ok := p.field(record, p.config.BalanceColumn); ok && balStr != "" {
		if bal, err := ParseAmount(balStr, p.config.DecimalSeparator, p.config.ThousandsSeparator); err == nil {
			entry.BalanceHint = &bal
		} else {
			p.logger.WithFields(logger.Fields{"line": line, "value": balStr}).Debug("Ignoring unparseable balance")
		}
	}

	return entry, nil
}

// indicatorKind looks for the credit/debit indicator in the amount field
// first and then as a whole field elsewhere in the row. It returns the kind
// found (empty when none) and the amount text with the indicator removed.
func (p *DelimitedParser) indicatorKind(amountField string, record []string) (models.TransactionType, string) {
	credit := strings.ToUpper(strings.TrimSpace(p.config.CreditIndicator))
	debit := strings.ToUpper(strings.TrimSpace(p.config.DebitIndicator))
	if credit == "" && debit == "" {
		return "", amountField
	}

	for _, c := range []struct {
		ind  string
		kind models.TransactionType
	}{{debit, models.TransactionTypeDebit}, {credit, models.TransactionTypeCredit}} {
		if c.ind == "" {
			continue
		}
		if idx := indexFold(amountField, c.ind); idx >= 0 {
			cleaned := amountField[:idx] + amountField[idx+len(c.ind):]
			return c.kind, strings.TrimSpace(cleaned)
		}
	}

	for i, f := range record {
		if i == p.config.AmountColumn || i == p.config.DescriptionColumn {
			continue
		}
		f = strings.ToUpper(strings.TrimSpace(f))
		switch {
		case debit != "" && f == debit:
			return models.TransactionTypeDebit, amountField
		case credit != "" && f == credit:
			return models.TransactionTypeCredit, amountField
		}
	}
	return "", amountField
}

func missingColumn(line, column int, field string) *ParseError {
	return &ParseError{Line: line, Column: column, Field: field,
		Message: fmt.Sprintf("row has no column %d", column), Code: errors.CodeMissingColumn}
}

// indexFold is a case-insensitive strings.Index
func indexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
