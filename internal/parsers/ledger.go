package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// LedgerParserConfig maps header names of a ledger export. The amount is
// read from AmountColumn when present, otherwise as DebitColumn minus
// CreditColumn.
type LedgerParserConfig struct {
	IDColumn          string            `yaml:"idColumn"`
	AccountColumn     string            `yaml:"accountColumn"`
	DateColumn        string            `yaml:"dateColumn"`
	DescriptionColumn string            `yaml:"descriptionColumn"`
	ReferenceColumn   string            `yaml:"referenceColumn"`
	AmountColumn      string            `yaml:"amountColumn"`
	DebitColumn       string            `yaml:"debitColumn"`
	CreditColumn      string            `yaml:"creditColumn"`
	DateFormat        string            `yaml:"dateFormat"`
	Delimiter         string            `yaml:"delimiter"`
	DefaultAccountID  string            `yaml:"defaultAccountId"`
	ColumnAliases     map[string]string `yaml:"columnAliases,omitempty"`
}

// DefaultLedgerParserConfig returns the standard ledger export mapping
func DefaultLedgerParserConfig() *LedgerParserConfig {
	return &LedgerParserConfig{
		IDColumn:          "id",
		AccountColumn:     "account",
		DateColumn:        "date",
		DescriptionColumn: "description",
		ReferenceColumn:   "reference",
		AmountColumn:      "amount",
		DebitColumn:       "debit",
		CreditColumn:      "credit",
		DateFormat:        "yyyy-MM-dd",
		Delimiter:         ",",
	}
}

// GetColumnName returns the header for a standard name, checking aliases first
func (c *LedgerParserConfig) GetColumnName(standardName string) string {
	if alias, ok := c.ColumnAliases[standardName]; ok {
		return alias
	}
	switch standardName {
	case "id":
		return c.IDColumn
	case "account":
		return c.AccountColumn
	case "date":
		return c.DateColumn
	case "description":
		return c.DescriptionColumn
	case "reference":
		return c.ReferenceColumn
	case "amount":
		return c.AmountColumn
	case "debit":
		return c.DebitColumn
	case "credit":
		return c.CreditColumn
	default:
		return standardName
	}
}

// LedgerParser reads ledger transaction exports with a header row
type LedgerParser struct {
	*BaseParser
	config *LedgerParserConfig
	layout string
}

// NewLedgerParser creates a ledger parser
func NewLedgerParser(config *LedgerParserConfig) *LedgerParser {
	if config == nil {
		config = DefaultLedgerParserConfig()
	}
	delim := ','
	if config.Delimiter != "" {
		delim = []rune(config.Delimiter)[0]
	}
	return &LedgerParser{
		BaseParser: NewBaseParser(delim, "ledger_parser"),
		config:     config,
		layout:     DateLayout(config.DateFormat),
	}
}

type ledgerColumns struct {
	id, account, date, description, reference, amount, debit, credit int
}

func (lp *LedgerParser) resolveColumns(headers []string) (ledgerColumns, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	lookup := func(name string) int {
		if i, ok := index[strings.ToLower(lp.config.GetColumnName(name))]; ok {
			return i
		}
		return -1
	}

	cols := ledgerColumns{
		id: lookup("id"), account: lookup("account"), date: lookup("date"),
		description: lookup("description"), reference: lookup("reference"),
		amount: lookup("amount"), debit: lookup("debit"), credit: lookup("credit"),
	}

	var missing []string
	if cols.date < 0 {
		missing = append(missing, lp.config.GetColumnName("date"))
	}
	if cols.amount < 0 && (cols.debit < 0 || cols.credit < 0) {
		missing = append(missing, lp.config.GetColumnName("amount")+" or "+
			lp.config.GetColumnName("debit")+"/"+lp.config.GetColumnName("credit"))
	}
	if cols.account < 0 && lp.config.DefaultAccountID == "" {
		missing = append(missing, lp.config.GetColumnName("account"))
	}
	if len(missing) > 0 {
		return cols, errors.ParseError(errors.CodeMissingColumn, "", 1, strings.Join(missing, ", "), "", nil).
			WithSuggestion("ensure the ledger export has these headers, or set a default account")
	}
	return cols, nil
}

// Parse reads all transactions. Rows that fail to parse are reported in the
// returned stats and skipped.
func (lp *LedgerParser) Parse(ctx context.Context, r io.Reader) ([]*models.LedgerTransaction, *ParseStats, error) {
	reader := lp.NewReader(r)
	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	headers, err := lp.ReadRecord(reader, parseCtx)
	if err == io.EOF {
		return nil, stats, errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
			WithSuggestion("ensure the file contains header and data rows")
	}
	if err != nil {
		return nil, stats, err
	}
	parseCtx.Headers = headers

	cols, err := lp.resolveColumns(headers)
	if err != nil {
		return nil, stats, err
	}

	var txns []*models.LedgerTransaction
	for {
		record, err := lp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := parseCtx.Err(); ctxErr != nil {
				return nil, stats, ctxErr
			}
			stats.AddError(&ParseError{Line: parseCtx.LineNumber, Message: "failed to read record", Err: err})
			continue
		}

		stats.RecordsParsed++
		txn, perr := lp.parseRecord(record, cols, parseCtx.LineNumber)
		if perr != nil {
			stats.AddError(perr)
			continue
		}
		txns = append(txns, txn)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	lp.logger.WithFields(logger.Fields{
		"transactions": len(txns),
		"errors":       stats.ErrorCount,
	}).Debug("Parsed ledger export")

	return txns, stats, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (lp *LedgerParser) parseRecord(record []string, cols ledgerColumns, line int) (*models.LedgerTransaction, *ParseError) {
	dateStr := cell(record, cols.date)
	date, err := time.Parse(lp.layout, dateStr)
	if err != nil {
		return nil, &ParseError{Line: line, Column: cols.date, Field: "date", Value: dateStr,
			Message: "invalid date", Code: errors.CodeInvalidDate, Err: err}
	}

	amount, perr := lp.amount(record, cols, line)
	if perr != nil {
		return nil, perr
	}

	id := cell(record, cols.id)
	if id == "" {
		id = uuid.NewString()
	}
	account := cell(record, cols.account)
	if account == "" {
		account = lp.config.DefaultAccountID
	}

	txn := &models.LedgerTransaction{
		ID:          id,
		AccountID:   account,
		Date:        date,
		Description: cell(record, cols.description),
		Reference:   cell(record, cols.reference),
		Amount:      amount,
	}
	if err := txn.Validate(); err != nil {
		return nil, &ParseError{Line: line, Message: "ledger transaction validation failed",
			Code: errors.CodeInvalidFormat, Err: err}
	}
	return txn, nil
}

func (lp *LedgerParser) amount(record []string, cols ledgerColumns, line int) (decimal.Decimal, *ParseError) {
	if raw := cell(record, cols.amount); cols.amount >= 0 && raw != "" {
		amount, err := ParseAmount(raw, ".", ",")
		if err != nil {
			return decimal.Zero, &ParseError{Line: line, Column: cols.amount, Field: "amount", Value: raw,
				Message: "invalid amount", Code: errors.CodeInvalidAmount, Err: err}
		}
		return amount, nil
	}

	parse := func(idx int, field string) (decimal.Decimal, *ParseError) {
		raw := cell(record, idx)
		if raw == "" {
			return decimal.Zero, nil
		}
		v, err := ParseAmount(raw, ".", ",")
		if err != nil {
			return decimal.Zero, &ParseError{Line: line, Column: idx, Field: field, Value: raw,
				Message: fmt.Sprintf("invalid %s amount", field), Code: errors.CodeInvalidAmount, Err: err}
		}
		return v, nil
	}
	debit, perr := parse(cols.debit, "debit")
	if perr != nil {
		return decimal.Zero, perr
	}
	credit, perr := parse(cols.credit, "credit")
	if perr != nil {
		return decimal.Zero, perr
	}
	return debit.Sub(credit), nil
}
