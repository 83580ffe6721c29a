// Package parsers turns raw bank statement exports into normalized
// statement entries and ledger exports into ledger transactions.
//
// Statement formats are pluggable through the StatementParser interface:
//   - DelimitedParser: CSV and other delimited text driven by an ImportConfig
//     column mapping
//   - QIFParser: Quicken interchange files
//   - OFXParser: Open Financial Exchange files (SGML or XML flavoured)
//
// Parsers never abort on a bad row. Row-level problems are collected in
// ParseStats and the caller decides whether to reject the whole import or
// skip the offending rows.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// ParseError describes a row that could not be converted
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Code    errors.ErrorCode
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s: %v",
			e.Line, e.Column, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s",
		e.Line, e.Column, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ToReconcilerError converts the row error into the application taxonomy
func (e *ParseError) ToReconcilerError(file string) *errors.ReconcilerError {
	code := e.Code
	if code == "" {
		code = errors.CodeInvalidFormat
	}
	cause := e.Err
	if cause == nil && e.Message != "" {
		cause = fmt.Errorf("%s", e.Message)
	}
	return errors.ParseError(code, file, e.Line, e.Field, e.Value, cause)
}

// ParseResult is the output of a statement parser
type ParseResult struct {
	Entries []models.StatementEntry
	Stats   *ParseStats
}

// StatementParser converts one statement format into normalized entries
type StatementParser interface {
	Format() models.StatementFormat
	Parse(ctx context.Context, r io.Reader) (*ParseResult, error)
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	LineNumber int
	Headers    []string
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{ctx: ctx}
}

// Err returns the context error once parsing has been cancelled
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// BaseParser provides common delimited-text reading functionality
type BaseParser struct {
	delimiter rune
	logger    logger.Logger
}

// NewBaseParser creates a BaseParser for the given delimiter
func NewBaseParser(delimiter rune, component string) *BaseParser {
	if delimiter == 0 {
		delimiter = ','
	}
	return &BaseParser{
		delimiter: delimiter,
		logger:    logger.GetGlobalLogger().WithComponent(component),
	}
}

// NewReader wraps r in a csv.Reader configured for this parser
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// ReadRecord returns the next non-empty record. io.EOF marks the end of input.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if err := parseCtx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			line := parseCtx.LineNumber + 1
			if csvErr, ok := err.(*csv.ParseError); ok {
				line = csvErr.StartLine
			}
			parseCtx.LineNumber = line
			return nil, errors.ParseError(errors.CodeInvalidFormat, "", line, "", "", err)
		}

		line, _ := reader.FieldPos(0)
		parseCtx.LineNumber = line

		if isEmptyRecord(record) {
			continue
		}
		for i, field := range record {
			if !utf8.ValidString(field) {
				return nil, errors.ParseError(errors.CodeInvalidFormat, "", line, fmt.Sprintf("column %d", i), "",
					fmt.Errorf("invalid UTF-8 encoding")).
					WithSuggestion("save the file in UTF-8 encoding and try again")
			}
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
	Warnings      []string
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{Errors: make([]*ParseError, 0)}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples error messages
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, e := range ps.Errors[:limit] {
		samples = append(samples, e.Error())
	}
	return samples
}
