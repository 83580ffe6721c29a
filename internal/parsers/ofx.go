package parsers

import (
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

var (
	ofxTransaction = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	ofxTag         = regexp.MustCompile(`(?i)<([A-Z0-9.]+)>([^<\r\n]*)`)
)

// OFXParser reads Open Financial Exchange statements. Both the SGML
// (unclosed tags) and XML flavours are accepted.
type OFXParser struct{}

// NewOFXParser creates an OFX parser
func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

// Format implements StatementParser
func (p *OFXParser) Format() models.StatementFormat {
	return models.FormatOFX
}

// Parse implements StatementParser
func (p *OFXParser) Parse(ctx context.Context, r io.Reader) (*ParseResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, "", 0, "", "", err)
	}
	content := string(data)
	stats := NewParseStats()
	result := &ParseResult{Stats: stats}

	if !strings.Contains(strings.ToUpper(content), "<OFX") {
		return nil, errors.ParseError(errors.CodeInvalidFormat, "", 1, "", "", nil).
			WithSuggestion("the file does not contain an <OFX> element")
	}

	for _, loc := range ofxTransaction.FindAllStringSubmatchIndex(content, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.Count(content[:loc[0]], "\n") + 1
		body := content[loc[2]:loc[3]]

		stats.RecordsParsed++
		entry, perr := p.toEntry(body, line)
		if perr != nil {
			stats.AddError(perr)
			continue
		}
		result.Entries = append(result.Entries, entry)
		stats.RecordsValid++
	}

	stats.TotalLines = strings.Count(content, "\n") + 1
	return result, nil
}

func (p *OFXParser) toEntry(body string, line int) (models.StatementEntry, *ParseError) {
	fields := make(map[string]string)
	for _, m := range ofxTag.FindAllStringSubmatch(body, -1) {
		fields[strings.ToUpper(m[1])] = strings.TrimSpace(m[2])
	}

	entry := models.StatementEntry{Line: line}

	posted := fields["DTPOSTED"]
	if len(posted) < 8 {
		return entry, &ParseError{Line: line, Field: "DTPOSTED", Value: posted,
			Message: "missing or short posting date", Code: errors.CodeInvalidDate}
	}
	date, err := time.Parse("20060102", posted[:8])
	if err != nil {
		return entry, &ParseError{Line: line, Field: "DTPOSTED", Value: posted,
			Message: "invalid posting date", Code: errors.CodeInvalidDate, Err: err}
	}
	entry.Date = date

	amount, err := ParseAmount(fields["TRNAMT"], ".", "")
	if err != nil {
		return entry, &ParseError{Line: line, Field: "TRNAMT", Value: fields["TRNAMT"],
			Message: "invalid amount", Code: errors.CodeInvalidAmount, Err: err}
	}
	entry.Amount = amount
	entry.Type = models.TypeForAmount(amount)

	entry.Description = fields["NAME"]
	if entry.Description == "" {
		entry.Description = fields["MEMO"]
	}
	entry.Reference = fields["CHECKNUM"]
	if entry.Reference == "" {
		entry.Reference = fields["REFNUM"]
	}
	return entry, nil
}
