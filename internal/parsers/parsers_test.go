package parsers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

func mustDelimited(t *testing.T, cfg *ImportConfig) *DelimitedParser {
	t.Helper()
	p, err := NewDelimitedParser(cfg)
	if err != nil {
		t.Fatalf("NewDelimitedParser: %v", err)
	}
	return p
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw       string
		decimal   string
		thousands string
		want      string
		wantErr   bool
	}{
		{"12.34", ".", ",", "12.34", false},
		{"-1,234.56", ".", ",", "-1234.56", false},
		{"$1,000", ".", ",", "1000", false},
		{"(45.00)", ".", ",", "-45", false},
		{"45.00-", ".", ",", "-45", false},
		{"+7", ".", ",", "7", false},
		{"1.234,56 €", ",", ".", "1234.56", false},
		{"-0,5", ",", "", "-0.5", false},
		{"1 234,50", ",", " ", "1234.5", false},
		{"", ".", ",", "", true},
		{"abc", ".", ",", "", true},
		{"12abc", ".", ",", "", true},
		{"1.2.3", ".", "", "", true},
		{"1.234,56", ",", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.decimal, tt.thousands)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDateLayout(t *testing.T) {
	tests := map[string]string{
		"yyyy-MM-dd":          "2006-01-02",
		"dd/MM/yyyy":          "02/01/2006",
		"MM/dd/yy":            "01/02/06",
		"d MMM yyyy":          "2 Jan 2006",
		"yyyy-MM-dd HH:mm:ss": "2006-01-02 15:04:05",
		"2006-01-02":          "2006-01-02",
		"02.01.06":            "02.01.06",
	}
	for in, want := range tests {
		if got := DateLayout(in); got != want {
			t.Errorf("DateLayout(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ImportConfig)
		ok     bool
	}{
		{"default", func(c *ImportConfig) {}, true},
		{"missing amount", func(c *ImportConfig) { c.AmountColumn = -1 }, false},
		{"duplicate column", func(c *ImportConfig) { c.ReferenceColumn = 1 }, false},
		{"same separators", func(c *ImportConfig) { c.ThousandsSeparator = "." }, false},
		{"long delimiter", func(c *ImportConfig) { c.Delimiter = ";;" }, false},
		{"same indicators", func(c *ImportConfig) { c.CreditIndicator, c.DebitIndicator = "X", "x" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultImportConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}

	for _, name := range ImportProfileNames() {
		if err := GetImportProfile(name).Validate(); err != nil {
			t.Errorf("built-in profile %s invalid: %v", name, err)
		}
	}
}

func TestDelimitedParserStandard(t *testing.T) {
	input := "Date,Description,Amount,Reference,Balance\n" +
		"2024-01-02,Opening deposit,1000.00,DEP1,1000.00\n" +
		"\n" +
		"2024-01-03,Coffee,-4.50,,995.50\n"
	cfg := DefaultImportConfig()
	cfg.ReferenceColumn = 3
	cfg.BalanceColumn = 4

	res, err := mustDelimited(t, cfg).Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Stats.HasErrors() {
		t.Fatalf("unexpected row errors: %v", res.Stats.GetSampleErrors(5))
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}

	first := res.Entries[0]
	if first.Reference != "DEP1" || first.Type != models.TransactionTypeCredit {
		t.Errorf("unexpected first entry %+v", first)
	}
	if first.BalanceHint == nil || !first.BalanceHint.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("expected balance hint 1000, got %v", first.BalanceHint)
	}
	second := res.Entries[1]
	if second.Type != models.TransactionTypeDebit || !second.Amount.Equal(decimal.RequireFromString("-4.5")) {
		t.Errorf("unexpected second entry %+v", second)
	}
	if second.Line != 4 {
		t.Errorf("expected line 4 for second entry, got %d", second.Line)
	}
	if !second.Date.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %s", second.Date)
	}
}

func TestDelimitedParserEuropean(t *testing.T) {
	input := "Datum;Text;Betrag;Saldo\n" +
		"15.03.2024;Miete;-1.250,00;3.750,00\n" +
		"16.03.2024;Gehalt;3.000,50;6.750,50\n"

	res, err := mustDelimited(t, GetImportProfile("european")).Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d (%v)", len(res.Entries), res.Stats.GetSampleErrors(5))
	}
	if !res.Entries[0].Amount.Equal(decimal.RequireFromString("-1250")) {
		t.Errorf("expected -1250, got %s", res.Entries[0].Amount)
	}
	if !res.Entries[1].Amount.Equal(decimal.RequireFromString("3000.50")) {
		t.Errorf("expected 3000.50, got %s", res.Entries[1].Amount)
	}
}

func TestDelimitedParserIndicators(t *testing.T) {
	cfg := GetImportProfile("indicator")
	cfg.ReferenceColumn = 3

	input := "Date,Details,Amount,Type\n" +
		"01/02/2024,Salary,2500.00 CR,\n" +
		"02/02/2024,Rent,900.00 dr,\n" +
		"03/02/2024,Refund,-15.00,CR\n" +
		"04/02/2024,Fee,-3.00,\n"

	res, err := mustDelimited(t, cfg).Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d (%v)", len(res.Entries), res.Stats.GetSampleErrors(5))
	}

	want := []struct {
		amount string
		kind   models.TransactionType
	}{
		{"2500", models.TransactionTypeCredit},
		{"-900", models.TransactionTypeDebit},
		{"15", models.TransactionTypeCredit}, // indicator overrides sign
		{"-3", models.TransactionTypeDebit},  // falls back to sign
	}
	for i, w := range want {
		e := res.Entries[i]
		if !e.Amount.Equal(decimal.RequireFromString(w.amount)) || e.Type != w.kind {
			t.Errorf("entry %d: got %s/%s, want %s/%s", i, e.Amount, e.Type, w.amount, w.kind)
		}
	}
}

func TestDelimitedParserRowErrors(t *testing.T) {
	input := "date,description,amount\n" +
		"2024-01-01,ok,1.00\n" +
		"2024-13-45,bad date,2.00\n" +
		"2024-01-03,bad amount,twelve\n" +
		"2024-01-04\n"

	res, err := mustDelimited(t, DefaultImportConfig()).Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Errorf("expected 1 valid entry, got %d", len(res.Entries))
	}
	if res.Stats.ErrorCount != 3 {
		t.Fatalf("expected 3 row errors, got %d", res.Stats.ErrorCount)
	}

	dateErr := res.Stats.Errors[0]
	if dateErr.Line != 3 || dateErr.Code != errors.CodeInvalidDate {
		t.Errorf("unexpected date error %+v", dateErr)
	}
	re := dateErr.ToReconcilerError("stmt.csv")
	if !errors.IsParse(re) || re.Context["line"] != 3 || re.Context["file"] != "stmt.csv" {
		t.Errorf("unexpected converted error %+v", re)
	}
	if res.Stats.Errors[1].Code != errors.CodeInvalidAmount {
		t.Errorf("expected amount error, got %s", res.Stats.Errors[1].Code)
	}
	if res.Stats.Errors[2].Code != errors.CodeMissingColumn {
		t.Errorf("expected missing column error, got %s", res.Stats.Errors[2].Code)
	}
}

func TestDelimitedParserNoHeader(t *testing.T) {
	cfg := DefaultImportConfig()
	cfg.HasHeaderRow = false
	res, err := mustDelimited(t, cfg).Parse(context.Background(), strings.NewReader("2024-01-01,a,1\n2024-01-02,b,2\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Errorf("expected 2 entries without header, got %d", len(res.Entries))
	}
}

func TestDelimitedParserCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mustDelimited(t, DefaultImportConfig()).Parse(ctx, strings.NewReader("date,description,amount\n2024-01-01,a,1\n"))
	if err == nil {
		t.Error("expected cancellation error")
	}
}

func TestQIFParser(t *testing.T) {
	input := "!Type:Bank\n" +
		"D01/15/2024\nT-42.10\nPGrocer\nMWeekly shop\nN1001\n^\n" +
		"D1/16'24\nU1,500.00\nPPayroll\n^\n" +
		"Dnot a date\nT5\n^\n" +
		"D01/20/2024\nT7.00\nPNo terminator\n"

	res, err := NewQIFParser("").Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(res.Entries))
	}
	if res.Stats.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", res.Stats.ErrorCount)
	}

	first := res.Entries[0]
	if first.Description != "Grocer Weekly shop" || first.Reference != "1001" {
		t.Errorf("unexpected first entry %+v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("-42.10")) || first.Line != 2 {
		t.Errorf("unexpected amount/line %s/%d", first.Amount, first.Line)
	}
	if !res.Entries[1].Amount.Equal(decimal.RequireFromString("1500")) {
		t.Errorf("expected 1500, got %s", res.Entries[1].Amount)
	}
	if !res.Entries[1].Date.Equal(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected short-year date %s", res.Entries[1].Date)
	}
}

func TestOFXParser(t *testing.T) {
	input := `OFXHEADER:100
DATA:OFXSGML

<OFX>
<BANKMSGSRSV1><STMTTRNRS><STMTRS>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[-5:EST]
<TRNAMT>-25.00
<FITID>1
<CHECKNUM>305
<NAME>Hardware store
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240106
<TRNAMT>100.5
<FITID>2
<MEMO>Transfer in
</STMTTRN>
<STMTTRN>
<DTPOSTED>2024
<TRNAMT>1
</STMTTRN>
</BANKTRANLIST>
</STMTRS></STMTTRNRS></BANKMSGSRSV1>
</OFX>`

	res, err := NewOFXParser().Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Entries) != 2 || res.Stats.ErrorCount != 1 {
		t.Fatalf("expected 2 entries and 1 error, got %d/%d", len(res.Entries), res.Stats.ErrorCount)
	}
	first := res.Entries[0]
	if first.Reference != "305" || first.Description != "Hardware store" {
		t.Errorf("unexpected first entry %+v", first)
	}
	if !first.Date.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %s", first.Date)
	}
	if res.Entries[1].Description != "Transfer in" || res.Entries[1].Type != models.TransactionTypeCredit {
		t.Errorf("unexpected second entry %+v", res.Entries[1])
	}

	if _, err := NewOFXParser().Parse(context.Background(), strings.NewReader("date,amount\n")); err == nil {
		t.Error("expected error for non-OFX content")
	}
}

func TestFactory(t *testing.T) {
	tests := []struct {
		file   string
		format models.StatementFormat
	}{
		{"march.csv", models.FormatCSV},
		{"MARCH.QIF", models.FormatQIF},
		{"march.qfx", models.FormatOFX},
		{"march.txt", models.FormatCSV},
	}
	for _, tt := range tests {
		format := FormatFromFilename(tt.file)
		if format != tt.format {
			t.Errorf("FormatFromFilename(%s) = %s, want %s", tt.file, format, tt.format)
		}
		p, err := New(format, DefaultImportConfig())
		if err != nil {
			t.Fatalf("New(%s): %v", format, err)
		}
		if p.Format() != tt.format {
			t.Errorf("parser format %s, want %s", p.Format(), tt.format)
		}
	}

	if _, err := New("pdf", nil); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadImportConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "name: mybank\ndateFormat: dd/MM/yyyy\ndelimiter: \";\"\nreferenceColumn: 3\ncreditIndicator: CR\ndebitIndicator: DR\n"
	if err := afero.WriteFile(fs, "/profiles/bank.yaml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadImportConfigFile(fs, "/profiles/bank.yaml")
	if err != nil {
		t.Fatalf("LoadImportConfigFile: %v", err)
	}
	if cfg.Name != "mybank" || cfg.DelimiterRune() != ';' || cfg.ReferenceColumn != 3 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.AmountColumn != 2 || cfg.DecimalSeparator != "." {
		t.Errorf("expected defaults for unspecified keys, got %+v", cfg)
	}

	if _, err := ParseImportConfig([]byte("amountColumn: 0\n")); err == nil {
		t.Error("expected validation error for clashing columns")
	}
}

func TestLedgerParser(t *testing.T) {
	input := "ID,Account,Date,Description,Reference,Debit,Credit\n" +
		"L1,chk,2024-01-02,Customer receipt,INV-9,500.00,\n" +
		"L2,chk,2024-01-03,Supplier payment,CHQ-12,,120.25\n" +
		"L3,chk,2024-01-xx,Broken,,1,\n"

	txns, stats, err := NewLedgerParser(nil).Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txns) != 2 || stats.ErrorCount != 1 {
		t.Fatalf("expected 2 transactions and 1 error, got %d/%d", len(txns), stats.ErrorCount)
	}
	if !txns[0].Amount.Equal(decimal.RequireFromString("500")) || txns[0].Reference != "INV-9" {
		t.Errorf("unexpected first transaction %+v", txns[0])
	}
	if !txns[1].Amount.Equal(decimal.RequireFromString("-120.25")) {
		t.Errorf("expected debits minus credits, got %s", txns[1].Amount)
	}
}

func TestLedgerParserDefaultsAndMissingColumns(t *testing.T) {
	cfg := DefaultLedgerParserConfig()
	cfg.DefaultAccountID = "main"
	txns, _, err := NewLedgerParser(cfg).Parse(context.Background(),
		strings.NewReader("date,description,amount\n2024-02-01,Interest,1.11\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txns) != 1 || txns[0].AccountID != "main" || txns[0].ID == "" {
		t.Fatalf("unexpected transactions %+v", txns)
	}

	_, _, err = NewLedgerParser(nil).Parse(context.Background(), strings.NewReader("date,description\n"))
	if !errors.IsParse(err) {
		t.Errorf("expected missing column parse error, got %v", err)
	}

	_, _, err = NewLedgerParser(nil).Parse(context.Background(), strings.NewReader(""))
	if !errors.IsValidation(err) {
		t.Errorf("expected validation error for empty input, got %v", err)
	}
}
