// Package reporter renders reconciliation data for people and programs.
//
// Every report is available in three formats:
//   - Console: aligned text for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one row per item for spreadsheet applications
//
// Report types available:
//   - Statement reports: status summary, items and the reconciliation state
//   - Candidate lists: ranked ledger transactions for one statement item
//   - Auto-match runs, import results and outstanding item lists
//   - Audit trails
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:                reporter.FormatConsole,
//		IncludeUnmatchedItems: true,
//		TableMaxWidth:         120,
//	})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatchedItems   bool `json:"include_matched_items"`
	IncludeUnmatchedItems bool `json:"include_unmatched_items"`
	IncludeExcludedItems  bool `json:"include_excluded_items"`
	IncludeScoreBreakdown bool `json:"include_score_breakdown"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width"`
	MaxListItems  int `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	SortByAmount   bool `json:"sort_by_amount"`
	StaleAfterDays int  `json:"stale_after_days"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                FormatConsole,
		IncludeMatchedItems:   false,
		IncludeUnmatchedItems: true,
		IncludeExcludedItems:  true,
		IncludeScoreBreakdown: true,
		TableMaxWidth:         120,
		MaxListItems:          0,
		CSVDelimiter:          ',',
		CSVHeaders:            true,
		SortByAmount:          false,
		StaleAfterDays:        30,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	return nil
}

// StatementReport is everything known about one statement at a point in time
type StatementReport struct {
	Statement      *models.BankStatement      `json:"statement"`
	Items          []*models.StatementItem    `json:"items,omitempty"`
	Summary        *reconciler.StatusSummary  `json:"summary"`
	Reconciliation *models.BankReconciliation `json:"reconciliation,omitempty"`
	Discrepancy    *reconciler.Discrepancy    `json:"discrepancy,omitempty"`
	Outstanding    []*models.OutstandingItem  `json:"outstanding,omitempty"`
	GeneratedAt    time.Time                  `json:"generated_at"`
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

var itemHeaders = []string{
	"Sequence", "Item_ID", "Date", "Description", "Reference", "Amount",
	"Type", "Running_Balance", "Status", "Confidence", "Matched_Transaction", "Notes",
}

// GenerateReport writes a statement report
func (rg *ReportGenerator) GenerateReport(report *StatementReport, writer io.Writer) error {
	if report == nil || report.Statement == nil || report.Summary == nil {
		return fmt.Errorf("statement report requires a statement and a summary")
	}

	items := rg.selectItems(report.Items)
	switch rg.config.Format {
	case FormatJSON:
		filtered := *report
		filtered.Items = items
		return rg.writeJSON(writer, &filtered)
	case FormatCSV:
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, itemRecord(item))
		}
		return rg.writeCSV(writer, itemHeaders, rows)
	}

	stmt, summary := report.Statement, report.Summary
	fmt.Fprintf(writer, "STATEMENT REPORT\n")
	if !report.GeneratedAt.IsZero() {
		fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(writer, "Statement: %s (account %s, %s)\n", stmt.ID, stmt.AccountID, stmt.Status)
	fmt.Fprintf(writer, "Period:    %s to %s\n\n", stmt.StartDate.Format("2006-01-02"), stmt.EndDate.Format("2006-01-02"))

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(summary, writer)
	fmt.Fprintf(writer, "\n")

	if report.Reconciliation != nil {
		fmt.Fprintf(writer, "=== RECONCILIATION ===\n")
		rg.printReconciliation(report.Reconciliation, report.Discrepancy, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(items) > 0 {
		fmt.Fprintf(writer, "=== ITEMS ===\n")
		rg.printItemList(items, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Outstanding) > 0 {
		fmt.Fprintf(writer, "=== OUTSTANDING ===\n")
		asOf := report.GeneratedAt
		if asOf.IsZero() {
			asOf = time.Now()
		}
		rg.printOutstandingList(report.Outstanding, asOf, writer)
	}
	return nil
}

// WriteCandidates writes the ranked candidates of one statement item
func (rg *ReportGenerator) WriteCandidates(item *models.StatementItem, candidates []*models.MatchCandidate, writer io.Writer) error {
	if item == nil {
		return fmt.Errorf("statement item cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(writer, map[string]interface{}{
			"item":       item,
			"candidates": candidates,
		})
	case FormatCSV:
		rows := make([][]string, 0, len(candidates))
		for i, c := range candidates {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				c.Transaction.ID,
				c.Transaction.Date.Format("2006-01-02"),
				c.Transaction.Description,
				c.Transaction.Reference,
				c.Transaction.Amount.StringFixed(2),
				strconv.Itoa(c.Score),
				strconv.Itoa(c.Breakdown.Amount),
				strconv.Itoa(c.Breakdown.Date),
				strconv.Itoa(c.Breakdown.Description),
				strconv.Itoa(c.Breakdown.Reference),
				c.Reason,
			})
		}
		return rg.writeCSV(writer, []string{
			"Rank", "Transaction_ID", "Date", "Description", "Reference", "Amount",
			"Score", "Amount_Score", "Date_Score", "Description_Score", "Reference_Score", "Reason",
		}, rows)
	}

	fmt.Fprintf(writer, "Candidates for item %d: %s %s %s\n",
		item.Sequence, item.Date.Format("2006-01-02"), item.Amount.StringFixed(2), item.Description)
	if len(candidates) == 0 {
		fmt.Fprintf(writer, "  No candidates above the score floor\n")
		return nil
	}
	for i, c := range candidates {
		fmt.Fprintf(writer, "  %d. [%3d] %s %s %12s  %s\n",
			i+1,
			c.Score,
			c.Transaction.ID,
			c.Transaction.Date.Format("2006-01-02"),
			c.Transaction.Amount.StringFixed(2),
			rg.truncate(c.Transaction.Description, 40))
		if rg.config.IncludeScoreBreakdown {
			fmt.Fprintf(writer, "       amount %d, date %d, description %d, reference %d\n",
				c.Breakdown.Amount, c.Breakdown.Date, c.Breakdown.Description, c.Breakdown.Reference)
		}
	}
	return nil
}

// WriteRunResult writes the outcome of an auto-match run
func (rg *ReportGenerator) WriteRunResult(run *matcher.RunResult, writer io.Writer) error {
	if run == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(writer, run)
	case FormatCSV:
		rows := make([][]string, 0, len(run.Results)+len(run.Failures))
		for _, r := range run.Results {
			rows = append(rows, []string{r.ItemID, "matched", r.TransactionID, strconv.Itoa(r.Score), strconv.FormatBool(r.Exact)})
		}
		for _, f := range run.Failures {
			rows = append(rows, []string{f.ItemID, string(f.Reason), "", strconv.Itoa(f.BestScore), ""})
		}
		return rg.writeCSV(writer, []string{"Item_ID", "Outcome", "Transaction_ID", "Score", "Exact"}, rows)
	}

	fmt.Fprintf(writer, "AUTO-MATCH %s\n", run.StatementID)
	fmt.Fprintf(writer, "  Processed: %d\n", run.Processed)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n", run.Matched, rg.calculatePercentage(run.Matched, run.Processed))
	fmt.Fprintf(writer, "  Unmatched: %d\n", run.Unmatched)
	fmt.Fprintf(writer, "  Duration:  %v\n", run.Duration)

	if len(run.Failures) > 0 {
		byReason := make(map[matcher.FailureReason]int)
		for _, f := range run.Failures {
			byReason[f.Reason]++
		}
		reasons := make([]string, 0, len(byReason))
		for reason := range byReason {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		fmt.Fprintf(writer, "  Left unmatched:\n")
		for _, reason := range reasons {
			fmt.Fprintf(writer, "    %-16s %d\n", reason, byReason[matcher.FailureReason(reason)])
		}
	}
	return nil
}

// WriteImportResult writes the outcome of a statement import
func (rg *ReportGenerator) WriteImportResult(res *reconciler.ImportResult, writer io.Writer) error {
	if res == nil || res.Statement == nil {
		return fmt.Errorf("import result cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(writer, res)
	case FormatCSV:
		rows := make([][]string, 0, len(res.Items))
		for _, item := range res.Items {
			rows = append(rows, itemRecord(item))
		}
		return rg.writeCSV(writer, itemHeaders, rows)
	}

	stmt := res.Statement
	fmt.Fprintf(writer, "Imported statement %s\n", stmt.ID)
	fmt.Fprintf(writer, "  Account:         %s\n", stmt.AccountID)
	fmt.Fprintf(writer, "  Format:          %s\n", stmt.SourceFormat)
	fmt.Fprintf(writer, "  Items:           %d\n", stmt.ItemCount)
	fmt.Fprintf(writer, "  Period:          %s to %s\n", stmt.StartDate.Format("2006-01-02"), stmt.EndDate.Format("2006-01-02"))
	fmt.Fprintf(writer, "  Opening balance: %s\n", stmt.OpeningBalance.StringFixed(2))
	fmt.Fprintf(writer, "  Closing balance: %s\n", stmt.ClosingBalance.StringFixed(2))
	if len(res.Skipped) > 0 {
		fmt.Fprintf(writer, "  Skipped rows:    %d\n", len(res.Skipped))
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(writer, "\nWarnings (%d):\n", len(res.Warnings))
		for i, w := range res.Warnings {
			if rg.limitReached(i, len(res.Warnings), writer) {
				break
			}
			fmt.Fprintf(writer, "  - %s\n", w)
		}
	}
	return nil
}

// WriteProcessResult writes the outcome of a pipeline run. CSV output lists
// the auto-match outcomes only.
func (rg *ReportGenerator) WriteProcessResult(res *reconciler.ProcessResult, writer io.Writer) error {
	if res == nil || res.Import == nil {
		return fmt.Errorf("process result cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(writer, res)
	case FormatCSV:
		if res.Run == nil {
			return rg.WriteImportResult(res.Import, writer)
		}
		return rg.WriteRunResult(res.Run, writer)
	}

	if err := rg.WriteImportResult(res.Import, writer); err != nil {
		return err
	}
	if res.Run != nil {
		fmt.Fprintln(writer)
		if err := rg.WriteRunResult(res.Run, writer); err != nil {
			return err
		}
	}
	if res.Summary != nil {
		fmt.Fprintln(writer)
		rg.printSummaryTable(res.Summary, writer)
	}
	if res.Reconciliation != nil {
		fmt.Fprintln(writer)
		rg.printReconciliation(res.Reconciliation, res.Discrepancy, writer)
	}
	fmt.Fprintf(writer, "\nCompleted in %v\n", res.Duration)
	return nil
}

// WriteOutstanding writes outstanding items with their age as of asOf
func (rg *ReportGenerator) WriteOutstanding(items []*models.OutstandingItem, asOf time.Time, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(writer, map[string]interface{}{
			"as_of":       asOf,
			"outstanding": items,
		})
	case FormatCSV:
		rows := make([][]string, 0, len(items))
		for _, o := range items {
			rows = append(rows, []string{
				o.ID,
				o.TransactionID,
				o.TransactionDate.Format("2006-01-02"),
				o.Description,
				o.Reference,
				o.Amount.StringFixed(2),
				strconv.Itoa(o.Age(asOf)),
				strconv.FormatBool(o.IsStale(asOf, rg.config.StaleAfterDays)),
				strconv.FormatBool(o.Cleared),
			})
		}
		return rg.writeCSV(writer, []string{
			"ID", "Transaction_ID", "Date", "Description", "Reference", "Amount", "Age_Days", "Stale", "Cleared",
		}, rows)
	}

	if len(items) == 0 {
		fmt.Fprintf(writer, "No outstanding items\n")
		return nil
	}
	rg.printOutstandingList(items, asOf, writer)
	return nil
}

// WriteReconciliation writes a reconciliation session and its discrepancy
func (rg *ReportGenerator) WriteReconciliation(rec *models.BankReconciliation, disc *reconciler.Discrepancy, writer io.Writer) error {
	if rec == nil {
		return fmt.Errorf("reconciliation cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(writer, map[string]interface{}{
			"reconciliation": rec,
			"discrepancy":    disc,
		})
	case FormatCSV:
		record := []string{
			rec.ID, rec.AccountID, rec.StatementID, string(rec.Status),
			rec.BankBalance.StringFixed(2), rec.BookBalance.StringFixed(2), "", "",
		}
		if disc != nil {
			record[6] = disc.OutstandingAdjustment.StringFixed(2)
			record[7] = disc.Amount.StringFixed(2)
		}
		return rg.writeCSV(writer, []string{
			"ID", "Account", "Statement", "Status", "Bank_Balance", "Book_Balance", "Outstanding_Adjustment", "Discrepancy",
		}, [][]string{record})
	}

	rg.printReconciliation(rec, disc, writer)
	return nil
}

// WriteAudit writes audit entries in the order given
func (rg *ReportGenerator) WriteAudit(entries []*models.ReconciliationAudit, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeJSON(writer, entries)
	case FormatCSV:
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.Timestamp.Format(time.RFC3339), e.Action, e.StatementID, e.ReconciliationID,
				e.PreviousValue, e.NewValue, e.Description,
			})
		}
		return rg.writeCSV(writer, []string{
			"Timestamp", "Action", "Statement", "Reconciliation", "Previous", "New", "Description",
		}, rows)
	}

	for i, e := range entries {
		if rg.limitReached(i, len(entries), writer) {
			break
		}
		fmt.Fprintf(writer, "%s  %-26s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Description)
	}
	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(summary *reconciler.StatusSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Items:\n")
	fmt.Fprintf(writer, "  Total:          %d\n", summary.TotalItems)
	fmt.Fprintf(writer, "  Auto matched:   %d\n", summary.AutoMatched)
	fmt.Fprintf(writer, "  Manual matched: %d\n", summary.ManualMatched)
	fmt.Fprintf(writer, "  Unmatched:      %d\n", summary.Unmatched)
	fmt.Fprintf(writer, "  Excluded:       %d\n", summary.Excluded)
	fmt.Fprintf(writer, "  Match rate:     %.1f%%\n", summary.MatchRate())

	fmt.Fprintf(writer, "\nAmounts:\n")
	fmt.Fprintf(writer, "  Opening balance: %s\n", summary.OpeningBalance.StringFixed(2))
	fmt.Fprintf(writer, "  Closing balance: %s\n", summary.ClosingBalance.StringFixed(2))
	fmt.Fprintf(writer, "  Matched:         %s\n", summary.MatchedAmount.StringFixed(2))
	fmt.Fprintf(writer, "  Unmatched:       %s\n", summary.UnmatchedAmount.StringFixed(2))
	fmt.Fprintf(writer, "  Excluded:        %s\n", summary.ExcludedAmount.StringFixed(2))
}

func (rg *ReportGenerator) printReconciliation(rec *models.BankReconciliation, disc *reconciler.Discrepancy, writer io.Writer) {
	fmt.Fprintf(writer, "Reconciliation %s (%s)\n", rec.ID, rec.Status)
	fmt.Fprintf(writer, "  Started:      %s\n", rec.StartedAt.Format(time.RFC3339))
	if rec.CompletedAt != nil {
		fmt.Fprintf(writer, "  Completed:    %s\n", rec.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(writer, "  Bank balance: %s\n", rec.BankBalance.StringFixed(2))
	fmt.Fprintf(writer, "  Book balance: %s\n", rec.BookBalance.StringFixed(2))
	if disc != nil {
		fmt.Fprintf(writer, "  Outstanding:  %s (%d items)\n", disc.OutstandingAdjustment.StringFixed(2), disc.OutstandingCount)
		fmt.Fprintf(writer, "  Discrepancy:  %s\n", disc.Amount.StringFixed(2))
		if !disc.IsZero() && !disc.BankBalance.IsZero() {
			pct := disc.Amount.Abs().Div(disc.BankBalance.Abs()).Mul(decimal.NewFromInt(100))
			fmt.Fprintf(writer, "  Discrepancy %%: %s%%\n", pct.StringFixed(2))
		}
	}
	if rec.Notes != "" {
		fmt.Fprintf(writer, "  Notes:        %s\n", rec.Notes)
	}
}

func (rg *ReportGenerator) printItemList(items []*models.StatementItem, writer io.Writer) {
	descWidth := rg.config.TableMaxWidth - 70
	if descWidth < 10 {
		descWidth = 10
	}
	for i, item := range items {
		if rg.limitReached(i, len(items), writer) {
			break
		}
		fmt.Fprintf(writer, "  %3d. %s %12s %12s  %-14s %-*s\n",
			item.Sequence,
			item.Date.Format("2006-01-02"),
			item.Amount.StringFixed(2),
			item.RunningBalance.StringFixed(2),
			item.Status,
			descWidth,
			rg.truncate(item.Description, descWidth))
	}
}

func (rg *ReportGenerator) printOutstandingList(items []*models.OutstandingItem, asOf time.Time, writer io.Writer) {
	total := decimal.Zero
	stale := 0
	for _, o := range items {
		if !o.Cleared {
			total = total.Add(o.Amount)
		}
		if o.IsStale(asOf, rg.config.StaleAfterDays) {
			stale++
		}
	}
	fmt.Fprintf(writer, "Outstanding items: %d (%d stale), open total %s\n", len(items), stale, total.StringFixed(2))

	for i, o := range items {
		if rg.limitReached(i, len(items), writer) {
			break
		}
		marker := ""
		switch {
		case o.Cleared:
			marker = " cleared"
		case o.IsStale(asOf, rg.config.StaleAfterDays):
			marker = " STALE"
		}
		fmt.Fprintf(writer, "  %d. %s %s %12s %4dd  %s%s\n",
			i+1,
			o.TransactionID,
			o.TransactionDate.Format("2006-01-02"),
			o.Amount.StringFixed(2),
			o.Age(asOf),
			rg.truncate(o.Description, 40),
			marker)
	}
}

// limitReached prints the elision line once MaxListItems is hit
func (rg *ReportGenerator) limitReached(i, total int, writer io.Writer) bool {
	if rg.config.MaxListItems == 0 || i < rg.config.MaxListItems {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-i)
	return true
}

// Helper methods

func (rg *ReportGenerator) selectItems(items []*models.StatementItem) []*models.StatementItem {
	selected := make([]*models.StatementItem, 0, len(items))
	for _, item := range items {
		switch {
		case item.IsMatched() && rg.config.IncludeMatchedItems,
			item.Status == models.StatusUnmatched && rg.config.IncludeUnmatchedItems,
			item.Status == models.StatusExcluded && rg.config.IncludeExcludedItems:
			selected = append(selected, item)
		}
	}
	if rg.config.SortByAmount {
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].Amount.Abs().GreaterThan(selected[j].Amount.Abs())
		})
	}
	return selected
}

func (rg *ReportGenerator) writeJSON(writer io.Writer, v interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (rg *ReportGenerator) writeCSV(writer io.Writer, headers []string, rows [][]string) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, row := range rows {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func itemRecord(item *models.StatementItem) []string {
	notes := item.ExcludeReason
	confidence := ""
	if item.IsMatched() {
		confidence = strconv.Itoa(item.Confidence)
	}
	return []string{
		strconv.Itoa(item.Sequence),
		item.ID,
		item.Date.Format("2006-01-02"),
		item.Description,
		item.Reference,
		item.Amount.StringFixed(2),
		string(item.Type),
		item.RunningBalance.StringFixed(2),
		string(item.Status),
		confidence,
		item.MatchedTransactionID,
		notes,
	}
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// reportKind names a report value for logs
func reportKind(v interface{}) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}
