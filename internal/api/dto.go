package api

import (
	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/reconciler"
)

// ImportStatementRequest is the JSON or multipart form body of a statement
// upload. JSON bodies carry the file in Content; multipart bodies in the
// "file" part.
type ImportStatementRequest struct {
	AccountID      string                `json:"accountId" form:"account_id"`
	StatementID    string                `json:"statementId" form:"statement_id"`
	FileName       string                `json:"fileName" form:"file_name"`
	Format         string                `json:"format" form:"format"`
	OpeningBalance *decimal.Decimal      `json:"openingBalance" form:"-"`
	Lenient        *bool                 `json:"lenient" form:"lenient"`
	Mapping        *parsers.ImportConfig `json:"mapping,omitempty" form:"-"`
	Content        string                `json:"content" form:"-"`
}

// toImportRequest converts the body into a service import request
func (r *ImportStatementRequest) toImportRequest() *reconciler.ImportRequest {
	req := &reconciler.ImportRequest{
		AccountID:   r.AccountID,
		StatementID: r.StatementID,
		Format:      models.StatementFormat(r.Format),
		FileName:    r.FileName,
		Mapping:     r.Mapping,
		Lenient:     r.Lenient,
	}
	if r.OpeningBalance != nil {
		req.OpeningBalance = *r.OpeningBalance
	}
	return req
}

// ManualMatchRequest links an item to a ledger transaction
type ManualMatchRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
}

// ExcludeRequest excludes an item from matching
type ExcludeRequest struct {
	Reason string `json:"reason"`
}

// StartReconciliationRequest opens a reconciliation session
type StartReconciliationRequest struct {
	AccountID   string `json:"accountId"`
	StatementID string `json:"statementId" binding:"required"`
}

// CompleteReconciliationRequest closes a reconciliation session
type CompleteReconciliationRequest struct {
	Notes string `json:"notes"`
}

// ClearOutstandingRequest clears an outstanding item. Date defaults to today.
type ClearOutstandingRequest struct {
	Date string `json:"date"`
}

// StatementResponse is a statement with its items
type StatementResponse struct {
	Statement *models.BankStatement   `json:"statement"`
	Items     []*models.StatementItem `json:"items"`
}

// CandidatesResponse lists ranked candidates for one item
type CandidatesResponse struct {
	ItemID     string                   `json:"itemId"`
	Candidates []*models.MatchCandidate `json:"candidates"`
}

// AutoMatchResponse wraps a run result with its failures flattened for JSON
type AutoMatchResponse struct {
	*matcher.RunResult
	Errors []string `json:"errors,omitempty"`
}

// LedgerImportResponse reports a ledger upload
type LedgerImportResponse struct {
	Imported int                 `json:"imported"`
	Stats    *parsers.ParseStats `json:"stats"`
}

// ListResponse wraps list results with their count
type ListResponse struct {
	Count int         `json:"count"`
	Data  interface{} `json:"data"`
}
