package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-bank-reconciliation/internal/api"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/storage"
	"golang-bank-reconciliation/pkg/logger"
)

const statementCSV = "date,description,amount\n" +
	"2024-01-10,DEPOSIT FROM CUSTOMER ABC,1500.00\n" +
	"2024-01-12,UTILITY PAYMENT,-250.00\n" +
	"2024-01-20,BANK FEE,-15.00\n"

func newTestServer(t *testing.T) (*api.Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveTransactions(context.Background(), []*models.LedgerTransaction{
		{ID: "L1", AccountID: "checking", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			Description: "DEPOSIT FROM CUSTOMER ABC", Amount: decimal.RequireFromString("1500.00")},
		{ID: "L2", AccountID: "checking", Date: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
			Description: "UTILITY PAYMENT", Amount: decimal.RequireFromString("-250.00")},
		{ID: "CHQ", AccountID: "checking", Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Description: "CHEQUE 1001", Amount: decimal.RequireFromString("-100.00")},
	}))

	cfg := reconciler.DefaultConfig()
	cfg.Clock = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	service, err := reconciler.NewService(store, cfg, nil)
	require.NoError(t, err)

	apiCfg := api.DefaultConfig()
	apiCfg.Mode = "test"
	return api.NewServer(apiCfg, service, logger.NewNopLogger()), store
}

func do(t *testing.T, server *api.Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func importStatement(t *testing.T, server *api.Server) {
	t.Helper()
	rec := do(t, server, http.MethodPost, "/api/statements", map[string]interface{}{
		"accountId":   "checking",
		"statementId": "jan",
		"fileName":    "jan.csv",
		"content":     statementCSV,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := do(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response map[string]string
	decode(t, rec, &response)
	assert.Equal(t, "ok", response["status"])
}

func TestServer_StatementEndpoints(t *testing.T) {
	t.Run("POST /api/statements imports JSON content", func(t *testing.T) {
		server, _ := newTestServer(t)
		rec := do(t, server, http.MethodPost, "/api/statements", map[string]interface{}{
			"accountId":      "checking",
			"statementId":    "jan",
			"fileName":       "jan.csv",
			"openingBalance": "100.00",
			"content":        statementCSV,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res struct {
			Statement models.BankStatement   `json:"statement"`
			Items     []models.StatementItem `json:"items"`
		}
		decode(t, rec, &res)
		assert.Equal(t, "jan", res.Statement.ID)
		assert.Len(t, res.Items, 3)
		assert.True(t, res.Statement.ClosingBalance.Equal(decimal.RequireFromString("1335")))
	})

	t.Run("POST /api/statements accepts multipart uploads", func(t *testing.T) {
		server, _ := newTestServer(t)

		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		require.NoError(t, form.WriteField("account_id", "checking"))
		require.NoError(t, form.WriteField("statement_id", "upload"))
		part, err := form.CreateFormFile("file", "january.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(statementCSV))
		require.NoError(t, err)
		require.NoError(t, form.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/statements", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res struct {
			Statement models.BankStatement `json:"statement"`
		}
		decode(t, rec, &res)
		assert.Equal(t, "upload", res.Statement.ID)
		assert.Equal(t, "january.csv", res.Statement.FileName)
	})

	t.Run("malformed rows are unprocessable", func(t *testing.T) {
		server, _ := newTestServer(t)
		rec := do(t, server, http.MethodPost, "/api/statements", map[string]interface{}{
			"accountId": "checking",
			"content":   "date,description,amount\n2024-01-10,X,abc\n",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var apiErr api.APIError
		decode(t, rec, &apiErr)
		assert.Equal(t, "parse", apiErr.Category)
		assert.Equal(t, "invalid_amount", apiErr.Code)
		assert.NotEmpty(t, apiErr.Suggestion)
	})

	t.Run("GET /api/statements/:id returns 404 for unknown statements", func(t *testing.T) {
		server, _ := newTestServer(t)
		rec := do(t, server, http.MethodGet, "/api/statements/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("GET and DELETE a statement", func(t *testing.T) {
		server, _ := newTestServer(t)
		importStatement(t, server)

		rec := do(t, server, http.MethodGet, "/api/statements/jan", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res api.StatementResponse
		decode(t, rec, &res)
		assert.Len(t, res.Items, 3)

		rec = do(t, server, http.MethodGet, "/api/accounts/checking/statements", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list struct {
			Count int `json:"count"`
		}
		decode(t, rec, &list)
		assert.Equal(t, 1, list.Count)

		rec = do(t, server, http.MethodDelete, "/api/statements/jan", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, server, http.MethodGet, "/api/statements/jan", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_MatchingEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	importStatement(t, server)

	rec := do(t, server, http.MethodPost, "/api/statements/jan/automatch", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run struct {
		Matched   int `json:"matched"`
		Unmatched int `json:"unmatched"`
	}
	decode(t, rec, &run)
	assert.Equal(t, 2, run.Matched)
	assert.Equal(t, 1, run.Unmatched)

	rec = do(t, server, http.MethodGet, "/api/statements/jan", nil)
	var stmt api.StatementResponse
	decode(t, rec, &stmt)
	fee := stmt.Items[2]
	deposit := stmt.Items[0]

	t.Run("candidates of an unmatched item", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/items/"+fee.ID+"/candidates", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res api.CandidatesResponse
		decode(t, rec, &res)
		assert.Equal(t, fee.ID, res.ItemID)
	})

	t.Run("manual match requires a transaction", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/items/"+fee.ID+"/match", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("manual match of a claimed transaction conflicts", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/items/"+fee.ID+"/match", api.ManualMatchRequest{TransactionID: "L1"})
		assert.Equal(t, http.StatusConflict, rec.Code)

		var apiErr api.APIError
		decode(t, rec, &apiErr)
		assert.Equal(t, "concurrency", apiErr.Category)
	})

	t.Run("matching an already matched item is a state error", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/items/"+deposit.ID+"/match", api.ManualMatchRequest{TransactionID: "CHQ"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("exclude then unmatch", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/items/"+fee.ID+"/exclude", api.ExcludeRequest{Reason: "bank fee"})
		require.Equal(t, http.StatusOK, rec.Code)
		var item models.StatementItem
		decode(t, rec, &item)
		assert.Equal(t, models.StatusExcluded, item.Status)

		rec = do(t, server, http.MethodGet, "/api/statements/jan/summary", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var summary struct {
			Summary   reconciler.StatusSummary `json:"summary"`
			MatchRate float64                  `json:"matchRate"`
		}
		decode(t, rec, &summary)
		assert.Equal(t, 1, summary.Summary.Excluded)
		assert.Equal(t, 0, summary.Summary.Unmatched)
		assert.Equal(t, 100.0, summary.MatchRate)

		rec = do(t, server, http.MethodPost, "/api/items/"+fee.ID+"/unmatch", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &item)
		assert.Equal(t, models.StatusUnmatched, item.Status)
	})

	t.Run("unknown item is not found", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/items/missing/unmatch", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_ReconciliationEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	importStatement(t, server)
	require.Equal(t, http.StatusOK, do(t, server, http.MethodPost, "/api/statements/jan/automatch", nil).Code)

	rec := do(t, server, http.MethodPost, "/api/reconciliations", api.StartReconciliationRequest{
		AccountID:   "checking",
		StatementID: "jan",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session models.BankReconciliation
	decode(t, rec, &session)
	assert.Equal(t, models.ReconciliationInProgress, session.Status)

	rec = do(t, server, http.MethodPost, "/api/reconciliations", api.StartReconciliationRequest{StatementID: "jan"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/reconciliations/"+session.ID+"/discrepancy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var disc reconciler.Discrepancy
	decode(t, rec, &disc)
	// bank 1235, book 1150, cheque of -100 outstanding
	assert.True(t, disc.OutstandingAdjustment.Equal(decimal.RequireFromString("100")), disc.OutstandingAdjustment.String())
	assert.True(t, disc.Amount.Equal(decimal.RequireFromString("-15")), disc.Amount.String())

	rec = do(t, server, http.MethodGet, "/api/accounts/checking/outstanding", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var open struct {
		Count int                      `json:"count"`
		Data  []models.OutstandingItem `json:"data"`
	}
	decode(t, rec, &open)
	require.Equal(t, 1, open.Count)
	assert.Equal(t, "CHQ", open.Data[0].TransactionID)

	rec = do(t, server, http.MethodGet, "/api/accounts/checking/outstanding/stale", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stale struct {
		Count int `json:"count"`
	}
	decode(t, rec, &stale)
	assert.Equal(t, 1, stale.Count)

	rec = do(t, server, http.MethodPost, "/api/outstanding/"+open.Data[0].ID+"/clear", api.ClearOutstandingRequest{Date: "01/02/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/outstanding/"+open.Data[0].ID+"/clear", api.ClearOutstandingRequest{Date: "2024-02-02"})
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared models.OutstandingItem
	decode(t, rec, &cleared)
	assert.True(t, cleared.Cleared)

	rec = do(t, server, http.MethodDelete, "/api/statements/jan", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/reconciliations/"+session.ID+"/complete", api.CompleteReconciliationRequest{Notes: "fee accepted"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &session)
	assert.Equal(t, models.ReconciliationCompleted, session.Status)
	assert.Equal(t, "fee accepted", session.Notes)

	rec = do(t, server, http.MethodPost, "/api/reconciliations/"+session.ID+"/complete", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/audit?reconciliationId="+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit struct {
		Data []models.ReconciliationAudit `json:"data"`
	}
	decode(t, rec, &audit)
	var actions []string
	for _, e := range audit.Data {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, models.AuditReconcileStarted)
	assert.Contains(t, actions, models.AuditReconcileCompleted)
}

func TestServer_LedgerImport(t *testing.T) {
	server, store := newTestServer(t)

	body := "id,date,description,reference,amount\nNEW1,2024-02-01,TRANSFER,,42.00\n"
	req := httptest.NewRequest(http.MethodPost, "/api/ledger?account=savings", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res api.LedgerImportResponse
	decode(t, rec, &res)
	assert.Equal(t, 1, res.Imported)

	txn, err := store.GetTransaction(context.Background(), "NEW1")
	require.NoError(t, err)
	assert.Equal(t, "savings", txn.AccountID)
}

func TestServer_CORS(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/statements/jan", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
