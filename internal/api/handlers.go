package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/storage"
)

func (s *Server) importLedger(c *gin.Context) {
	cfg := parsers.DefaultLedgerParserConfig()
	cfg.DefaultAccountID = c.Query("account")

	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)
	n, stats, err := s.service.ImportLedger(c.Request.Context(), body, cfg)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, LedgerImportResponse{Imported: n, Stats: stats})
}

func (s *Server) importStatement(c *gin.Context) {
	var body ImportStatementRequest
	var content io.Reader

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&body); err != nil {
			s.badRequest(c, err.Error())
			return
		}
		if raw := c.PostForm("opening_balance"); raw != "" {
			opening, err := decimal.NewFromString(raw)
			if err != nil {
				s.badRequest(c, "opening_balance is not a decimal: "+raw)
				return
			}
			body.OpeningBalance = &opening
		}
		header, err := c.FormFile("file")
		if err != nil {
			s.badRequest(c, "multipart upload requires a file part")
			return
		}
		file, err := header.Open()
		if err != nil {
			s.badRequest(c, err.Error())
			return
		}
		defer file.Close()
		if body.FileName == "" {
			body.FileName = header.Filename
		}
		content = file
	} else {
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, err.Error())
			return
		}
		content = strings.NewReader(body.Content)
	}

	res, err := s.service.Import(c.Request.Context(), content, body.toImportRequest())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) getStatement(c *gin.Context) {
	stmt, items, err := s.service.GetStatement(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatementResponse{Statement: stmt, Items: items})
}

func (s *Server) deleteStatement(c *gin.Context) {
	if err := s.service.DeleteStatement(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) statementSummary(c *gin.Context) {
	summary, err := s.service.StatusSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":   summary,
		"matchRate": summary.MatchRate(),
	})
}

func (s *Server) listStatements(c *gin.Context) {
	stmts, err := s.service.ListStatements(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Count: len(stmts), Data: stmts})
}

func (s *Server) autoMatch(c *gin.Context) {
	run, err := s.service.AutoMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := AutoMatchResponse{RunResult: run}
	for _, e := range multierr.Errors(run.Err) {
		resp.Errors = append(resp.Errors, e.Error())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) candidates(c *gin.Context) {
	itemID := c.Param("id")
	cands, err := s.service.Candidates(c.Request.Context(), itemID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CandidatesResponse{ItemID: itemID, Candidates: cands})
}

func (s *Server) manualMatch(c *gin.Context) {
	var body ManualMatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	res, err := s.service.ManualMatch(c.Request.Context(), c.Param("id"), body.TransactionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) exclude(c *gin.Context) {
	var body ExcludeRequest
	if !s.bindOptionalJSON(c, &body) {
		return
	}
	item, err := s.service.Exclude(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) unmatch(c *gin.Context) {
	item, err := s.service.Unmatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) startReconciliation(c *gin.Context) {
	var body StartReconciliationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	rec, err := s.service.Sessions().Start(c.Request.Context(), body.AccountID, body.StatementID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) getReconciliation(c *gin.Context) {
	rec, err := s.service.Sessions().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listReconciliations(c *gin.Context) {
	recs, err := s.service.Sessions().List(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Count: len(recs), Data: recs})
}

func (s *Server) abandonReconciliation(c *gin.Context) {
	if err := s.service.Sessions().Abandon(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) completeReconciliation(c *gin.Context) {
	var body CompleteReconciliationRequest
	if !s.bindOptionalJSON(c, &body) {
		return
	}
	rec, err := s.service.Sessions().Complete(c.Request.Context(), c.Param("id"), body.Notes)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) refreshReconciliation(c *gin.Context) {
	rec, err := s.service.Sessions().Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) discrepancy(c *gin.Context) {
	disc, err := s.service.Sessions().CalculateDiscrepancy(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, disc)
}

func (s *Server) listOutstanding(c *gin.Context) {
	items, err := s.service.Outstanding().ListOpen(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Count: len(items), Data: items})
}

func (s *Server) staleOutstanding(c *gin.Context) {
	items, err := s.service.Outstanding().GetStaleItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Count: len(items), Data: items})
}

func (s *Server) clearOutstanding(c *gin.Context) {
	var body ClearOutstandingRequest
	if !s.bindOptionalJSON(c, &body) {
		return
	}

	date := s.service.Now()
	if body.Date != "" {
		parsed, err := time.Parse("2006-01-02", body.Date)
		if err != nil {
			s.badRequest(c, "date must be formatted as YYYY-MM-DD")
			return
		}
		date = parsed
	}

	item, err := s.service.Outstanding().MarkCleared(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) listAudit(c *gin.Context) {
	entries, err := s.service.Audit().List(c.Request.Context(), storage.AuditFilter{
		StatementID:      c.Query("statementId"),
		ReconciliationID: c.Query("reconciliationId"),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Count: len(entries), Data: entries})
}

// bindOptionalJSON binds a JSON body that may be empty
func (s *Server) bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && err != io.EOF {
		s.badRequest(c, err.Error())
		return false
	}
	return true
}
