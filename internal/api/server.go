// Package api exposes the reconciliation service over HTTP as JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/pkg/logger"
)

// Config holds API server configuration.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Mode           string        `mapstructure:"mode"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		Mode:           gin.ReleaseMode,
		MaxUploadBytes: 32 << 20,
		ShutdownGrace:  10 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	config  Config
	router  *gin.Engine
	service *reconciler.Service
	logger  logger.Logger
}

// NewServer creates a new API server around service.
func NewServer(cfg Config, service *reconciler.Service, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}

	s := &Server{
		config:  cfg,
		router:  gin.New(),
		service: service,
		logger:  log.WithComponent("api"),
	}
	s.router.MaxMultipartMemory = cfg.MaxUploadBytes

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router returns the HTTP handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())

	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.router.GET("/health", s.health)

	api := s.router.Group("/api")
	{
		api.POST("/ledger", s.importLedger)

		api.POST("/statements", s.importStatement)
		api.GET("/statements/:id", s.getStatement)
		api.DELETE("/statements/:id", s.deleteStatement)
		api.GET("/statements/:id/summary", s.statementSummary)
		api.POST("/statements/:id/automatch", s.autoMatch)

		api.GET("/items/:id/candidates", s.candidates)
		api.POST("/items/:id/match", s.manualMatch)
		api.POST("/items/:id/exclude", s.exclude)
		api.POST("/items/:id/unmatch", s.unmatch)

		api.POST("/reconciliations", s.startReconciliation)
		api.GET("/reconciliations/:id", s.getReconciliation)
		api.DELETE("/reconciliations/:id", s.abandonReconciliation)
		api.POST("/reconciliations/:id/complete", s.completeReconciliation)
		api.POST("/reconciliations/:id/refresh", s.refreshReconciliation)
		api.GET("/reconciliations/:id/discrepancy", s.discrepancy)

		api.GET("/accounts/:id/statements", s.listStatements)
		api.GET("/accounts/:id/reconciliations", s.listReconciliations)
		api.GET("/accounts/:id/outstanding", s.listOutstanding)
		api.GET("/accounts/:id/outstanding/stale", s.staleOutstanding)
		api.POST("/outstanding/:id/clear", s.clearOutstanding)

		api.GET("/audit", s.listAudit)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.config.Addr).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	grace := s.config.ShutdownGrace
	if grace <= 0 {
		grace = DefaultConfig().ShutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.logger.Info("Shutting down API server")
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs one line per request, skipping health checks.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.FullPath() == "/health" {
			return
		}
		entry := s.logger.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
