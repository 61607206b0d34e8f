// Package server exposes audits over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/pipeline"
	"github.com/ppiankov/freightaudit/internal/store"
)

const shutdownTimeout = 10 * time.Second

// RunStore looks up persisted audit runs
type RunStore interface {
	GetRun(ctx context.Context, id string) (*model.AuditReport, error)
	ListRuns(ctx context.Context, limit int) ([]store.AuditRun, error)
	Findings(ctx context.Context, runID string) ([]store.LeakageFinding, error)
}

// Server serves the audit API
type Server struct {
	pipeline *pipeline.Pipeline
	runs     RunStore
	cfg      model.ServerConfig
	engine   *gin.Engine
	logger   *zap.Logger
}

// New builds the router. runs may be nil, in which case run lookups
// answer 503.
func New(p *pipeline.Pipeline, runs RunStore, cfg model.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		pipeline: p,
		runs:     runs,
		cfg:      cfg,
		logger:   logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	api := r.Group("/api")
	api.GET("/health", s.health)

	audits := api.Group("/audits")
	audits.POST("", s.createAudit)
	audits.GET("", s.listAudits)
	audits.GET("/:id", s.getAudit)
	audits.GET("/:id/findings", s.listFindings)

	s.engine = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
