// Package httpapi provides the HTTP API for docchatd.
//
// Processing endpoints (upload, reprocess, delete, ask, cleanup) wrap
// their outcome in the APIResponse envelope; read endpoints return
// their payload directly. Every route except /health and /metrics runs
// behind bearer auth and operates strictly within the authenticated
// tenant.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/answer"
	"github.com/fyrsmithlabs/docchatd/internal/auth"
	"github.com/fyrsmithlabs/docchatd/internal/filestore"
	"github.com/fyrsmithlabs/docchatd/internal/ingest"
	"github.com/fyrsmithlabs/docchatd/internal/logging"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
	"github.com/fyrsmithlabs/docchatd/internal/retention"
	"github.com/fyrsmithlabs/docchatd/internal/retrieval"
	"github.com/fyrsmithlabs/docchatd/internal/vectorstore"
)

// ErrInvalidConfig indicates a missing dependency or bad setting.
var ErrInvalidConfig = errors.New("httpapi: invalid configuration")

// DocumentStore is the metadata surface the handlers need.
type DocumentStore interface {
	Create(ctx context.Context, doc *metadata.Document) error
	Get(ctx context.Context, tenantID, id string) (*metadata.Document, error)
	List(ctx context.Context, tenantID string, opts metadata.ListOptions) ([]metadata.Document, error)
	Stats(ctx context.Context, tenantID string) (*metadata.Stats, error)
}

// FileSaver stores uploaded files.
type FileSaver interface {
	Save(ctx context.Context, tenantID, documentID, filename string, r io.Reader) (string, int64, error)
}

// Pipeline runs document processing and deletion.
type Pipeline interface {
	Ingest(ctx context.Context, tenantID, documentID string) (*ingest.Result, error)
	Reprocess(ctx context.Context, tenantID, documentID string) (*ingest.Result, error)
	Delete(ctx context.Context, tenantID, documentID string) (*ingest.DeleteReport, error)
	DeleteMany(ctx context.Context, tenantID string, documentIDs []string) (*ingest.BulkDeleteReport, error)
}

// Retriever finds chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, question string, documentIDs []string) ([]vectorstore.ScoredChunk, error)
}

// VectorCounter reports vector store state for stats and health.
type VectorCounter interface {
	Count(ctx context.Context, tenantID string) (uint64, error)
	Info(ctx context.Context) (*vectorstore.CollectionInfo, error)
}

// Sweeper runs manual retention sweeps.
type Sweeper interface {
	RunWindow(ctx context.Context, window time.Duration) (*retention.SweepResult, error)
	Window() time.Duration
}

// Pinger checks metadata database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ DocumentStore = (metadata.DocumentStore)(nil)
	_ FileSaver     = (*filestore.Store)(nil)
	_ Pipeline      = (*ingest.Coordinator)(nil)
	_ Retriever     = (*retrieval.Retriever)(nil)
	_ VectorCounter = (vectorstore.ChunkStore)(nil)
	_ Sweeper       = (*retention.Sweeper)(nil)
	_ Pinger        = (*metadata.PostgresStore)(nil)
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Deps are the server's collaborators. Generator and Sweeper are
// optional; their endpoints answer 503 when absent.
type Deps struct {
	Documents DocumentStore
	Chat      metadata.ChatStore
	Files     FileSaver
	Pipeline  Pipeline
	Retriever Retriever
	Generator answer.Generator
	Vectors   VectorCounter
	Sweeper   Sweeper
	DB        Pinger
	Auth      *auth.Verifier
}

// Server provides HTTP endpoints for docchatd.
type Server struct {
	echo   *echo.Echo
	config Config
	logger *logging.Logger

	documents DocumentStore
	chat      metadata.ChatStore
	files     FileSaver
	pipeline  Pipeline
	retriever Retriever
	generator answer.Generator
	vectors   VectorCounter
	sweeper   Sweeper
	db        Pinger
	auth      *auth.Verifier
}

// NewServer creates the HTTP server with routes registered.
func NewServer(cfg Config, deps Deps, logger *logging.Logger) (*Server, error) {
	switch {
	case deps.Documents == nil:
		return nil, fmt.Errorf("%w: document store is required", ErrInvalidConfig)
	case deps.Chat == nil:
		return nil, fmt.Errorf("%w: chat store is required", ErrInvalidConfig)
	case deps.Files == nil:
		return nil, fmt.Errorf("%w: file saver is required", ErrInvalidConfig)
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("%w: pipeline is required", ErrInvalidConfig)
	case deps.Retriever == nil:
		return nil, fmt.Errorf("%w: retriever is required", ErrInvalidConfig)
	case deps.Vectors == nil:
		return nil, fmt.Errorf("%w: vector counter is required", ErrInvalidConfig)
	case deps.DB == nil:
		return nil, fmt.Errorf("%w: database pinger is required", ErrInvalidConfig)
	case deps.Auth == nil:
		return nil, fmt.Errorf("%w: auth verifier is required", ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(metricsMiddleware())

	s := &Server{
		echo:      e,
		config:    cfg,
		logger:    logger,
		documents: deps.Documents,
		chat:      deps.Chat,
		files:     deps.Files,
		pipeline:  deps.Pipeline,
		retriever: deps.Retriever,
		generator: deps.Generator,
		vectors:   deps.Vectors,
		sweeper:   deps.Sweeper,
		db:        deps.DB,
		auth:      deps.Auth,
	}
	e.HTTPErrorHandler = s.errorHandler
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("", s.auth.Middleware())
	api.POST("/documents", s.handleUpload)
	api.GET("/documents", s.handleListDocuments)
	api.GET("/documents/stats", s.handleStats)
	api.GET("/documents/:id", s.handleGetDocument)
	api.GET("/documents/:id/status", s.handleDocumentStatus)
	api.POST("/documents/:id/reprocess", s.handleReprocess)
	api.DELETE("/documents/:id", s.handleDeleteDocument)
	api.POST("/documents/bulk-delete", s.handleBulkDelete)
	api.POST("/ask", s.handleAsk)
	api.POST("/ask/quick", s.handleAskQuick)
	api.GET("/chat/history", s.handleChatHistory)
	api.POST("/admin/cleanup", s.handleCleanup)
}

// requestLogger logs one line per request.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))

			return err
		}
	}
}

// errorHandler renders every unhandled error in the envelope shape.
// Non-HTTP errors become an opaque 500; the cause goes to the log, not
// the client.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	detail := ""

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			detail = m
		}
	} else {
		s.logger.Error(c.Request().Context(), "unhandled request error",
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err))
	}
	if detail == "" {
		detail = http.StatusText(code)
	}

	resp := APIResponse{
		Success: false,
		Message: http.StatusText(code),
		Error:   detail,
	}
	if writeErr := c.JSON(code, resp); writeErr != nil {
		s.logger.Error(c.Request().Context(), "failed to write error response", zap.Error(writeErr))
	}
}

// handleHealth reports liveness plus backing service reachability.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	services := map[string]string{
		"postgres": "ok",
		"qdrant":   "ok",
	}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		services["postgres"] = "unavailable"
		healthy = false
	}
	if _, err := s.vectors.Info(ctx); err != nil {
		services["qdrant"] = "unavailable"
		healthy = false
	}

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  services,
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
