package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

// Classifier is the part of classifier.Service the API needs
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*types.ClassificationResult, error)
}

// Config holds listener settings
type Config struct {
	Addr  string
	Debug bool
}

// Server serves the classification contract over HTTP
type Server struct {
	engine     *gin.Engine
	server     *http.Server
	classifier Classifier
	storage    storage.Storage
	logger     *slog.Logger
	cfg        Config
}

// NewServer builds the router. Storage is owned by the caller.
func NewServer(c Classifier, store storage.Storage, cfg Config, logger *slog.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:     gin.New(),
		classifier: c,
		storage:    store,
		logger:     logger,
		cfg:        cfg,
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())
	s.registerRoutes()
	return s
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"duration", time.Since(start))
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/classify", s.handleClassify)
		v1.GET("/status", s.handleStatus)
		v1.GET("/documents", s.handleListDocuments)
		v1.DELETE("/documents/:id", s.handleDeleteDocument)
	}
}

// Start listens until Stop is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("starting http server", "addr", s.cfg.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
