// Package server provides the HTTP API for snapseek.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/indexer"
	"github.com/hyperjump/snapseek/internal/search"
	"github.com/hyperjump/snapseek/internal/vector"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// Server is the HTTP server for the snapseek API.
type Server struct {
	engine   *search.Engine
	indexer  *indexer.Indexer
	index    vector.Index
	config   *config.Config
	provider string
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. provider is the
// embedding provider name reported by the status endpoint.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	index vector.Index,
	cfg *config.Config,
	provider string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:   engine,
		indexer:  idx,
		index:    index,
		config:   cfg,
		provider: provider,
		logger:   utils.OrNop(logger),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/images/index", s.handleIndexImage)
		r.Post("/images/search", s.handleSearch)
		r.Get("/status", s.handleStatus)
	})
	// Routes used by older mobile clients.
	r.Post("/api/images/index", s.handleIndexImage)
	r.Post("/api/images/search", s.handleLegacySearch)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
