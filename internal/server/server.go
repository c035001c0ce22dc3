// Package server provides the HTTP API for cordsearch.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/cordsearch/internal/config"
	"github.com/hyperjump/cordsearch/internal/indexer"
	"github.com/hyperjump/cordsearch/internal/metrics"
	"github.com/hyperjump/cordsearch/internal/search"
	"github.com/hyperjump/cordsearch/internal/storage"
)

const requestIDHeader = "X-Request-ID"

// Server is the HTTP server for the cordsearch API.
type Server struct {
	engine   *search.Engine
	indexer  *indexer.Indexer
	storage  storage.Storage
	config   *config.Config
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	server   *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithGatherer sets the registry served on /metrics. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// NewServer creates a server with the given dependencies. idx may be nil, in which case
// the re-cache endpoint reports 501.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		indexer:  idx,
		storage:  storage,
		config:   cfg,
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	timeout := time.Duration(s.config.Server.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Get("/api/v1/search", s.handleSearchGet)
		r.Post("/api/v1/search", s.handleSearchPost)
		r.Get("/api/v1/records/{id}", s.handleGetRecord)
		r.Get("/api/v1/status", s.handleStatus)
	})
	// Re-caching embeds the whole corpus and is not bound by the request timeout.
	r.Post("/api/v1/recache", s.handleRecache)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Recache rebuilds the caches and, when a new generation was produced or the engine is
// not serving the cached one, reloads the engine with it.
func (s *Server) Recache(ctx context.Context, force bool) (*indexer.Report, error) {
	if s.indexer == nil {
		return nil, errRecacheDisabled
	}
	res, err := s.indexer.Recache(ctx, force)
	if err != nil {
		return nil, err
	}
	if res.Report.Skipped && s.engine.State() == search.StateReady && s.engine.Stats().Generation == res.Report.Generation {
		return &res.Report, nil
	}
	if err := s.engine.Reload(res.Store, res.Table); err != nil {
		return nil, err
	}
	return &res.Report, nil
}

type ctxKey int

const requestIDKey ctxKey = iota

// requestID tags each request with an ID, reusing the caller's X-Request-ID when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
