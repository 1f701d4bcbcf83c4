// Package server exposes the ingestion pipeline over HTTP, with health
// probes, metrics and graceful shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CihadCengiz/prompt-generator/internal/ingest"
)

// DefaultRepoTag is used when a request omits repoTag.
const DefaultRepoTag = "codex-agent"

// Pipeline is the subset of ingest.Pipeline served over HTTP.
type Pipeline interface {
	EmbedAndStore(ctx context.Context, filePath, content, repoTag, commitHash string) (ingest.EmbedResult, error)
	DeleteByCommit(ctx context.Context, repoTag, commitHash string) (ingest.DeleteResult, error)
	DeleteByFileList(ctx context.Context, repoTag, commitHash string, filePaths []string) (ingest.DeleteResult, error)
	GetRelevantChunks(ctx context.Context, query string, topK int) ([]string, error)
}

// Config configures the API server.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	// DefaultRepoTag replaces DefaultRepoTag when set.
	DefaultRepoTag string
}

// Server is the HTTP API.
type Server struct {
	pipeline Pipeline
	config   Config
	health   *HealthServer
	metrics  http.Handler
	logger   *slog.Logger
	router   chi.Router

	mu     sync.Mutex
	server *http.Server
}

// Option customizes a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithHealth serves the probes of h instead of a bare health server.
func WithHealth(h *HealthServer) Option { return func(s *Server) { s.health = h } }

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// New creates a server with the given dependencies.
func New(p Pipeline, cfg Config, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.DefaultRepoTag == "" {
		cfg.DefaultRepoTag = DefaultRepoTag
	}
	s := &Server{
		pipeline: p,
		config:   cfg,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = NewHealthServer("")
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	s.health.Routes(r)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		r.Post("/embed-repo", s.handleEmbedRepo)
		r.Delete("/delete-commit", s.handleDeleteCommit)
		r.Route("/api", func(r chi.Router) {
			r.Delete("/delete-commit-files", s.handleDeleteCommitFiles)
			r.Post("/context", s.handleContext)
		})
	})
	return r
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler { return s.router }

// Health returns the server's probe state.
func (s *Server) Health() *HealthServer { return s.health }

// ListenAndServe serves until Shutdown is called. The server reports ready
// once its listener is open.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	s.health.SetReady(true)
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
