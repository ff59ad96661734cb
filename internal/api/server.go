// Package api serves summaries over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"aisum/internal/auth"
	"aisum/internal/config"
	"aisum/internal/summarizer"
)

// Options configures the HTTP server.
type Options struct {
	Addr         string
	CORSOrigins  []string
	DefaultDepth int
	// MaxCacheAge bounds how stale a cached issue may be when a request starts.
	MaxCacheAge time.Duration
	// MaxConcurrent bounds in-flight summarize requests; 0 disables the bound.
	MaxConcurrent int
	QueueTimeout  time.Duration
}

// AuthConfig derives the token checks for a server section. A positive
// rate limit turns on per-token limiting at that many requests a minute.
func AuthConfig(cfg config.ServerConfig) auth.ManagerConfig {
	limits := auth.DefaultRateLimitConfig()
	if cfg.RateLimit > 0 {
		limits.Enabled = true
		limits.DefaultLimit = cfg.RateLimit
	}
	return auth.ManagerConfig{
		Enabled:      cfg.AuthEnabled,
		StaticToken:  cfg.StaticToken,
		RateLimiting: limits,
	}
}

// DefaultMaxCacheAge is how long fetched issues are reused across requests.
const DefaultMaxCacheAge = time.Hour

// Server represents the HTTP API server
type Server struct {
	router     *http.ServeMux
	server     *http.Server
	opts       Options
	logger     *slog.Logger
	summarizer *summarizer.Summarizer
	auth       *auth.Manager
	shedder    *LoadShedder
	now        func() time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options, sum *summarizer.Summarizer, authMgr *auth.Manager, logger *slog.Logger) *Server {
	if opts.MaxCacheAge <= 0 {
		opts.MaxCacheAge = DefaultMaxCacheAge
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 30 * time.Second
	}
	s := &Server{
		router:     http.NewServeMux(),
		opts:       opts,
		logger:     logger,
		summarizer: sum,
		auth:       authMgr,
		shedder:    NewLoadShedder(opts.MaxConcurrent, opts.QueueTimeout),
		now:        time.Now,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:        opts.Addr,
		Handler:     s.applyMiddleware(s.router),
		ReadTimeout: 15 * time.Second,
		// Generation with retries can take minutes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.opts.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler, outermost last.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware(s.opts.CORSOrigins)(handler)
	return handler
}
