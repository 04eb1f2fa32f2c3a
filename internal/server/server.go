// Package server exposes the cached content set to the kiosk renderer over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/view"
)

const shutdownTimeout = 10 * time.Second

// Controller is the part of the sync engine the renderer can drive
type Controller interface {
	Login(ctx context.Context, password string) error
	Logout() error
	RetryNow(ctx context.Context) error
	State() domain.State
}

// Config holds the listener settings
type Config struct {
	Addr       string
	LoginRate  float64 // Command requests per second per client, 0 = unlimited
	LoginBurst int
}

// Server is the renderer HTTP API
type Server struct {
	cfg     Config
	engine  Controller
	queries *view.Queries
	limiter *ipRateLimiter
	logger  *slog.Logger
}

// New creates a Server
func New(cfg Config, engine Controller, queries *view.Queries, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		queries: queries,
		limiter: newIPRateLimiter(cfg.LoginRate, cfg.LoginBurst),
		logger:  logger,
	}
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/state", s.handleState)
	r.Get("/api/summary", s.handleSummary)
	r.Get("/api/content", s.handleContent)
	r.Get("/media/{key}", s.handleMedia)
	r.Get("/media/{key}/backdrop", s.handleBackdrop)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Post("/api/login", s.handleLogin)
		r.Post("/api/logout", s.handleLogout)
		r.Post("/api/retry", s.handleRetry)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.cleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
