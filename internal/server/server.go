// Package server wires handlers and middleware into the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/handler"
	"github.com/sakif/coderunner/internal/middleware"
	"github.com/sakif/coderunner/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port            int
	RateLimitRPS    float64
	RateLimitBurst  int
	// WriteTimeout must outlast the longest permitted execution plus its
	// cleanup, or finished results are never delivered.
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the routes dispatch to. Snippets may be nil,
// in which case the snippet routes are not mounted.
type Deps struct {
	Executor executor.Executor
	Snippets *service.SnippetService
	Health   map[string]handler.Pinger
}

// Server is the HTTP front end of the execution engine.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	limiter *middleware.RateLimiter
}

// idleClientTTL is how long a client's rate limit bucket survives without
// traffic.
const idleClientTTL = 10 * time.Minute

func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Executor == nil {
		return nil, errors.New("server: executor is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, idleClientTTL),
	}
	s.setupRoutes(deps)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// GET    /healthz
// GET    /metrics
// POST   /run                     (rate limited)
// POST   /api/run                 (rate limited)
// GET    /api/languages
// GET    /api/snippets
// POST   /api/snippets
// GET    /api/snippets/{id}
// PUT    /api/snippets/{id}
// DELETE /api/snippets/{id}
// POST   /api/snippets/{id}/run   (rate limited)
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	health := handler.NewHealthHandler(deps.Health, s.logger)
	s.router.Get("/healthz", health.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	exec := handler.NewExecuteHandler(deps.Executor, s.logger)
	s.router.With(s.limiter.Middleware).Post("/run", exec.HandleRun)

	s.router.Route("/api", func(r chi.Router) {
		r.With(s.limiter.Middleware).Post("/run", exec.HandleRun)
		r.Get("/languages", exec.HandleLanguages)

		if deps.Snippets == nil {
			return
		}
		snippets := handler.NewSnippetHandler(deps.Snippets, s.logger)
		r.Route("/snippets", func(r chi.Router) {
			r.Get("/", snippets.HandleList)
			r.Post("/", snippets.HandleCreate)
			r.Get("/{id}", snippets.HandleGetByID)
			r.Put("/{id}", snippets.HandleUpdate)
			r.Delete("/{id}", snippets.HandleDelete)
			r.With(s.limiter.Middleware).Post("/{id}/run", snippets.HandleRun)
		})
	})
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := s.httpServer()

	go s.sweepClients(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) sweepClients(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("dropped idle rate limit buckets", slog.Int("count", n))
			}
		}
	}
}
