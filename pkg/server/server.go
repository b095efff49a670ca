// Package server exposes the flywheel over HTTP: public stats and event
// stream, keyword entry, and bearer-protected admin controls.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/hadcinema-ops/giveaway/pkg/cycle"
	"github.com/hadcinema-ops/giveaway/pkg/holders"
	"github.com/hadcinema-ops/giveaway/pkg/metrics"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
	"github.com/hadcinema-ops/giveaway/pkg/stats"
)

// Controller is the server's view of the cycle orchestrator.
type Controller interface {
	RunCycle(ctx context.Context, reason string) (*cycle.Trace, error)
	ForceSync(ctx context.Context) (*stats.Document, error)
	LastRun() *cycle.Trace
	Events() *cycle.Broadcaster
	Running() bool
}

type Config struct {
	Logger     *slog.Logger
	ListenAddr string

	Store      stats.Store
	Controller Controller
	Chain      chain.Client
	Mint       solana.PublicKey

	// Registry enables the join endpoint; nil outside keyword entry mode.
	Registry *holders.Registry

	// BearerToken guards the admin endpoints. Empty disables them entirely.
	BearerToken string

	// FrontendOrigins are the allowed CORS origins. Empty allows any.
	FrontendOrigins []string

	ShutdownTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Controller == nil {
		return errors.New("controller is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	httpSrv *http.Server

	// runCtx is the lifetime of Run; admin-triggered cycles inherit it so a
	// closed client connection does not abort a cycle mid-transaction.
	runCtx context.Context
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		runCtx: context.Background(),
	}

	origins := cfg.FrontendOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/public", func(r chi.Router) {
		r.Get("/stats", s.handlePublicStats)
		r.Get("/config", s.handlePublicConfig)
	})
	r.Get("/events", s.handleEvents)
	if cfg.Registry != nil {
		r.Post("/join", s.handleJoin)
	}

	if cfg.BearerToken != "" {
		adminLimiter := NewRateLimiter(rate.Every(time.Minute/10), 5)
		r.Route("/admin", func(r chi.Router) {
			r.Use(RateLimitMiddleware(adminLimiter))
			r.Use(s.requireBearer)
			r.Post("/run-once", s.handleRunOnce)
			r.Post("/force-sync", s.handleForceSync)
			r.Get("/last-run", s.handleLastRun)
		})
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// The event stream holds its response open; no write timeout.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: http server error causing shutdown", "error", err, "address", s.cfg.ListenAddr)
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
