// Package core provides the HTTP chassis of the harvest service: a chi router
// usable both as a plain HTTP server and behind AWS Lambda (API Gateway proxy
// events), with the cross-cutting middleware, response helpers, request
// validation, and health checks shared by every handler.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"caneharvest/internal/config"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	// RecordRequest records latency and count for one request. endpoint is
	// the matched route pattern.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the router and everything the middleware chain needs.
// Handlers are attached through RouteRegistrars before MountRoutes.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	// RouteRegistrars mount domain handlers at the router root. Populated by
	// the entry point to keep core free of handler imports.
	RouteRegistrars []func(r chi.Router)

	// ShutdownHooks run in order during Shutdown (pool close, metric flush).
	ShutdownHooks []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// The Validator judges "today" in the database timezone so that harvest dates
// agree with server-assigned timestamps.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger, WithLocation(cfg.Database.Location())),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs every shutdown hook, continuing past failures, and returns
// the joined errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, hook := range s.ShutdownHooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
