// Package core provides the API chassis for the TeamNetwork platform.
// It creates a chi router compatible with both standard HTTP (for local
// dev) and AWS Lambda Proxy Integration (via chiadapter). It enforces
// cross-cutting concerns -- security, logging, observability, edge
// access control, and error handling -- before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"teamnetwork/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count metrics to
// CloudWatch or equivalent backends.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies for the TeamNetwork API,
// allowing for easy injection during testing and distinct configuration
// for different environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// SessionResolver turns a session cookie into an Actor. Injected
	// for testability; nil leaves every request unauthenticated.
	SessionResolver SessionResolver

	// MembershipResolver resolves an authenticated user's standing in
	// the organization implied by the request path.
	MembershipResolver MembershipResolver

	// Pinger reports database liveness for the health endpoint.
	Pinger Pinger

	// V1RouteRegistrars are populated by the application entry point.
	// This indirection avoids import cycles between core and handler
	// packages.
	V1RouteRegistrars []func(chi.Router)

	// RootRouteRegistrars mount routes outside the /api/v1 group, such
	// as the Stripe webhook whose exact path is pinned by the provider
	// configuration.
	RootRouteRegistrars []func(chi.Router)

	// Closers are shut down in order during Shutdown (e.g. the pgx pool).
	Closers []func()

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares
// the server for route mounting. The caller mounts routes via
// MountRoutes after construction; this separation lets tests customize
// route registration.
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
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router. Used by
// http.ListenAndServe (local) and chiadapter.New (Lambda).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	for _, closeFn := range s.Closers {
		closeFn()
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
