package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"teamnetwork/internal/types"
)

// defaultRequestTimeout is the soft timeout applied to request contexts
// when no explicit RequestTimeout is configured. In Lambda this should
// be the function timeout minus 1 second.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials or session
// tokens.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-CSRF-Token",
}

// MountRoutes defines the top-level routing hierarchy: the global
// middleware chain, API version groups, and top-level routes.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/api/v1", s.mountV1)

	for _, registrar := range s.RootRouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer       - Catches panics; outermost to catch all failures.
//  2. ContextTimeout  - Sets soft deadline ahead of the platform hard timeout.
//  3. RequestID       - Generates/propagates correlation ID for tracing.
//  4. SecurityHeaders - Ensures all responses include security headers.
//  5. RequestLogger   - Structured logging (redacted headers).
//  6. CORS            - Browser security headers; answers preflights.
//  7. Metrics         - Request latency and count recording.
//  8. Auth            - Resolves the session cookie into an Actor.
//  9. EdgeRouter      - Access-control decision table; needs the Actor.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.AuthMiddleware)
	s.router.Use(s.EdgeRouterMiddleware)
}

// mountV1 registers all v1 endpoints. Domain handler routes are
// registered via V1RouteRegistrars, populated by the application entry
// point. This indirection avoids import cycles between core and handler
// packages.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// requestTimeout returns the configured request timeout, falling back
// to the default when unset.
func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware sets a deadline on the request context.
// Downstream handlers receive a cancelled context when the deadline is
// exceeded; the response is controlled by the handler's behavior on
// cancellation.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware generates or propagates a unique request ID for
// correlation across logs and traces. An incoming X-Request-Id header
// is reused; otherwise a new random ID is generated. The ID is stored
// in the context and echoed as the X-Request-Id response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID produces a cryptographically random hex string
// suitable for use as a request correlation ID.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unrecoverable, but a
		// non-empty correlation ID is still needed.
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}
