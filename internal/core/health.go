package core

import (
	"context"
	"net/http"
	"time"
)

// Pinger is the minimal database liveness check used by the health
// endpoint, satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthCheckTimeout bounds the dependency checks so a wedged database
// cannot hang the health endpoint.
const healthCheckTimeout = 2 * time.Second

// healthResponse is the JSON shape returned by /health.
type healthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Commit      string            `json:"commit"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks"`
}

// HandleHealth reports process liveness and dependency health. Returns
// 200 when all checks pass, 503 when any dependency is down. The
// endpoint is unauthenticated and sits outside the versioned API.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if s.Pinger != nil {
		if err := s.Pinger.Ping(ctx); err != nil {
			checks["database"] = "down"
			healthy = false
			s.Logger.Error("health check: database ping failed", "error", err)
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "skipped"
	}

	resp := healthResponse{
		Status:      "ok",
		Environment: s.Config.Environment,
		Version:     s.Config.Build.Version,
		Commit:      s.Config.Build.Commit,
		Checks:      checks,
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	JSON(w, r, status, resp)
}
