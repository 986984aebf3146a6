package handler

import (
	"context"
	"net/http"
	"time"
)

// readyzTimeout bounds dependency checks so a hung database cannot
// wedge the readiness probe.
const readyzTimeout = 5 * time.Second

// HealthChecker is the ping surface shared by the Postgres repository
// and the Redis cache wrapper.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db    HealthChecker
	cache HealthChecker
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for db or cache if they are not yet initialized.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{
		db:    db,
		cache: cache,
	}
}

// HealthResponse is the body for both probes.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Healthz reports that the process is up. Dependencies are not
// consulted; a degraded instance still answers here.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: apiVersion,
	})
}

// Readyz reports whether this instance can serve chat traffic, which
// needs both Postgres and Redis reachable.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
	defer cancel()

	checks := make(map[string]string)
	healthy := true
	for name, dep := range map[string]HealthChecker{
		"postgres": h.db,
		"redis":    h.cache,
	} {
		result, ok := checkDependency(ctx, dep)
		checks[name] = result
		healthy = healthy && ok
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status: status,
		Checks: checks,
	})
}

// checkDependency pings a dependency and reports its probe result.
func checkDependency(ctx context.Context, dep HealthChecker) (string, bool) {
	if dep == nil {
		return "not configured", true
	}
	if err := dep.Ping(ctx); err != nil {
		return "error: " + err.Error(), false
	}
	return "ok", true
}
