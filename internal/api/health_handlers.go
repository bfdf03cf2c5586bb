package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/wantlist/internal/health"
)

// readyTimeout bounds all dependency checks of one readiness probe.
const readyTimeout = 5 * time.Second

// Check states reported by /ready.
const (
	checkOK            = "ok"
	checkError         = "error"
	checkNotConfigured = "not_configured"
)

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	dbChecker    health.Checker
	redisChecker health.Checker
	now          func() time.Time
}

// HealthHandlersConfig configures the health check handlers. A nil checker
// means the dependency is not used (in-memory backends, no Redis).
type HealthHandlersConfig struct {
	DBChecker    health.Checker
	RedisChecker health.Checker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:    config.DBChecker,
		redisChecker: config.RedisChecker,
		now:          time.Now,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Returns 200 whenever the process can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": checkOK},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe).
// Returns 503 when a configured dependency fails its check.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{
		"database": runCheck(ctx, "database", h.dbChecker),
		"redis":    runCheck(ctx, "redis", h.redisChecker),
	}

	status := "healthy"
	statusCode := http.StatusOK
	for _, state := range checks {
		if state == checkError {
			status = "unhealthy"
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, r, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func runCheck(ctx context.Context, name string, checker health.Checker) string {
	if checker == nil {
		return checkNotConfigured
	}
	if err := checker.HealthCheck(ctx); err != nil {
		slog.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
		return checkError
	}
	return checkOK
}
