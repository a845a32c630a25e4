package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"trustguard/internal/models"
	"trustguard/internal/ratelimit"
	"trustguard/internal/stats"
	"trustguard/internal/storage"
	"trustguard/internal/version"
)

// healthTimeout bounds each dependency check of the health endpoint.
const healthTimeout = 2 * time.Second

// HealthCheckFunc reports whether a dependency is reachable.
type HealthCheckFunc func(ctx context.Context) error

// TotalsReader exposes decision totals aggregated across instances.
type TotalsReader interface {
	Totals(ctx context.Context) (map[string]int64, error)
}

type namedCheck struct {
	name  string
	check HealthCheckFunc
}

// Handlers contains the HTTP handlers of the gateway and its admin listener
type Handlers struct {
	policies *ratelimit.PolicySet
	storage  storage.Storage
	stats    *stats.MemoryRecorder
	cluster  TotalsReader
	checks   []namedCheck
	version  version.Info
}

// HandlersOption configures optional Handlers dependencies.
type HandlersOption func(*Handlers)

// WithStorage sets the rejection log used by the rejections endpoint and the
// health check.
func WithStorage(s storage.Storage) HandlersOption {
	return func(h *Handlers) {
		h.storage = s
	}
}

// WithStats sets the process-local decision statistics.
func WithStats(rec *stats.MemoryRecorder) HandlersOption {
	return func(h *Handlers) {
		h.stats = rec
	}
}

// WithClusterStats sets the shared statistics backend.
func WithClusterStats(r TotalsReader) HandlersOption {
	return func(h *Handlers) {
		h.cluster = r
	}
}

// WithHealthCheck adds a named dependency to the health endpoint.
func WithHealthCheck(name string, check HealthCheckFunc) HandlersOption {
	return func(h *Handlers) {
		h.checks = append(h.checks, namedCheck{name: name, check: check})
	}
}

// WithVersion sets the build info reported by the health endpoint.
func WithVersion(v version.Info) HandlersOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(policies *ratelimit.PolicySet, opts ...HandlersOption) *Handlers {
	h := &Handlers{policies: policies}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck handles health check requests
// GET /health
// A failing dependency marks the response degraded. The status stays 200.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version

	response.AddComponent("gateway", models.StatusHealthy, "Gateway is operational")

	if h.storage != nil {
		h.runCheck(r.Context(), response, "storage", h.storage.Ping)
	}
	for _, c := range h.checks {
		h.runCheck(r.Context(), response, c.name, c.check)
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

func (h *Handlers) runCheck(ctx context.Context, response *models.HealthCheckResponse, name string, check HealthCheckFunc) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		slog.Warn("Health check failed", "component", name, "error", err)
		response.AddComponent(name, models.StatusUnhealthy, err.Error())
		return
	}
	response.AddComponent(name, models.StatusHealthy, "")
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message, errorCode))
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are already written
		slog.Error("Error encoding JSON response", "error", err)
	}
}
