package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

const serviceName = "catalog-engine"

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	logger *observability.Logger
	ready  ReadinessChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(logger *observability.Logger, ready ReadinessChecker) *HealthHandler {
	return &HealthHandler{logger: logger, ready: ready}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engine.HealthResponse{Status: "healthy", Service: serviceName})
}

// Ready handles GET /ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.ready.Ready(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, engine.HealthResponse{Status: "unavailable", Service: serviceName, Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, engine.HealthResponse{Status: "ready", Service: serviceName})
}
