// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strings"

	"github.com/okian/llmrank/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler handles GET /health.
type HealthHandler struct {
	deps Dependencies
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HandleHealth reports queue and evaluator health as JSON by default.
// A request that asks for text/plain or openmetrics-text gets the
// Prometheus exposition instead, so scrapers can still point at /health
// directly.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/plain") || strings.Contains(accept, "openmetrics-text") {
		promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
		return
	}

	queueOK := h.deps.QueueHealthy()
	stats := h.deps.Stats(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Cache:     "ok",
		Queue:     "ok",
		Evaluator: "available",
	}
	if !queueOK {
		resp.Queue = "down"
		resp.Status = "degraded"
	}
	if !stats.EvaluatorAvailable {
		resp.Evaluator = "unavailable"
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}
