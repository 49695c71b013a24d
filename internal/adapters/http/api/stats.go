// Package api declares HTTP contracts and route registration helpers.
package api

import "net/http"

// StatsHandler handles GET /stats.
type StatsHandler struct {
	deps Dependencies
}

// NewStatsHandler builds a StatsHandler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// HandleStats reports task counts by status, cache row count, and
// evaluator availability.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s := h.deps.Stats(r.Context())
	writeJSON(w, http.StatusOK, statsResponse{
		TasksByStatus:      s.TasksByStatus,
		CacheRowCount:      s.CacheRowCount,
		EvaluatorAvailable: s.EvaluatorAvailable,
	})
}
