// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/llmrank/internal/maintenance"
)

// MaintenanceHandler handles POST /maintenance/cleanup.
type MaintenanceHandler struct {
	deps Dependencies
}

// NewMaintenanceHandler builds a MaintenanceHandler.
func NewMaintenanceHandler(deps Dependencies) *MaintenanceHandler {
	return &MaintenanceHandler{deps: deps}
}

// HandlePost decodes a cleanup request, converts days_old to a
// retention window, and registers the sweep as a task rather than
// running it inline: the caller gets a task_id back immediately and
// polls GET /tasks/{task_id} for completion, the same C3 mechanism
// used for evaluation jobs. resources/limit/hard_delete are validated
// here and passed through to the cleaner rather than accepted and
// ignored: naming an unsupported resource is a 400, not a silent no-op.
func (h *MaintenanceHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.maintenance_cleanup"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.DaysOld <= 0 {
		writeError(w, op, NewKind(op, ErrBadRequest))
		return
	}
	for _, resource := range req.Resources {
		if !maintenance.ValidResource(resource) {
			writeError(w, op, NewKind(op, ErrBadRequest))
			return
		}
	}

	retention := time.Duration(req.DaysOld) * 24 * time.Hour
	scope := maintenance.Scope{
		Resources:  req.Resources,
		Limit:      req.Limit,
		HardDelete: req.HardDelete,
	}
	t, err := h.deps.RunCleanup(r.Context(), retention, req.DryRun, scope, req.Reason)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, cleanupResponse{
		TaskID: t.TaskID,
		Status: t.Status,
		DryRun: req.DryRun,
	})
}
