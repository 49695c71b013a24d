package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/llmrank/internal/orcherr"
)

// TaskHandler handles GET and PATCH /tasks/{task_id}.
type TaskHandler struct {
	deps Dependencies
}

// NewTaskHandler builds a TaskHandler.
func NewTaskHandler(deps Dependencies) *TaskHandler {
	return &TaskHandler{deps: deps}
}

// Handle dispatches by method: GET returns task state, PATCH accepts
// {action: "cancel"}.
func (h *TaskHandler) Handle(w http.ResponseWriter, r *http.Request) {
	const op = "api.task"
	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeError(w, op, NewKind(op, ErrBadRequest))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, taskID)
	case http.MethodPatch:
		h.handlePatch(w, r, taskID)
	default:
		http.NotFound(w, r)
	}
}

func (h *TaskHandler) handleGet(w http.ResponseWriter, r *http.Request, taskID string) {
	const op = "api.get_task"
	t, err := h.deps.GetTask(r.Context(), taskID)
	if err != nil {
		writeError(w, op, WrapKind(op, ErrNotFound, err))
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(t))
}

func (h *TaskHandler) handlePatch(w http.ResponseWriter, r *http.Request, taskID string) {
	const op = "api.patch_task"
	var req patchTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Action != "cancel" {
		writeError(w, op, NewKind(op, ErrBadRequest))
		return
	}

	before, err := h.deps.GetTask(r.Context(), taskID)
	if err != nil {
		writeError(w, op, WrapKind(op, ErrNotFound, err))
		return
	}
	if before.Status.Terminal() {
		writeError(w, op, WrapKind(op, orcherr.ErrConflict, orcherr.ErrConflict))
		return
	}

	t, err := h.deps.Cancel(r.Context(), taskID)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(t))
}
