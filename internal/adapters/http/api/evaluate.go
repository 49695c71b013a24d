package api

import (
	"encoding/json"
	"net/http"
)

// EvaluateHandler handles POST /evaluate.
type EvaluateHandler struct {
	deps Dependencies
}

// NewEvaluateHandler builds an EvaluateHandler.
func NewEvaluateHandler(deps Dependencies) *EvaluateHandler {
	return &EvaluateHandler{deps: deps}
}

// HandlePost decodes a plan, submits it to the dispatcher, and returns
// 202 with the task_id/status/cached triple.
func (h *EvaluateHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.evaluate"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Submit(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, op, err)
		return
	}

	writeJSON(w, http.StatusAccepted, newEvaluateResponse(res))
}
