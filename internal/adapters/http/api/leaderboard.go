package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/llmrank/internal/domain/aggregate"
)

// LeaderboardHandler handles GET /leaderboard and the admin actions
// under /leaderboard/*.
type LeaderboardHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewLeaderboardHandler builds a LeaderboardHandler.
func NewLeaderboardHandler(deps Dependencies, maxLimit int) *LeaderboardHandler {
	if maxLimit <= 0 {
		maxLimit = 200
	}
	return &LeaderboardHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGet handles GET /leaderboard with language, subject_type,
// task_type, model_name, score_min/max, updated_after, limit, and
// offset query parameters.
func (h *LeaderboardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	filter := aggregate.Filter{
		Language:          q.Get("language"),
		SubjectType:       q.Get("subject_type"),
		TaskType:          q.Get("task_type"),
		ModelNameContains: q.Get("model_name"),
	}
	if v := q.Get("score_min"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.ScoreMin = &f
		}
	}
	if v := q.Get("score_max"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.ScoreMax = &f
		}
	}
	if v := q.Get("updated_after"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.UpdatedAfter = &t
		}
	}

	limit := h.maxLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= h.maxLimit {
			limit = n
		}
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	rows, total, err := h.deps.Browse(r.Context(), filter, offset, limit)
	if err != nil {
		writeError(w, op, err)
		return
	}
	resp := leaderboardPageResponse{Rows: make([]aggregateRowResponse, len(rows)), Total: total}
	for i, row := range rows {
		resp.Rows[i] = newAggregateRowResponse(row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleQuarantine handles POST /leaderboard/quarantine (admin).
func (h *LeaderboardHandler) HandleQuarantine(w http.ResponseWriter, r *http.Request) {
	const op = "api.quarantine"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req quarantineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	keys := make([]aggregate.Key, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = k.toDomain()
	}
	n, err := h.deps.Quarantine(r.Context(), keys, req.Reason)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, adminActionResponse{Affected: n})
}

// HandleRestore handles POST /leaderboard/restore (admin).
func (h *LeaderboardHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	const op = "api.restore"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	keys := make([]aggregate.Key, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = k.toDomain()
	}
	n, err := h.deps.Restore(r.Context(), keys)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, adminActionResponse{Affected: n})
}

// HandleDelete handles DELETE /leaderboard/{row_id} (admin, hard
// delete). row_id is the five key fields joined by "|", since a cache
// row's identity is composite rather than a single opaque ID.
func (h *LeaderboardHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.hard_delete"
	if r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}
	rowID := strings.TrimPrefix(r.URL.Path, "/leaderboard/")
	key, err := parseRowID(rowID)
	if err != nil {
		writeError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	n, err := h.deps.HardDelete(r.Context(), []aggregate.Key{key})
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, adminActionResponse{Affected: n})
}

// parseRowID decodes a "fingerprint|model_name|language|subject_type|task_type"
// composite identifier into an aggregate.Key.
func parseRowID(rowID string) (aggregate.Key, error) {
	parts := strings.Split(rowID, "|")
	if len(parts) != 5 {
		return aggregate.Key{}, errRowIDFormat
	}
	return aggregate.Key{
		Fingerprint: parts[0],
		ModelName:   parts[1],
		Language:    parts[2],
		SubjectType: parts[3],
		TaskType:    parts[4],
	}, nil
}
