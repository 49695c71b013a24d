// Package api declares HTTP contracts and route registration helpers
// for the llmrank control plane.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/llmrank/internal/dispatcher"
	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/maintenance"
	"github.com/okian/llmrank/internal/queryapi"
)

// Dependencies bundles everything the HTTP handlers need. orchestrator.Service
// satisfies this directly, keeping the handler layer decoupled from the
// wiring details of any one collaborator.
type Dependencies interface {
	Submit(ctx context.Context, p plan.Plan) (dispatcher.SubmitResult, error)
	Cancel(ctx context.Context, taskID string) (task.Task, error)
	GetTask(ctx context.Context, taskID string) (task.Task, error)
	Browse(ctx context.Context, filter aggregate.Filter, offset, limit int) ([]aggregate.Row, int, error)
	Quarantine(ctx context.Context, keys []aggregate.Key, reason string) (int, error)
	Restore(ctx context.Context, keys []aggregate.Key) (int, error)
	HardDelete(ctx context.Context, keys []aggregate.Key) (int, error)
	Stats(ctx context.Context) queryapi.Stats
	RunCleanup(ctx context.Context, retention time.Duration, dryRun bool, scope maintenance.Scope, reason string) (task.Task, error)
	QueueHealthy() bool
}

// Server wires HTTP routes for the control-plane API.
type Server struct {
	evaluateHandler    *EvaluateHandler
	taskHandler        *TaskHandler
	leaderboardHandler *LeaderboardHandler
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	maintenanceHandler *MaintenanceHandler
	maxBrowseLimit     int
}

// NewServer creates a new API server with all handlers. Plan
// validation against the subject taxonomy and size limits happens in
// the dispatcher, not here; the server only shapes the HTTP surface.
func NewServer(deps Dependencies, maxBrowseLimit int) *Server {
	return &Server{
		evaluateHandler:    NewEvaluateHandler(deps),
		taskHandler:        NewTaskHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxBrowseLimit),
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		maintenanceHandler: NewMaintenanceHandler(deps),
		maxBrowseLimit:     maxBrowseLimit,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/evaluate", MetricsMiddleware(s.evaluateHandler.HandlePost, "evaluate"))
	mux.HandleFunc("/tasks/", MetricsMiddleware(s.taskHandler.Handle, "tasks"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGet, "leaderboard"))
	mux.HandleFunc("/leaderboard/quarantine", MetricsMiddleware(s.leaderboardHandler.HandleQuarantine, "leaderboard_quarantine"))
	mux.HandleFunc("/leaderboard/restore", MetricsMiddleware(s.leaderboardHandler.HandleRestore, "leaderboard_restore"))
	mux.HandleFunc("/leaderboard/", MetricsMiddleware(s.leaderboardHandler.HandleDelete, "leaderboard_delete"))
	mux.HandleFunc("/maintenance/cleanup", MetricsMiddleware(s.maintenanceHandler.HandlePost, "maintenance_cleanup"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	writeJSON(w, status, errorResponse{Code: codeFor(err), Message: err.Error()})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
