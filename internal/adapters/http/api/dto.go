// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"time"

	"github.com/okian/llmrank/internal/dispatcher"
	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/task"
)

// modelRequest mirrors one entry of the plan's models array on the
// wire; CredentialHandle never appears in any response type.
type modelRequest struct {
	Name             string `json:"name"`
	ProviderKind     string `json:"provider_kind"`
	Endpoint         string `json:"endpoint"`
	CredentialHandle string `json:"credential_handle,omitempty"`
}

// planRequest is the wire schema for POST /evaluate.
type planRequest struct {
	SchemaVersion string `json:"schema_version"`
	Metadata      struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"metadata"`
	Profile struct {
		ProblemType       string   `json:"problem_type"`
		TargetType        string   `json:"target_type"`
		TaskType          string   `json:"task_type"`
		ExternalToolUsage bool     `json:"external_tool_usage"`
		Language          string   `json:"language"`
		SubjectTypes      []string `json:"subject_type"`
		SampleSize        int      `json:"sample_size"`
		Seed              *int64   `json:"seed,omitempty"`
	} `json:"profile"`
	Models     []modelRequest `json:"models"`
	Directives struct {
		ScoringMethod  string `json:"scoring_method"`
		PerCallTimeout string `json:"per_call_timeout,omitempty"`
		BatchSize      int    `json:"batch_size,omitempty"`
	} `json:"directives"`
}

// toDomain converts the wire request into a plan.Plan. Timeout parse
// failures are ignored (the zero timeout means "no per-call limit"),
// matching the tolerant-decode style of the rest of the wire layer.
func (r planRequest) toDomain() plan.Plan {
	models := make([]plan.ModelConfig, len(r.Models))
	for i, m := range r.Models {
		models[i] = plan.ModelConfig{
			Name:             m.Name,
			ProviderKind:     m.ProviderKind,
			Endpoint:         m.Endpoint,
			CredentialHandle: m.CredentialHandle,
		}
	}
	var timeout time.Duration
	if r.Directives.PerCallTimeout != "" {
		if d, err := time.ParseDuration(r.Directives.PerCallTimeout); err == nil {
			timeout = d
		}
	}
	return plan.Plan{
		SchemaVersion: r.SchemaVersion,
		Metadata: plan.Metadata{
			Name:        r.Metadata.Name,
			Description: r.Metadata.Description,
		},
		Profile: plan.Profile{
			ProblemType:       plan.ProblemType(r.Profile.ProblemType),
			TargetType:        plan.TargetType(r.Profile.TargetType),
			TaskType:          plan.TaskType(r.Profile.TaskType),
			ExternalToolUsage: r.Profile.ExternalToolUsage,
			Language:          r.Profile.Language,
			SubjectTypes:      r.Profile.SubjectTypes,
			SampleSize:        r.Profile.SampleSize,
			Seed:              r.Profile.Seed,
		},
		Models: models,
		Directives: plan.Directives{
			ScoringMethod:  r.Directives.ScoringMethod,
			PerCallTimeout: timeout,
			BatchSize:      r.Directives.BatchSize,
		},
		SubmittedAt: time.Now(),
	}
}

// evaluateResponse is the 202 body for POST /evaluate.
type evaluateResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
	Cached bool        `json:"cached"`
}

func newEvaluateResponse(r dispatcher.SubmitResult) evaluateResponse {
	return evaluateResponse{TaskID: r.TaskID, Status: r.Status, Cached: r.Cached}
}

// aggregateRowResponse mirrors one leaderboard_cache row on the wire.
type aggregateRowResponse struct {
	Fingerprint    string    `json:"fingerprint"`
	ModelName      string    `json:"model_name"`
	Language       string    `json:"language"`
	SubjectType    string    `json:"subject_type"`
	TaskType       string    `json:"task_type"`
	Score          float64   `json:"score"`
	SampleCount    int       `json:"sample_count"`
	LastUpdated    time.Time `json:"last_updated"`
	Quarantine     bool      `json:"quarantine"`
	QuarantineNote string    `json:"quarantine_note,omitempty"`
	SourceTaskID   string    `json:"source_task_id"`
}

func newAggregateRowResponse(r aggregate.Row) aggregateRowResponse {
	return aggregateRowResponse{
		Fingerprint:    r.Fingerprint,
		ModelName:      r.ModelName,
		Language:       r.Language,
		SubjectType:    r.SubjectType,
		TaskType:       r.TaskType,
		Score:          r.Score,
		SampleCount:    r.SampleCount,
		LastUpdated:    r.LastUpdated,
		Quarantine:     r.Quarantine,
		QuarantineNote: r.QuarantineNote,
		SourceTaskID:   r.SourceTaskID,
	}
}

// taskErrorResponse mirrors task.Error on the wire.
type taskErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// taskResponse is the wire shape for GET /tasks/{task_id}.
type taskResponse struct {
	TaskID      string                 `json:"task_id"`
	Status      task.Status            `json:"status"`
	Progress    int                    `json:"progress"`
	Result      []aggregateRowResponse `json:"result,omitempty"`
	Error       *taskErrorResponse     `json:"error,omitempty"`
	Revision    uint64                 `json:"revision"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func newTaskResponse(t task.Task) taskResponse {
	resp := taskResponse{
		TaskID:      t.TaskID,
		Status:      t.Status,
		Progress:    t.Progress,
		Revision:    t.Revision,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
	if len(t.Result) > 0 {
		resp.Result = make([]aggregateRowResponse, len(t.Result))
		for i, r := range t.Result {
			resp.Result[i] = newAggregateRowResponse(r)
		}
	}
	if t.Error != nil {
		resp.Error = &taskErrorResponse{Kind: t.Error.Kind, Message: t.Error.Message}
	}
	return resp
}

// patchTaskRequest is the body for PATCH /tasks/{task_id}.
type patchTaskRequest struct {
	Action string `json:"action"`
}

// leaderboardPageResponse wraps a paged Browse result.
type leaderboardPageResponse struct {
	Rows  []aggregateRowResponse `json:"rows"`
	Total int                    `json:"total"`
}

// rowKeyRequest identifies one cache row for admin actions.
type rowKeyRequest struct {
	Fingerprint string `json:"fingerprint"`
	ModelName   string `json:"model_name"`
	Language    string `json:"language"`
	SubjectType string `json:"subject_type"`
	TaskType    string `json:"task_type"`
}

func (k rowKeyRequest) toDomain() aggregate.Key {
	return aggregate.Key{
		Fingerprint: k.Fingerprint,
		ModelName:   k.ModelName,
		Language:    k.Language,
		SubjectType: k.SubjectType,
		TaskType:    k.TaskType,
	}
}

// quarantineRequest is the body for POST /leaderboard/quarantine.
type quarantineRequest struct {
	Keys   []rowKeyRequest `json:"keys"`
	Reason string          `json:"reason"`
}

// restoreRequest is the body for POST /leaderboard/restore.
type restoreRequest struct {
	Keys []rowKeyRequest `json:"keys"`
}

// adminActionResponse reports how many rows an admin action affected.
type adminActionResponse struct {
	Affected int `json:"affected"`
}

// cleanupRequest is the body for POST /maintenance/cleanup.
type cleanupRequest struct {
	DryRun     bool     `json:"dry_run"`
	Resources  []string `json:"resources"`
	DaysOld    int      `json:"days_old"`
	Limit      int      `json:"limit"`
	HardDelete bool     `json:"hard_delete"`
	Reason     string   `json:"reason,omitempty"`
}

// cleanupResponse is the 202 body for POST /maintenance/cleanup: the
// sweep itself runs as a background task tracked in C3, so this only
// hands back the task_id/status pair the caller polls via
// GET /tasks/{task_id}.
type cleanupResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
	DryRun bool        `json:"dry_run"`
}

// healthResponse is the wire shape for GET /health.
type healthResponse struct {
	Status    string `json:"status"`
	Cache     string `json:"cache"`
	Queue     string `json:"queue"`
	Evaluator string `json:"evaluator"`
}

// statsResponse is the wire shape for GET /stats.
type statsResponse struct {
	TasksByStatus      map[task.Status]int `json:"tasks_by_status"`
	CacheRowCount      int                 `json:"cache_row_count"`
	EvaluatorAvailable bool                `json:"evaluator_available"`
}
