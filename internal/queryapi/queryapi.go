// Package queryapi implements C8: status polling, filtered leaderboard
// browsing, and aggregate stats. Read paths only.
package queryapi

import (
	"context"

	"github.com/okian/llmrank/internal/cacheindex"
	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/registry"
)

// EvaluatorHealth reports whether the evaluator backing the worker
// pool is currently able to accept work, for Stats' evaluator_available
// flag.
type EvaluatorHealth interface {
	Available() bool
}

// Stats is the response shape for stats().
type Stats struct {
	TasksByStatus      map[task.Status]int
	CacheRowCount      int
	EvaluatorAvailable bool
}

// API is the C8 contract.
type API struct {
	registry  registry.Registry
	cache     cacheindex.Index
	evaluator EvaluatorHealth
}

// New constructs an API over the shared registry and cache index.
func New(reg registry.Registry, cache cacheindex.Index, evaluator EvaluatorHealth) *API {
	return &API{registry: reg, cache: cache, evaluator: evaluator}
}

// GetTask returns the task with a redacted plan snapshot; the registry
// already stores only redacted snapshots, so no further scrubbing is
// needed here.
func (a *API) GetTask(ctx context.Context, taskID string) (task.Task, error) {
	return a.registry.Get(ctx, taskID)
}

// Browse queries the cache index. IncludeQuarantined on filter should
// only be set true by callers already authorized as admin-scoped; this
// package does not itself enforce that boundary (see the HTTP layer).
func (a *API) Browse(ctx context.Context, filter aggregate.Filter, offset, limit int) ([]aggregate.Row, int, error) {
	return a.cache.Browse(ctx, filter, offset, limit)
}

// ListTasks paginates the task registry, used by admin tooling and
// maintenance to enumerate work outside the leaderboard cache.
func (a *API) ListTasks(ctx context.Context, filter registry.Filter) ([]task.Task, int, error) {
	return a.registry.List(ctx, filter)
}

// Stats reports counts per task status, cache row count, and evaluator
// availability.
func (a *API) Stats(ctx context.Context) Stats {
	available := true
	if a.evaluator != nil {
		available = a.evaluator.Available()
	}
	return Stats{
		TasksByStatus:      a.registry.CountByStatus(ctx),
		CacheRowCount:      a.cache.Count(ctx),
		EvaluatorAvailable: available,
	}
}
