// Package registry implements C3: a strongly consistent store of tasks
// keyed by task_id, with secondary indices on fingerprint (non-terminal
// only, for coalescing) and status.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/orcherr"
	"github.com/okian/llmrank/pkg/metrics"
)

// Filter selects a page of tasks for List.
type Filter struct {
	Status      *task.Status
	Fingerprint string
	Page        int
	Limit       int
}

// Registry is the C3 contract consumed by the dispatcher, worker and
// query API.
type Registry interface {
	// Create registers a new PENDING task. It fails with
	// orcherr.ErrDuplicateFingerprintInFlight if a non-terminal task
	// already exists for the same fingerprint; this is the mechanism
	// that makes dispatcher coalescing observable to every caller, not
	// just the one holding the per-fingerprint critical section.
	Create(ctx context.Context, t task.Task) (task.Task, error)

	// Transition applies a conditional state change: it fails with
	// task.ErrIllegalTransition if the stored status cannot move to
	// `to`, including when it is already terminal. patch may
	// mutate any field except TaskID, Fingerprint, Status and Revision.
	Transition(ctx context.Context, taskID string, to task.Status, patch func(*task.Task)) (task.Task, error)

	// UpdateProgress sets Progress on a STARTED task, rate-limited to
	// minInterval between accepted writes for the same task.
	UpdateProgress(ctx context.Context, taskID string, progress int, minInterval time.Duration) error

	// Get returns a redacted copy of one task.
	Get(ctx context.Context, taskID string) (task.Task, error)

	// FindNonTerminalByFingerprint returns the in-flight task for fp,
	// if any, for coalescing.
	FindNonTerminalByFingerprint(ctx context.Context, fingerprint string) (task.Task, bool)

	// List returns a page of tasks matching filter plus the total
	// match count (ignoring pagination), ordered by CreatedAt DESC.
	List(ctx context.Context, filter Filter) ([]task.Task, int, error)

	// CountByStatus reports how many tasks are currently in each
	// status, for C8's stats() and metrics gauges.
	CountByStatus(ctx context.Context) map[task.Status]int

	// DeleteTerminalBefore removes terminal tasks whose CompletedAt
	// predates cutoff, capped at limit (0 means unbounded), returning
	// the task_ids removed. Used by the maintenance cleanup job; a
	// non-terminal task is never eligible.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) []string

	// Reclaim resets a task the queue is about to redeliver after a
	// lease expired without an ack or nack. If the task already reached
	// a terminal state this is a no-op (the redelivery is stale and
	// should be dropped); otherwise its status is forced back to
	// PENDING, its StartedAt/Deadline are cleared, and its revision is
	// bumped so the next claim restarts it from a clean slate.
	Reclaim(ctx context.Context, taskID string) (task.Task, error)
}

type record struct {
	task         task.Task
	lastProgress time.Time
}

// InMemory is the reference Registry implementation.
type InMemory struct {
	mu sync.RWMutex
	// byID owns the canonical task record.
	byID map[string]*record
	// nonTerminalByFingerprint indexes the single non-terminal task_id in flight
	// for a fingerprint, if any.
	nonTerminalByFingerprint map[string]string
}

// New constructs an empty registry.
func New() *InMemory {
	return &InMemory{
		byID:                     make(map[string]*record),
		nonTerminalByFingerprint: make(map[string]string),
	}
}

// Create implements Registry.
func (r *InMemory) Create(ctx context.Context, t task.Task) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nonTerminalByFingerprint[t.Fingerprint]; ok {
		if rec, found := r.byID[existing]; found && !rec.task.Status.Terminal() {
			return task.Task{}, orcherr.ErrDuplicateFingerprintInFlight
		}
	}

	t.Status = task.StatusPending
	t.Revision = 1
	r.byID[t.TaskID] = &record{task: t}
	r.nonTerminalByFingerprint[t.Fingerprint] = t.TaskID

	r.publishGauges()
	metrics.RecordTaskTransition(string(task.StatusPending))
	return t.Clone(), nil
}

// Transition implements Registry.
func (r *InMemory) Transition(ctx context.Context, taskID string, to task.Status, patch func(*task.Task)) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[taskID]
	if !ok {
		return task.Task{}, orcherr.ErrValidation
	}
	if !task.CanTransition(rec.task.Status, to) {
		return task.Task{}, task.ErrIllegalTransition
	}

	now := time.Now()
	rec.task.Status = to
	switch to {
	case task.StatusStarted:
		rec.task.StartedAt = &now
	case task.StatusSuccess, task.StatusFailure, task.StatusCancelled:
		rec.task.CompletedAt = &now
		delete(r.nonTerminalByFingerprint, rec.task.Fingerprint)
		if rec.task.StartedAt != nil {
			metrics.RecordTaskDuration(now.Sub(*rec.task.StartedAt))
		}
	}
	if patch != nil {
		patch(&rec.task)
	}
	rec.task.Revision++

	r.publishGauges()
	metrics.RecordTaskTransition(string(to))
	return rec.task.Clone(), nil
}

// UpdateProgress implements Registry.
func (r *InMemory) UpdateProgress(ctx context.Context, taskID string, progress int, minInterval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[taskID]
	if !ok {
		return orcherr.ErrValidation
	}
	if rec.task.Status != task.StatusStarted {
		return task.ErrIllegalTransition
	}
	now := time.Now()
	if minInterval > 0 && !rec.lastProgress.IsZero() && now.Sub(rec.lastProgress) < minInterval {
		return nil // rate-limited: silently coalesce, not an error
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	rec.task.Progress = progress
	rec.task.Revision++
	rec.lastProgress = now
	return nil
}

// Get implements Registry.
func (r *InMemory) Get(ctx context.Context, taskID string) (task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[taskID]
	if !ok {
		return task.Task{}, orcherr.ErrValidation
	}
	return rec.task.Clone(), nil
}

// FindNonTerminalByFingerprint implements Registry.
func (r *InMemory) FindNonTerminalByFingerprint(ctx context.Context, fingerprint string) (task.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nonTerminalByFingerprint[fingerprint]
	if !ok {
		return task.Task{}, false
	}
	rec, ok := r.byID[id]
	if !ok || rec.task.Status.Terminal() {
		return task.Task{}, false
	}
	return rec.task.Clone(), true
}

// List implements Registry.
func (r *InMemory) List(ctx context.Context, filter Filter) ([]task.Task, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]task.Task, 0, len(r.byID))
	for _, rec := range r.byID {
		if filter.Status != nil && rec.task.Status != *filter.Status {
			continue
		}
		if filter.Fingerprint != "" && rec.task.Fingerprint != filter.Fingerprint {
			continue
		}
		matched = append(matched, rec.task.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page < 0 {
		page = 0
	}
	start := page * limit
	if start >= total {
		return []task.Task{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Reclaim implements Registry.
func (r *InMemory) Reclaim(ctx context.Context, taskID string) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[taskID]
	if !ok {
		return task.Task{}, orcherr.ErrValidation
	}
	if rec.task.Status.Terminal() {
		return rec.task.Clone(), nil
	}

	rec.task.Status = task.StatusPending
	rec.task.StartedAt = nil
	rec.task.Deadline = time.Time{}
	rec.task.Revision++
	r.nonTerminalByFingerprint[rec.task.Fingerprint] = taskID

	r.publishGauges()
	metrics.RecordTaskTransition(string(task.StatusPending))
	return rec.task.Clone(), nil
}

// CountByStatus implements Registry.
func (r *InMemory) CountByStatus(ctx context.Context) map[task.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[task.Status]int, 5)
	for _, rec := range r.byID {
		counts[rec.task.Status]++
	}
	return counts
}

// DeleteTerminalBefore implements Registry.
func (r *InMemory) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, rec := range r.byID {
		if !rec.task.Status.Terminal() {
			continue
		}
		if rec.task.CompletedAt == nil || rec.task.CompletedAt.After(cutoff) {
			continue
		}
		removed = append(removed, id)
		if limit > 0 && len(removed) >= limit {
			break
		}
	}
	for _, id := range removed {
		delete(r.byID, id)
	}
	r.publishGauges()
	return removed
}

// publishGauges refreshes the tasks_by_status gauge. Called with mu
// held; cheap enough (bounded status set) to run on every mutation
// rather than on a ticker.
func (r *InMemory) publishGauges() {
	counts := make(map[task.Status]int, 5)
	for _, rec := range r.byID {
		counts[rec.task.Status]++
	}
	for _, s := range []task.Status{task.StatusPending, task.StatusStarted, task.StatusSuccess, task.StatusFailure, task.StatusCancelled} {
		metrics.UpdateTasksByStatus(string(s), counts[s])
	}
}
