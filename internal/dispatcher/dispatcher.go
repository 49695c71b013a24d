// Package dispatcher implements C5: the public submit/cancel contract
// that ties fingerprinting, cache lookup, coalescing and enqueue
// together behind a single atomic operation per fingerprint.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/llmrank/internal/cacheindex"
	"github.com/okian/llmrank/internal/credential"
	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/fingerprint"
	"github.com/okian/llmrank/internal/orcherr"
	"github.com/okian/llmrank/internal/registry"
	"github.com/okian/llmrank/pkg/logger"
	"github.com/okian/llmrank/pkg/metrics"
)

// Queue is the subset of queue.Queue the dispatcher needs.
type Queue interface {
	Enqueue(ctx context.Context, taskID string) bool
}

// SubmitResult is the dispatcher's public response to a submit call.
type SubmitResult struct {
	TaskID     string
	Status     task.Status
	Cached     bool
	PartialHit bool
	Result     []aggregate.Row
}

// Config bounds the dispatcher's cache and coalescing behavior.
type Config struct {
	CacheTTL             time.Duration
	MinCacheReuseSamples int
	PinnedEvaluatorVer   string
}

// Dispatcher is the C5 implementation.
type Dispatcher struct {
	cfg         Config
	taxonomy    *plan.Taxonomy
	limits      plan.Limits
	fingerprint *fingerprint.Fingerprinter
	registry    registry.Registry
	cache       cacheindex.Index
	queue       Queue
	credentials *credential.Store
	logger      logger.Logger
}

// New constructs a Dispatcher.
func New(
	cfg Config,
	taxonomy *plan.Taxonomy,
	limits plan.Limits,
	fp *fingerprint.Fingerprinter,
	reg registry.Registry,
	cache cacheindex.Index,
	q Queue,
	credentials *credential.Store,
) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		taxonomy:    taxonomy,
		limits:      limits,
		fingerprint: fp,
		registry:    reg,
		cache:       cache,
		queue:       q,
		credentials: credentials,
		logger:      logger.Get().Named("dispatcher"),
	}
}

// Submit validates, fingerprints, checks the cache, and either
// short-circuits on a fresh cache hit or coalesces onto/creates a task
// and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, p plan.Plan) (SubmitResult, error) {
	if err := p.Validate(d.taxonomy, d.limits); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", orcherr.ErrValidation, err)
	}

	fp := d.fingerprint.Fingerprint(&p)

	if p.Profile.SampleSize >= d.cfg.MinCacheReuseSamples {
		lookup := d.cache.Lookup(ctx, fp, d.cfg.CacheTTL, d.cfg.PinnedEvaluatorVer)
		if lookup.Outcome == cacheindex.Fresh {
			if covered := coveredModels(lookup.Rows, p.ModelNames()); covered {
				metrics.RecordSubmit("cache_hit")
				return SubmitResult{
					TaskID: uuid.NewString(),
					Status: task.StatusSuccess,
					Cached: true,
					Result: lookup.Rows,
				}, nil
			}
			// Partial hit: short-circuit on what the cache has, and
			// fall through to enqueue a reduced plan for the rest.
			metrics.RecordSubmit("partial_hit")
			result, err := d.coalesceOrCreate(ctx, reducedPlan(p, lookup.Rows), fp)
			if err != nil {
				return SubmitResult{}, err
			}
			result.PartialHit = true
			result.Result = lookup.Rows
			return result, nil
		}
	}

	return d.coalesceOrCreate(ctx, p, fp)
}

// coalesceOrCreate is the per-fingerprint critical section: Create and
// the fingerprint-index read it guards happen under the registry's
// single lock, so two concurrent submits for the same fingerprint can
// never both win.
func (d *Dispatcher) coalesceOrCreate(ctx context.Context, p plan.Plan, fp string) (SubmitResult, error) {
	taskID := uuid.NewString()
	newTask := task.Task{
		TaskID:       taskID,
		Fingerprint:  fp,
		CreatedAt:    time.Now(),
		PlanSnapshot: p.Redacted(),
	}

	created, err := d.registry.Create(ctx, newTask)
	if err == nil {
		if putErr := d.credentials.Put(ctx, taskID, p.Models); putErr != nil {
			d.logger.Error(ctx, "credential envelope registration failed", logger.String("task_id", taskID), logger.Error(putErr))
		}
		if !d.queue.Enqueue(ctx, taskID) {
			return SubmitResult{}, orcherr.ErrQueueUnavailable
		}
		metrics.RecordSubmit("enqueued")
		return SubmitResult{TaskID: created.TaskID, Status: created.Status}, nil
	}

	if err == orcherr.ErrDuplicateFingerprintInFlight {
		existing, ok := d.registry.FindNonTerminalByFingerprint(ctx, fp)
		if !ok {
			// Lost a race with the task terminating between Create's
			// failure and this lookup; retry as a fresh create.
			return d.coalesceOrCreate(ctx, p, fp)
		}
		metrics.RecordSubmit("coalesced")
		return SubmitResult{TaskID: existing.TaskID, Status: existing.Status}, nil
	}

	return SubmitResult{}, err
}

// Cancel transitions a PENDING or STARTED task to CANCELLED. It is a
// no-op returning the current state if the task is already terminal.
func (d *Dispatcher) Cancel(ctx context.Context, taskID string) (task.Task, error) {
	current, err := d.registry.Get(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if current.Status.Terminal() {
		return current, nil
	}
	return d.registry.Transition(ctx, taskID, task.StatusCancelled, func(t *task.Task) {
		t.CancelRequested = true
		t.Progress = 100
	})
}

// coveredModels reports whether rows include every requested model.
func coveredModels(rows []aggregate.Row, models []string) bool {
	have := make(map[string]bool, len(rows))
	for _, r := range rows {
		have[r.ModelName] = true
	}
	for _, m := range models {
		if !have[m] {
			return false
		}
	}
	return true
}

// reducedPlan returns a copy of p restricted to the models not already
// covered by cachedRows, so the dispatcher only enqueues work for the
// models still missing a fresh cache row.
func reducedPlan(p plan.Plan, cachedRows []aggregate.Row) plan.Plan {
	have := make(map[string]bool, len(cachedRows))
	for _, r := range cachedRows {
		have[r.ModelName] = true
	}
	reduced := p
	reduced.Models = nil
	for _, m := range p.Models {
		if !have[m.Name] {
			reduced.Models = append(reduced.Models, m)
		}
	}
	return reduced
}
