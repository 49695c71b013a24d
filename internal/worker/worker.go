// Package worker implements C7: claims a task from the queue, drives
// the pluggable Evaluator, streams results into the result store and
// task registry, and writes aggregates into the cache index on
// success.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/llmrank/internal/cacheindex"
	"github.com/okian/llmrank/internal/credential"
	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/sample"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/evaluator"
	"github.com/okian/llmrank/internal/orcherr"
	"github.com/okian/llmrank/internal/queue"
	"github.com/okian/llmrank/internal/registry"
	"github.com/okian/llmrank/internal/resultstore"
	"github.com/okian/llmrank/pkg/logger"
	"github.com/okian/llmrank/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	defaultMaxAttempts      = 3
	defaultBaseBackoff      = 200 * time.Millisecond
	defaultProgressInterval = 500 * time.Millisecond
	leaseRenewFraction      = 3 // renew at 1/3 of the lease TTL
	shutdownTimeout         = 30 * time.Second
)

// Queue is the subset of queue.Queue a worker needs.
type Queue interface {
	Claim(ctx context.Context) (queue.Job, string, bool)
	Renew(taskID, leaseToken string) bool
	Ack(taskID, leaseToken string) bool
	Nack(taskID, leaseToken string, requeue bool) bool
}

// Pool runs a fixed number of worker goroutines pulling from a shared
// Queue with claim/lease semantics: a claimed task must be acked or
// nacked before its lease expires, or another worker reclaims it.
type Pool struct {
	queue         Queue
	registry      registry.Registry
	results       resultstore.Store
	cache         cacheindex.Index
	credentials   *credential.Store
	evaluator     evaluator.Evaluator
	leaseTTL        time.Duration
	maxAttempts     int
	baseBackoff     time.Duration
	progressEvery   time.Duration
	taskMaxDuration time.Duration

	shutdown chan struct{}
	done     []chan struct{}
	logger   logger.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLeaseTTL sets the lease duration a worker assumes the queue is
// using, so it knows when to renew.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(p *Pool) {
		if ttl > 0 {
			p.leaseTTL = ttl
		}
	}
}

// WithMaxAttempts bounds retryable-failure retries within one task.
func WithMaxAttempts(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the base of the exponential backoff-plus-jitter
// delay applied between retryable Evaluator failures.
func WithBaseBackoff(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.baseBackoff = d
		}
	}
}

// WithProgressInterval sets the minimum interval between progress
// writes, matching the registry's own rate limit.
func WithProgressInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.progressEvery = d
		}
	}
}

// WithTaskMaxDuration bounds how long a single task may run in STARTED
// before the worker self-cancels with a timeout kind.
func WithTaskMaxDuration(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.taskMaxDuration = d
		}
	}
}

// NewPool constructs a worker pool. workerCount <= 0 defaults to
// runtime.NumCPU() * defaultWorkerMultiplier.
func NewPool(
	workerCount int,
	q Queue,
	reg registry.Registry,
	results resultstore.Store,
	cache cacheindex.Index,
	credentials *credential.Store,
	eval evaluator.Evaluator,
	opts ...Option,
) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		queue:         q,
		registry:      reg,
		results:       results,
		cache:         cache,
		credentials:   credentials,
		evaluator:     eval,
		leaseTTL:        2 * time.Minute,
		maxAttempts:     defaultMaxAttempts,
		baseBackoff:     defaultBaseBackoff,
		progressEvery:   defaultProgressInterval,
		taskMaxDuration: 24 * time.Hour,
		shutdown:        make(chan struct{}),
		done:            make([]chan struct{}, workerCount),
		logger:          logger.Get().Named("worker-pool"),
	}
	for i := range p.done {
		p.done[i] = make(chan struct{})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches all worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerRunning(len(p.done))
	for i := range p.done {
		go p.runLoop(ctx, strconv.Itoa(i), p.done[i])
	}
}

// Stop signals every worker to stop claiming new work and waits (up to
// shutdownTimeout) for in-flight tasks to finish.
func (p *Pool) Stop() {
	close(p.shutdown)
	deadline := time.After(shutdownTimeout)
	for _, d := range p.done {
		select {
		case <-d:
		case <-deadline:
			p.logger.Warn(context.Background(), "worker shutdown timed out")
			return
		}
	}
	metrics.UpdateWorkerRunning(0)
}

func (p *Pool) runLoop(ctx context.Context, name string, done chan struct{}) {
	defer close(done)
	log := p.logger.Named("worker-" + name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		default:
		}

		job, token, ok := p.queue.Claim(ctx)
		if !ok {
			continue
		}
		if err := p.processJob(ctx, job, token); err != nil {
			log.Error(ctx, "task processing failed", logger.String("task_id", job.TaskID), logger.Error(err))
		}
	}
}

// processJob drives one task from claim through a terminal state.
func (p *Pool) processJob(ctx context.Context, job queue.Job, leaseToken string) error {
	start := time.Now()

	t, err := p.registry.Get(ctx, job.TaskID)
	if err != nil {
		p.queue.Nack(job.TaskID, leaseToken, false)
		return fmt.Errorf("worker: task %s vanished: %w", job.TaskID, err)
	}
	if t.Status.Terminal() {
		// Cancelled or otherwise finished before claim; drop it.
		p.queue.Ack(job.TaskID, leaseToken)
		return nil
	}

	startPatch := func(tk *task.Task) {
		if tk.Deadline.IsZero() {
			tk.Deadline = time.Now().Add(p.taskMaxDuration)
		}
	}

	started, err := p.registry.Transition(ctx, job.TaskID, task.StatusStarted, startPatch)
	if err != nil {
		if errors.Is(err, task.ErrIllegalTransition) {
			// The queue redelivered this job - either because its
			// previous lease expired (the worker that held it died
			// mid-task, leaving the task stuck in STARTED) or because it
			// already reached a terminal state through some other path.
			// Reclaim tells us which: a terminal task is dropped, a
			// stranded STARTED one is forced back to PENDING so the
			// normal start transition below can run cleanly.
			reclaimed, rerr := p.registry.Reclaim(ctx, job.TaskID)
			if rerr != nil {
				p.queue.Nack(job.TaskID, leaseToken, false)
				return fmt.Errorf("worker: task %s reclaim failed: %w", job.TaskID, rerr)
			}
			if reclaimed.Status.Terminal() {
				p.queue.Ack(job.TaskID, leaseToken)
				return nil
			}
			started, err = p.registry.Transition(ctx, job.TaskID, task.StatusStarted, startPatch)
			if err != nil {
				p.queue.Nack(job.TaskID, leaseToken, true)
				return err
			}
		} else {
			p.queue.Nack(job.TaskID, leaseToken, true)
			return err
		}
	}

	runCtx, cancel := context.WithDeadline(ctx, started.Deadline)
	defer cancel()

	stopRenew := p.startLeaseRenewal(runCtx, job.TaskID, leaseToken)
	defer stopRenew()

	outcome := p.runEvaluators(runCtx, started)

	switch outcome.kind {
	case outcomeSuccess:
		p.finishSuccess(ctx, started, outcome)
		p.queue.Ack(job.TaskID, leaseToken)
	case outcomeCancelled:
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			// The evaluator stopped because the task deadline elapsed,
			// not because of a cancel request.
			p.finishTerminal(ctx, started.TaskID, task.StatusFailure, &task.Error{Kind: "timeout", Message: orcherr.ErrTimeout.Error()})
		} else {
			p.finishTerminal(ctx, started.TaskID, task.StatusCancelled, nil)
		}
		p.queue.Ack(job.TaskID, leaseToken)
	case outcomeRetryable:
		// runEvaluators already exhausted the in-task retry budget
		// (backoff plus jitter, up to maxAttempts); this is terminal.
		p.finishTerminal(ctx, started.TaskID, task.StatusFailure, &task.Error{Kind: "evaluator_retryable", Message: orcherr.Redact(outcome.err.Error())})
		p.queue.Ack(job.TaskID, leaseToken)
	default: // outcomeFatal
		kind := "evaluator_fatal"
		if errors.Is(outcome.err, orcherr.ErrCredentialsMissing) {
			kind = "credentials_missing"
		} else if errors.Is(outcome.err, orcherr.ErrTimeout) {
			kind = "timeout"
		}
		p.finishTerminal(ctx, started.TaskID, task.StatusFailure, &task.Error{Kind: kind, Message: orcherr.Redact(outcome.err.Error())})
		p.queue.Ack(job.TaskID, leaseToken)
	}

	metrics.RecordEvaluatorLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// startLeaseRenewal keeps the queue lease alive while the task runs,
// renewing at 1/leaseRenewFraction of the TTL.
func (p *Pool) startLeaseRenewal(ctx context.Context, taskID, leaseToken string) func() {
	stop := make(chan struct{})
	interval := p.leaseTTL / leaseRenewFraction
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				p.queue.Renew(taskID, leaseToken)
			}
		}
	}()
	return func() { close(stop) }
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeCancelled
	outcomeRetryable
	outcomeFatal
)

type runOutcome struct {
	kind    outcomeKind
	err     error
	written int
}

// runEvaluators drives the plan's Evaluator across every model
// sequentially, retrying retryable failures with backoff and jitter.
func (p *Pool) runEvaluators(ctx context.Context, t task.Task) runOutcome {
	handles, credErr := p.credentials.Get(ctx, t.TaskID)
	if credErr != nil && requiresCredentials(t) {
		return runOutcome{kind: outcomeFatal, err: orcherr.ErrCredentialsMissing}
	}

	written := 0
	lastProgressWrite := time.Time{}
	for _, model := range t.PlanSnapshot.Models {
		var cred *credential.Handle
		if h, ok := handles[model.Name]; ok {
			cred = &h
		}

		attempt := 0
		for {
			attempt++
			select {
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return runOutcome{kind: outcomeFatal, err: orcherr.ErrTimeout, written: written}
				}
				return runOutcome{kind: outcomeCancelled, written: written}
			default:
			}
			if p.cancelRequested(ctx, t.TaskID) {
				return runOutcome{kind: outcomeCancelled, written: written}
			}

			err := p.evaluator.Evaluate(ctx, t.PlanSnapshot, model, cred,
				func(s sample.Sample) {
					s.Fingerprint = t.Fingerprint
					_ = p.results.AppendSamples(ctx, t.TaskID, []sample.Sample{s})
					written++
				},
				func(pr int) {
					if time.Since(lastProgressWrite) >= p.progressEvery {
						_ = p.registry.UpdateProgress(ctx, t.TaskID, pr, p.progressEvery)
						lastProgressWrite = time.Now()
					}
				},
			)
			if err == nil {
				break
			}
			if errors.Is(err, orcherr.ErrCancelled) || errors.Is(err, context.Canceled) {
				return runOutcome{kind: outcomeCancelled, written: written}
			}
			if errors.Is(err, orcherr.ErrEvaluatorRetryable) {
				metrics.RecordEvaluatorError("evaluator_retryable")
				if attempt >= p.maxAttempts {
					return runOutcome{kind: outcomeRetryable, err: err, written: written}
				}
				metrics.RecordEvaluatorRetry()
				backoffSleep(ctx, p.baseBackoff, attempt)
				continue
			}
			metrics.RecordEvaluatorError("evaluator_fatal")
			return runOutcome{kind: outcomeFatal, err: err, written: written}
		}
	}
	return runOutcome{kind: outcomeSuccess, written: written}
}

// cancelRequested re-checks the registry for an admin cancel that
// force-transitioned the task to CANCELLED while evaluators were
// running. The deadline-bound ctx passed to runEvaluators never
// observes this on its own, so the retry loop polls the registry
// cooperatively between attempts instead.
func (p *Pool) cancelRequested(ctx context.Context, taskID string) bool {
	cur, err := p.registry.Get(ctx, taskID)
	if err != nil {
		return false
	}
	return cur.CancelRequested || cur.Status == task.StatusCancelled
}

func requiresCredentials(t task.Task) bool {
	for _, m := range t.PlanSnapshot.Models {
		if m.ProviderKind != "" && m.ProviderKind != "local" {
			return true
		}
	}
	return false
}

// backoffSleep waits exponential-backoff-plus-jitter, honoring ctx.
func backoffSleep(ctx context.Context, base time.Duration, attempt int) {
	delay := base * time.Duration(math.Pow(2, float64(attempt-1)))
	jitter := time.Duration(rand.Int63n(int64(base))) //nolint:gosec // jitter, not a security boundary
	select {
	case <-ctx.Done():
	case <-time.After(delay + jitter):
	}
}

// finishSuccess writes aggregates derived from the result store into
// the cache index and transitions the task to SUCCESS, in that order:
// a poller observing the terminal transition must never see a cache
// row that isn't there yet.
func (p *Pool) finishSuccess(ctx context.Context, t task.Task, outcome runOutcome) {
	current, err := p.registry.Get(ctx, t.TaskID)
	if err != nil {
		p.logger.Error(ctx, "finishSuccess: task vanished before completion", logger.String("task_id", t.TaskID), logger.Error(err))
		return
	}
	if current.Status != task.StatusStarted {
		// An admin cancel (or some other terminal transition) landed
		// while the evaluators were still running: the task is no
		// longer ours to finish, and the cache must never see a row for
		// a task that didn't actually reach SUCCESS.
		return
	}

	rows, err := p.results.Aggregate(ctx, t.TaskID)
	if err != nil {
		p.finishTerminal(ctx, t.TaskID, task.StatusFailure, &task.Error{Kind: "storage_unavailable", Message: orcherr.Redact(err.Error())})
		return
	}
	aggRows := make([]aggregate.Row, 0, len(rows))
	for _, r := range rows {
		aggRows = append(aggRows, aggregate.Row{
			Key: aggregate.Key{
				Fingerprint: t.Fingerprint,
				ModelName:   r.ModelName,
				Language:    r.Language,
				SubjectType: r.SubjectType,
				TaskType:    r.TaskType,
			},
			Score:       r.Score,
			SampleCount: r.SampleCount,
		})
	}
	if err := p.cache.UpsertFromTask(ctx, t.TaskID, aggRows, p.evaluator.Version()); err != nil {
		p.finishTerminal(ctx, t.TaskID, task.StatusFailure, &task.Error{Kind: "storage_unavailable", Message: orcherr.Redact(err.Error())})
		return
	}
	p.finishTerminal(ctx, t.TaskID, task.StatusSuccess, nil)
}

// finishTerminal transitions the task and purges its credential
// envelope; credentials never outlive a terminal task. If the task is
// already terminal - e.g. an admin cancel (internal/dispatcher's
// Cancel) force-transitioned it to CANCELLED while the evaluators were
// still running - the transition is skipped as a no-op instead of
// being attempted and logged as an illegal-transition error.
func (p *Pool) finishTerminal(ctx context.Context, taskID string, status task.Status, taskErr *task.Error) {
	defer p.credentials.Purge(ctx, taskID)

	current, err := p.registry.Get(ctx, taskID)
	if err != nil {
		p.logger.Error(ctx, "finishTerminal: task vanished before completion", logger.String("task_id", taskID), logger.Error(err))
		return
	}
	if current.Status.Terminal() {
		return
	}

	_, err = p.registry.Transition(ctx, taskID, status, func(t *task.Task) {
		t.Progress = 100
		t.Error = taskErr
	})
	if err != nil {
		p.logger.Error(ctx, "finishing task transition failed", logger.String("task_id", taskID), logger.Error(err))
	}
}
