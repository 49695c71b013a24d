// Package orchestrator wires the leaderboard evaluation pipeline's
// collaborators (dispatcher, worker pool, registry, cache index,
// result store, credential store, queue, evaluator) into a single
// startable/stoppable Service.
package orchestrator

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/llmrank/internal/audit"
	"github.com/okian/llmrank/internal/cacheindex"
	"github.com/okian/llmrank/internal/config"
	"github.com/okian/llmrank/internal/credential"
	"github.com/okian/llmrank/internal/dispatcher"
	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/evaluator"
	"github.com/okian/llmrank/internal/fingerprint"
	"github.com/okian/llmrank/internal/maintenance"
	"github.com/okian/llmrank/internal/queryapi"
	"github.com/okian/llmrank/internal/queue"
	"github.com/okian/llmrank/internal/registry"
	"github.com/okian/llmrank/internal/resultstore"
	"github.com/okian/llmrank/internal/worker"
	"github.com/okian/llmrank/pkg/logger"
)

// Service is the process-level composition root for the orchestrator.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	registry    registry.Registry
	cache       cacheindex.Index
	results     resultstore.Store
	queue       *queue.InMemoryQueue
	credentials *credential.Store
	fingerprint *fingerprint.Fingerprinter
	evaluator   evaluator.Evaluator
	pool        *worker.Pool

	Dispatcher  *dispatcher.Dispatcher
	Query       *queryapi.API
	Maintenance *maintenance.Cleaner
	Audit       *audit.Log

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig overrides the config used to derive component settings.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithEvaluator overrides the reference in-memory Evaluator, e.g. with
// a real provider-calling implementation.
func WithEvaluator(e evaluator.Evaluator) Option {
	return func(s *Service) {
		if e != nil {
			s.evaluator = e
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes every collaborator and launches the worker pool
// and background reapers/sweepers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	log := s.logger.Named("orchestrator")

	log.Info(ctx, "starting llmrank orchestrator...")

	s.registry = registry.New()
	s.cache = cacheindex.New()
	s.results = resultstore.New()
	s.fingerprint = fingerprint.New(s.cfg.SampleSizeBuckets)

	credStore, err := credential.NewStore(s.cfg.CredentialEnvelopeTTL)
	if err != nil {
		return err
	}
	s.credentials = credStore
	s.credentials.StartSweeper(ctx, s.cfg.CredentialEnvelopeTTL)

	s.queue = queue.New(ctx,
		queue.WithCapacity(s.cfg.QueueSize),
		queue.WithLeaseTTL(s.cfg.LeaseTTL),
	)

	if s.evaluator == nil {
		s.evaluator = evaluator.New(
			evaluator.WithLatencyRange(
				time.Duration(s.cfg.EvaluatorMinLatencyMS)*time.Millisecond,
				time.Duration(s.cfg.EvaluatorMaxLatencyMS)*time.Millisecond,
			),
		)
	}

	workerCount := s.cfg.WorkerConcurrency
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * 4
	}
	s.pool = worker.NewPool(
		workerCount,
		s.queue,
		s.registry,
		s.results,
		s.cache,
		s.credentials,
		s.evaluator,
		worker.WithLeaseTTL(s.cfg.LeaseTTL),
		worker.WithMaxAttempts(s.cfg.EvaluatorMaxAttempts),
		worker.WithProgressInterval(s.cfg.ProgressMinInterval),
		worker.WithTaskMaxDuration(s.cfg.TaskMaxDuration),
	)
	s.pool.Start(ctx)

	s.Dispatcher = dispatcher.New(
		dispatcher.Config{
			CacheTTL:             s.cfg.CacheTTL,
			MinCacheReuseSamples: s.cfg.MinCacheReuseSamples,
			PinnedEvaluatorVer:   s.cfg.PinnedEvaluatorVersion,
		},
		plan.NewTaxonomy(s.cfg.SubjectTaxonomy),
		plan.Limits{MaxSampleSize: s.cfg.MaxSampleSize},
		s.fingerprint,
		s.registry,
		s.cache,
		s.queue,
		s.credentials,
	)

	s.Query = queryapi.New(s.registry, s.cache, evaluatorHealth{s.evaluator})
	s.Audit = audit.New(1000)
	s.Maintenance = maintenance.New(s.registry, s.results, s.cache, s.Audit)

	s.started = true
	log.Info(ctx, "llmrank orchestrator started",
		logger.Int("workers", workerCount),
		logger.Int("queue_size", s.cfg.QueueSize),
	)
	return nil
}

// Stop gracefully shuts down the worker pool and queue.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	log := s.logger.Named("orchestrator")
	log.Info(context.Background(), "stopping llmrank orchestrator...")

	if s.pool != nil {
		s.pool.Stop()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}

	s.started = false
	log.Info(context.Background(), "llmrank orchestrator stopped")
}

// Submit is a thin pass-through to the wired Dispatcher, letting the
// HTTP layer depend on Service alone instead of every collaborator.
func (s *Service) Submit(ctx context.Context, p plan.Plan) (dispatcher.SubmitResult, error) {
	return s.Dispatcher.Submit(ctx, p)
}

// Cancel is a thin pass-through to the wired Dispatcher.
func (s *Service) Cancel(ctx context.Context, taskID string) (task.Task, error) {
	return s.Dispatcher.Cancel(ctx, taskID)
}

// GetTask is a thin pass-through to the wired Query API.
func (s *Service) GetTask(ctx context.Context, taskID string) (task.Task, error) {
	return s.Query.GetTask(ctx, taskID)
}

// Browse is a thin pass-through to the wired Query API.
func (s *Service) Browse(ctx context.Context, filter aggregate.Filter, offset, limit int) ([]aggregate.Row, int, error) {
	return s.Query.Browse(ctx, filter, offset, limit)
}

// Quarantine flags cache rows and records the action in the audit log.
func (s *Service) Quarantine(ctx context.Context, keys []aggregate.Key, reason string) (int, error) {
	n, err := s.cache.Quarantine(ctx, keys, reason)
	if err == nil {
		s.Audit.Append(ctx, "admin", audit.ActionQuarantine, reason, n, time.Now())
	}
	return n, err
}

// Restore un-flags cache rows and records the action in the audit log.
func (s *Service) Restore(ctx context.Context, keys []aggregate.Key) (int, error) {
	n, err := s.cache.Restore(ctx, keys)
	if err == nil {
		s.Audit.Append(ctx, "admin", audit.ActionRestore, "", n, time.Now())
	}
	return n, err
}

// HardDelete removes cache rows outright and records the action in the
// audit log.
func (s *Service) HardDelete(ctx context.Context, keys []aggregate.Key) (int, error) {
	n, err := s.cache.HardDelete(ctx, keys)
	if err == nil {
		s.Audit.Append(ctx, "admin", audit.ActionHardDelete, "", n, time.Now())
	}
	return n, err
}

// Stats is a thin pass-through to the wired Query API.
func (s *Service) Stats(ctx context.Context) queryapi.Stats {
	return s.Query.Stats(ctx)
}

// RunCleanup registers a Task for the cleanup run, the same way any
// other job is tracked in C3, and hands it to a goroutine so the HTTP
// caller isn't blocked for the full sweep duration. The returned task
// starts in STARTED; GET /tasks/{task_id} observes its transition to a
// terminal state exactly like an evaluation task's.
func (s *Service) RunCleanup(ctx context.Context, retention time.Duration, dryRun bool, scope maintenance.Scope, reason string) (task.Task, error) {
	taskID := uuid.NewString()
	created, err := s.registry.Create(ctx, task.Task{
		// Cleanup runs aren't fingerprinted evaluation work, but Create
		// still requires a unique key to index against; deriving it
		// from the task_id guarantees no two cleanup runs ever collide
		// or coalesce with each other.
		TaskID:      taskID,
		Fingerprint: "maintenance:" + taskID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return task.Task{}, err
	}

	started, err := s.registry.Transition(ctx, created.TaskID, task.StatusStarted, func(t *task.Task) {
		t.Deadline = time.Now().Add(time.Hour)
	})
	if err != nil {
		return task.Task{}, err
	}

	go func() {
		bgCtx := context.Background()
		report := s.Maintenance.Run(bgCtx, retention, dryRun, scope, "admin", reason)
		_, terr := s.registry.Transition(bgCtx, taskID, task.StatusSuccess, func(t *task.Task) {
			t.Progress = 100
		})
		if terr != nil {
			s.logger.Named("orchestrator").Error(bgCtx, "cleanup task finalize failed",
				logger.String("task_id", taskID), logger.Error(terr))
			return
		}
		s.logger.Named("orchestrator").Info(bgCtx, "maintenance cleanup task complete",
			logger.String("task_id", taskID),
			logger.Int("removed", len(report.Removed)),
			logger.Int("scanned", report.Scanned),
			logger.Int("cache_swept", len(report.CacheSwept)))
	}()

	return started, nil
}

// QueueHealthy reports whether the queue adapter is accepting work.
func (s *Service) QueueHealthy() bool {
	return s.queue != nil
}

// evaluatorHealth adapts an evaluator.Evaluator to queryapi's
// EvaluatorHealth; the in-memory reference implementation is always
// available, but a real provider-backed one may report otherwise.
type evaluatorHealth struct {
	e evaluator.Evaluator
}

func (h evaluatorHealth) Available() bool {
	if avail, ok := h.e.(interface{ Available() bool }); ok {
		return avail.Available()
	}
	return true
}
