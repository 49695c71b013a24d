// Package queue implements C6: hands tasks to workers and receives
// their ack/nack status, with a lease-based claim contract so a worker
// that dies mid-task doesn't strand it forever.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/llmrank/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity  = 10000
	defaultLeaseTTL  = 2 * time.Minute
	defaultReapEvery = 15 * time.Second
)

// Job is one unit of work handed to a worker.
type Job struct {
	TaskID     string
	EnqueuedAt time.Time
	Attempt    int
}

// Queue is the C6 contract.
type Queue interface {
	// Enqueue adds a job. Returns false if the queue is at capacity.
	Enqueue(ctx context.Context, taskID string) bool

	// Claim blocks until a job is available or ctx is done, and returns
	// it along with an opaque lease token the caller must present to
	// Renew, Ack or Nack.
	Claim(ctx context.Context) (Job, string, bool)

	// Renew extends a held lease. Returns false if the token is stale
	// (already reclaimed or acked).
	Renew(taskID, leaseToken string) bool

	// Ack releases the lease and drops the job: the task reached a
	// terminal state.
	Ack(taskID, leaseToken string) bool

	// Nack releases the lease. If requeue is true the job is pushed
	// back onto the queue with Attempt incremented; otherwise it is
	// dropped, mirroring a non-retryable Evaluator failure.
	Nack(taskID, leaseToken string, requeue bool) bool

	// Len returns the number of jobs waiting to be claimed.
	Len() int

	// Close shuts the queue down; Claim callers blocked on it unblock
	// with ok=false.
	Close() error
}

type lease struct {
	job       Job
	token     string
	expiresAt time.Time
}

// InMemoryQueue implements Queue over a buffered channel plus an
// in-flight lease table, with a reaper goroutine that requeues jobs
// whose lease expired before being acked or nacked.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	leaseTTL time.Duration

	mu       sync.Mutex
	inFlight map[string]*lease // taskID -> lease
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a queue and starts its lease reaper.
func New(ctx context.Context, opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		leaseTTL: defaultLeaseTTL,
		inFlight: make(map[string]*lease),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	go q.reapLoop(ctx, defaultReapEvery)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, taskID string) bool {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return false
	}

	job := Job{TaskID: taskID, EnqueuedAt: time.Now(), Attempt: 1}
	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueDepth(len(q.jobs))
		return true
	case <-ctx.Done():
		return false
	default:
		return false
	}
}

// requeue pushes a job back with Attempt incremented, used by Nack and
// by the reaper when a lease expires.
func (q *InMemoryQueue) requeue(job Job) bool {
	job.Attempt++
	select {
	case q.jobs <- job:
		metrics.UpdateQueueDepth(len(q.jobs))
		return true
	default:
		return false
	}
}

// Claim implements Queue.
func (q *InMemoryQueue) Claim(ctx context.Context) (Job, string, bool) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, "", false
		}
		metrics.UpdateQueueDepth(len(q.jobs))
		token := uuid.NewString()
		q.mu.Lock()
		q.inFlight[job.TaskID] = &lease{job: job, token: token, expiresAt: time.Now().Add(q.leaseTTL)}
		q.mu.Unlock()
		metrics.RecordQueueClaim()
		return job, token, true
	case <-ctx.Done():
		return Job{}, "", false
	}
}

// Renew implements Queue.
func (q *InMemoryQueue) Renew(taskID, leaseToken string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.inFlight[taskID]
	if !ok || l.token != leaseToken {
		return false
	}
	l.expiresAt = time.Now().Add(q.leaseTTL)
	return true
}

// Ack implements Queue.
func (q *InMemoryQueue) Ack(taskID, leaseToken string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.inFlight[taskID]
	if !ok || l.token != leaseToken {
		return false
	}
	delete(q.inFlight, taskID)
	metrics.RecordQueueAck()
	return true
}

// Nack implements Queue.
func (q *InMemoryQueue) Nack(taskID, leaseToken string, requeue bool) bool {
	q.mu.Lock()
	l, ok := q.inFlight[taskID]
	if !ok || l.token != leaseToken {
		q.mu.Unlock()
		return false
	}
	delete(q.inFlight, taskID)
	q.mu.Unlock()

	metrics.RecordQueueNack()
	if requeue {
		q.requeue(l.job)
	}
	return true
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	q.stopOnce.Do(func() { close(q.stop) })
	close(q.jobs)
	return nil
}

// reapLoop periodically requeues jobs whose lease has expired: a
// worker that crashed or lost connectivity without Ack/Nack must not
// strand its task in STARTED forever.
func (q *InMemoryQueue) reapLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-ticker.C:
			q.reapExpired()
		}
	}
}

func (q *InMemoryQueue) reapExpired() {
	now := time.Now()
	var expired []*lease
	q.mu.Lock()
	for taskID, l := range q.inFlight {
		if now.After(l.expiresAt) {
			expired = append(expired, l)
			delete(q.inFlight, taskID)
		}
	}
	q.mu.Unlock()

	for _, l := range expired {
		metrics.RecordQueueReclaim()
		q.requeue(l.job)
	}
}
