// Package evaluator defines the pluggable collaborator the worker loop
// drives to actually score a plan against one or more models, plus an
// in-memory reference implementation used for default wiring and
// tests.
package evaluator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/okian/llmrank/internal/credential"
	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/sample"
	"github.com/okian/llmrank/internal/orcherr"
)

// Default simulated-latency and scoring configuration.
const (
	defaultMinLatency = 20 * time.Millisecond
	defaultMaxLatency = 80 * time.Millisecond
	defaultRandomSeed = 42
)

// ProgressFunc reports 0..100 progress within a single Evaluate call.
type ProgressFunc func(progress int)

// SampleFunc streams one scored sample as it becomes available. The
// worker forwards each call straight to the result store, so an
// Evaluator crash mid-run still leaves partial samples durable.
type SampleFunc func(s sample.Sample)

// Evaluator drives one model against one plan for sample_size samples.
// Version identifies the evaluator build, used to pin cache freshness
// against a configured minimum evaluator_version.
type Evaluator interface {
	Version() string

	// Evaluate runs synchronously, invoking onSample for every scored
	// item and onProgress as work advances. It returns
	// orcherr.ErrEvaluatorRetryable for transient failures (network
	// timeout, provider 5xx), orcherr.ErrEvaluatorFatal for
	// unrecoverable ones (auth failure, malformed provider response),
	// orcherr.ErrCredentialsMissing if cred is nil for a model that
	// requires one, and ctx.Err()-derived errors on cancellation.
	Evaluate(ctx context.Context, p plan.Plan, model plan.ModelConfig, cred *credential.Handle, onSample SampleFunc, onProgress ProgressFunc) error
}

// InMemory is a reference Evaluator that simulates provider latency
// and produces a skill-weighted pseudo-score per sample, following the
// same simulate-latency-then-score shape as an in-memory scorer, sized
// up from "one score per talent" to "one score per (model, sample)".
type InMemory struct {
	minLatency   time.Duration
	maxLatency   time.Duration
	failureRate  float64 // probability [0,1] a given sample call fails retryably
	rng          *rand.Rand
	version      string
	requireCreds bool
}

// Option configures an InMemory evaluator.
type Option func(*InMemory)

// WithLatencyRange sets the simulated per-sample latency window.
func WithLatencyRange(min, max time.Duration) Option {
	return func(e *InMemory) {
		if min > 0 && max > min {
			e.minLatency, e.maxLatency = min, max
		}
	}
}

// WithFailureRate injects a retryable failure with the given
// probability, to exercise the worker's retry-with-backoff path.
func WithFailureRate(rate float64) Option {
	return func(e *InMemory) {
		if rate >= 0 && rate <= 1 {
			e.failureRate = rate
		}
	}
}

// WithVersion sets the evaluator_version stamped on cache rows.
func WithVersion(v string) Option {
	return func(e *InMemory) {
		if v != "" {
			e.version = v
		}
	}
}

// WithRequireCredentials makes Evaluate fail with ErrCredentialsMissing
// whenever cred is nil, modeling a provider that requires an API key.
func WithRequireCredentials(require bool) Option {
	return func(e *InMemory) { e.requireCreds = require }
}

// New constructs an InMemory evaluator.
func New(opts ...Option) *InMemory {
	e := &InMemory{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		version:    "inmemory-v1",
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible scoring
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Version implements Evaluator.
func (e *InMemory) Version() string { return e.version }

// Evaluate implements Evaluator.
func (e *InMemory) Evaluate(ctx context.Context, p plan.Plan, model plan.ModelConfig, cred *credential.Handle, onSample SampleFunc, onProgress ProgressFunc) error {
	if e.requireCreds && cred == nil {
		return orcherr.ErrCredentialsMissing
	}

	n := p.Profile.SampleSize
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", orcherr.ErrCancelled, ctx.Err())
		default:
		}

		latency := e.minLatency
		if e.maxLatency > e.minLatency {
			latency += time.Duration(e.rng.Int63n(int64(e.maxLatency - e.minLatency)))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", orcherr.ErrCancelled, ctx.Err())
		case <-time.After(latency):
		}

		if e.failureRate > 0 && e.rng.Float64() < e.failureRate {
			return orcherr.ErrEvaluatorRetryable
		}

		subject := "general"
		if len(p.Profile.SubjectTypes) > 0 {
			subject = p.Profile.SubjectTypes[i%len(p.Profile.SubjectTypes)]
		}
		correctness := e.pseudoScore(model.Name, subject, i)

		onSample(sample.Sample{
			ModelName:    model.Name,
			Index:        i,
			Prompt:       fmt.Sprintf("sample-%d", i),
			Answer:       fmt.Sprintf("answer-%d", i),
			Correctness:  correctness,
			SkillLabel:   string(p.Profile.TaskType),
			TargetLabel:  string(p.Profile.TargetType),
			SubjectLabel: subject,
			TaskLabel:    string(p.Profile.TaskType),
			DatasetName:  p.Metadata.Name,
			Timestamp:    time.Now(),
			Language:     p.Profile.Language,
		})

		if onProgress != nil {
			onProgress(int(math.Round(float64(i+1) / float64(n) * 100)))
		}
	}
	return nil
}

// pseudoScore derives a deterministic-per-run but pseudo-random
// correctness value from the model name and subject, so repeated
// evaluations of the same plan aren't bitwise identical but stay
// bounded to [0, 1].
func (e *InMemory) pseudoScore(model, subject string, index int) float64 {
	base := 0.5 + 0.1*float64(len(model)%5) + 0.05*float64(len(subject)%3)
	jitter := (e.rng.Float64() - 0.5) * 0.2
	score := base + jitter
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
