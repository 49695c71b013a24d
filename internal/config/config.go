// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New() initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory task queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerConcurrency sets the number of worker goroutines driving
	// the Evaluator.
	WorkerConcurrency int `koanf:"worker_concurrency"`

	// TaskMaxDuration is the hard ceiling on one task's STARTED
	// lifetime; exceeding it self-cancels the task with kind timeout.
	TaskMaxDuration time.Duration `koanf:"task_max_duration"`

	// SampleSizeBuckets is the fingerprint bucketing ladder.
	SampleSizeBuckets []int `koanf:"sample_size_buckets"`

	// CacheTTL is the staleness threshold for cache index lookups.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// MinCacheReuseSamples floors sample_size below which cache
	// lookups are bypassed as too noisy to reuse.
	MinCacheReuseSamples int `koanf:"min_cache_reuse_samples"`

	// CancelLatencyBound bounds how long a worker may take to observe
	// a cancel request at its next cooperative check.
	CancelLatencyBound time.Duration `koanf:"cancel_latency_bound"`

	// LeaseTTL is the worker ownership window on a claimed task before
	// the queue's reaper reclaims it.
	LeaseTTL time.Duration `koanf:"lease_ttl"`

	// ProgressMinInterval rate-limits progress writes to the registry.
	ProgressMinInterval time.Duration `koanf:"progress_min_interval"`

	// CredentialEnvelopeTTL bounds how long an unused credential
	// envelope survives before the sweeper purges it.
	CredentialEnvelopeTTL time.Duration `koanf:"credential_envelope_ttl"`

	// PinnedEvaluatorVersion, if set, makes any cache row stamped with
	// a different evaluator_version count as stale.
	PinnedEvaluatorVersion string `koanf:"pinned_evaluator_version"`

	// MaxSampleSize caps a submitted plan's sample_size.
	MaxSampleSize int `koanf:"max_sample_size"`

	// MaxBrowseLimit caps GET /leaderboard?limit.
	MaxBrowseLimit int `koanf:"max_browse_limit"`

	// EvaluatorMinLatencyMS and EvaluatorMaxLatencyMS bound the
	// reference in-memory Evaluator's simulated per-sample latency.
	EvaluatorMinLatencyMS int `koanf:"evaluator_min_latency_ms"`
	EvaluatorMaxLatencyMS int `koanf:"evaluator_max_latency_ms"`

	// EvaluatorMaxAttempts bounds in-task retries of a retryable
	// Evaluator failure.
	EvaluatorMaxAttempts int `koanf:"evaluator_max_attempts"`

	// SubjectTaxonomy is the closed set of allowed subject_type tags.
	// Empty means unrestricted: taxonomy membership is a deployment
	// input, not a fixed contract.
	SubjectTaxonomy []string `koanf:"subject_taxonomy"`
}

// New creates a Config with sensible defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		QueueSize:              10_000,
		WorkerConcurrency:      runtime.NumCPU() * 4,
		TaskMaxDuration:        30 * time.Minute,
		SampleSizeBuckets:      []int{10, 25, 50, 100, 250, 500, 1000},
		CacheTTL:               24 * time.Hour,
		MinCacheReuseSamples:   10,
		CancelLatencyBound:     5 * time.Second,
		LeaseTTL:               2 * time.Minute,
		ProgressMinInterval:    500 * time.Millisecond,
		CredentialEnvelopeTTL:  15 * time.Minute,
		PinnedEvaluatorVersion: "",
		MaxSampleSize:          100_000,
		MaxBrowseLimit:         200,
		EvaluatorMinLatencyMS:  20,
		EvaluatorMaxLatencyMS:  80,
		EvaluatorMaxAttempts:   3,
		SubjectTaxonomy:        nil,
	}
}
