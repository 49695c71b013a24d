// Package metrics provides Prometheus metrics for the llmrank evaluation
// orchestrator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the orchestrator exposes.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer
	gatherer         prometheus.Gatherer

	// Dispatcher / cache metrics.
	submitTotal        *prometheus.CounterVec // outcome: cache_hit, partial_hit, coalesced, enqueued
	cacheLookupLatency prometheus.Histogram
	cacheRowsTotal     prometheus.Gauge
	cacheStaleTotal    prometheus.Counter
	quarantineTotal    prometheus.Counter
	restoreTotal       prometheus.Counter

	// Task registry metrics.
	tasksByStatus   *prometheus.GaugeVec
	taskTransitions *prometheus.CounterVec
	taskDuration    prometheus.Histogram

	// Queue metrics.
	queueDepth        prometheus.Gauge
	queueEnqueueTotal prometheus.Counter
	queueClaimTotal   prometheus.Counter
	queueReclaimTotal prometheus.Counter
	queueAckTotal     prometheus.Counter
	queueNackTotal    prometheus.Counter

	// Worker metrics.
	workerRunning        prometheus.Gauge
	evaluatorLatency     prometheus.Histogram
	evaluatorRetryTotal  prometheus.Counter
	evaluatorErrorTotal  *prometheus.CounterVec
	samplesAppendedTotal prometheus.Counter
	resultStoreLatency   prometheus.Histogram

	// HTTP metrics.
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "llmrank",
		subsystem:        "orchestrator",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
		gatherer:         prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.submitTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "submit_total", Help: "Total submit() calls by outcome (cache_hit, partial_hit, coalesced, enqueued).",
	}, []string{"outcome"})

	m.cacheLookupLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "cache_lookup_latency_milliseconds", Help: "Cache index lookup latency.", Buckets: m.histogramBuckets,
	})

	m.cacheRowsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "cache_rows_total", Help: "Number of aggregate rows currently held by the cache index.",
	})

	m.cacheStaleTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "cache_stale_total", Help: "Cache lookups that found a row but treated it as stale.",
	})

	m.quarantineTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "cache_quarantine_total", Help: "Cache rows quarantined.",
	})

	m.restoreTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "cache_restore_total", Help: "Cache rows restored from quarantine.",
	})

	m.tasksByStatus = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "tasks_by_status", Help: "Current number of tasks per status.",
	}, []string{"status"})

	m.taskTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "task_transitions_total", Help: "Task state transitions by destination status.",
	}, []string{"to"})

	m.taskDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "task_duration_seconds", Help: "Wall time from STARTED to a terminal state.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_depth", Help: "Number of jobs waiting to be claimed.",
	})

	m.queueEnqueueTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_enqueue_total", Help: "Total jobs enqueued.",
	})

	m.queueClaimTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_claim_total", Help: "Total jobs claimed by a worker.",
	})

	m.queueReclaimTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_reclaim_total", Help: "Total jobs reclaimed after a lease expired.",
	})

	m.queueAckTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_ack_total", Help: "Total jobs acknowledged.",
	})

	m.queueNackTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_nack_total", Help: "Total jobs nacked.",
	})

	m.workerRunning = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_running", Help: "Number of worker loops currently running.",
	})

	m.evaluatorLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "evaluator_call_latency_milliseconds", Help: "Wall time of one worker task run, in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.evaluatorRetryTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "evaluator_retry_total", Help: "Total retryable Evaluator failures retried.",
	})

	m.evaluatorErrorTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "evaluator_error_total", Help: "Evaluator errors by kind.",
	}, []string{"kind"})

	m.samplesAppendedTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "samples_appended_total", Help: "Total samples newly appended (excludes idempotent duplicates).",
	})

	m.resultStoreLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "result_store_append_latency_milliseconds", Help: "Latency of one AppendSamples batch.",
		Buckets: m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total", Help: "Total HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration.",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// GetRegistry returns the registry serving /health in Prometheus format.
func GetRegistry() *prometheus.Registry { return customRegistry }

// --- package-level convenience wrappers over the global Manager ---

func RecordSubmit(outcome string) { globalManager.submitTotal.WithLabelValues(outcome).Inc() }

func RecordCacheLookupLatency(ms float64) { globalManager.cacheLookupLatency.Observe(ms) }

func UpdateCacheRowsTotal(n int) { globalManager.cacheRowsTotal.Set(float64(n)) }

func RecordCacheStale() { globalManager.cacheStaleTotal.Inc() }

func RecordQuarantine(n int) { globalManager.quarantineTotal.Add(float64(n)) }

func RecordRestore(n int) { globalManager.restoreTotal.Add(float64(n)) }

func UpdateTasksByStatus(status string, n int) {
	globalManager.tasksByStatus.WithLabelValues(status).Set(float64(n))
}

func RecordTaskTransition(to string) { globalManager.taskTransitions.WithLabelValues(to).Inc() }

func RecordTaskDuration(d time.Duration) { globalManager.taskDuration.Observe(d.Seconds()) }

func UpdateQueueDepth(n int) { globalManager.queueDepth.Set(float64(n)) }

func RecordQueueEnqueue() { globalManager.queueEnqueueTotal.Inc() }

func RecordQueueClaim() { globalManager.queueClaimTotal.Inc() }

func RecordQueueReclaim() { globalManager.queueReclaimTotal.Inc() }

func RecordQueueAck() { globalManager.queueAckTotal.Inc() }

func RecordQueueNack() { globalManager.queueNackTotal.Inc() }

func UpdateWorkerRunning(n int) { globalManager.workerRunning.Set(float64(n)) }

func RecordEvaluatorLatency(ms float64) { globalManager.evaluatorLatency.Observe(ms) }

func RecordEvaluatorRetry() { globalManager.evaluatorRetryTotal.Inc() }

func RecordEvaluatorError(kind string) { globalManager.evaluatorErrorTotal.WithLabelValues(kind).Inc() }

func RecordSamplesAppended(n int) { globalManager.samplesAppendedTotal.Add(float64(n)) }

func RecordResultStoreAppendLatency(ms float64) { globalManager.resultStoreLatency.Observe(ms) }

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}
