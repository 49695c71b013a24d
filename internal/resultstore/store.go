// Package resultstore implements C2: an append-only store of Sample
// rows indexed by (task_id, model_name), with idempotent batch writes
// and mean-correctness aggregation scoped to a single task.
package resultstore

import (
	"context"
	"sync"
	"time"

	"github.com/okian/llmrank/internal/domain/sample"
	"github.com/okian/llmrank/pkg/metrics"
)

// FingerprintRow groups one task's samples by the four dimensions the
// leaderboard cache keys on: model, language, subject and task type.
// Despite the name it is scoped to a single task's own samples, not to
// every sample ever written under a fingerprint - a cancelled or
// failed task's partial samples must never bleed into a later,
// unrelated run that happens to share the same fingerprint.
type FingerprintRow struct {
	ModelName   string
	Language    string
	SubjectType string
	TaskType    string
	Score       float64
	SampleCount int
}

// Store is the interface C7 (worker) and C4 (cache index) depend on.
type Store interface {
	// AppendSamples atomically writes a batch. A (task_id, model_name,
	// index) triple already present is silently discarded, making the
	// call idempotent under retry/redelivery.
	AppendSamples(ctx context.Context, taskID string, rows []sample.Sample) error

	// Aggregate computes mean correctness for one task, grouped by
	// (model, language, subject, task) using only samples that carry
	// that task_id - never samples from any other task, even one that
	// shares the same fingerprint.
	Aggregate(ctx context.Context, taskID string) ([]FingerprintRow, error)

	// Count returns the number of samples recorded for a task.
	Count(ctx context.Context, taskID string) int

	// DeleteTask removes every sample recorded for taskID, returning
	// the number of samples removed. Used by the maintenance cleanup
	// job once a task's registry record has aged out.
	DeleteTask(ctx context.Context, taskID string) int
}

// InMemoryStore is the reference Store implementation: a mutex-guarded
// map keyed by task, holding each task's samples grouped by model for
// averaging (samples are not ranked, only grouped and averaged).
type InMemoryStore struct {
	mu sync.RWMutex
	// byTask[taskID][modelName][index] -> sample, for idempotence.
	byTask map[string]map[string]map[int]sample.Sample
}

// New constructs an empty InMemoryStore.
func New() *InMemoryStore {
	return &InMemoryStore{
		byTask: make(map[string]map[string]map[int]sample.Sample),
	}
}

// AppendSamples implements Store.
func (s *InMemoryStore) AppendSamples(ctx context.Context, taskID string, rows []sample.Sample) error {
	start := time.Now()
	defer func() {
		metrics.RecordResultStoreAppendLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	byModel, ok := s.byTask[taskID]
	if !ok {
		byModel = make(map[string]map[int]sample.Sample)
		s.byTask[taskID] = byModel
	}

	written := 0
	for _, row := range rows {
		row.TaskID = taskID
		indexed, ok := byModel[row.ModelName]
		if !ok {
			indexed = make(map[int]sample.Sample)
			byModel[row.ModelName] = indexed
		}
		if _, dup := indexed[row.Index]; dup {
			// Idempotent: second write of the same (task, model, index)
			// is discarded.
			continue
		}
		indexed[row.Index] = row
		written++
	}
	metrics.RecordSamplesAppended(written)
	return nil
}

// Aggregate implements Store.
func (s *InMemoryStore) Aggregate(ctx context.Context, taskID string) ([]FingerprintRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byModel, ok := s.byTask[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	type key struct{ model, lang, subject, task string }
	sums := make(map[key]float64)
	counts := make(map[key]int)
	for _, indexed := range byModel {
		for _, row := range indexed {
			k := key{row.ModelName, row.Language, row.SubjectLabel, row.TaskLabel}
			sums[k] += row.Correctness
			counts[k]++
		}
	}
	out := make([]FingerprintRow, 0, len(counts))
	for k, n := range counts {
		out = append(out, FingerprintRow{
			ModelName:   k.model,
			Language:    k.lang,
			SubjectType: k.subject,
			TaskType:    k.task,
			Score:       sums[k] / float64(n),
			SampleCount: n,
		})
	}
	return out, nil
}

// Count implements Store.
func (s *InMemoryStore) Count(ctx context.Context, taskID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, indexed := range s.byTask[taskID] {
		total += len(indexed)
	}
	return total
}

// DeleteTask implements Store.
func (s *InMemoryStore) DeleteTask(ctx context.Context, taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	byModel, ok := s.byTask[taskID]
	if !ok {
		return 0
	}
	removed := 0
	for _, indexed := range byModel {
		removed += len(indexed)
	}
	delete(s.byTask, taskID)
	return removed
}
