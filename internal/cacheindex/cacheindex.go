// Package cacheindex implements C4: a keyed map from aggregate-row key
// to aggregate value, with a time-to-live policy and a quarantine flag.
package cacheindex

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/pkg/metrics"
)

// LookupOutcome classifies a Lookup result.
type LookupOutcome int

const (
	// Miss means no row exists for the requested key.
	Miss LookupOutcome = iota
	// Fresh means a row exists and is within its TTL and evaluator
	// version pin.
	Fresh
	// Stale means a row exists but its TTL has elapsed or the pinned
	// evaluator_version no longer matches.
	Stale
)

// LookupResult is the outcome of one Lookup call.
type LookupResult struct {
	Outcome LookupOutcome
	Rows    []aggregate.Row
}

// Index is the C4 contract.
type Index interface {
	// Lookup returns every row sharing fingerprint, classified fresh,
	// stale, or missing relative to ttl and pinnedEvaluatorVersion (an
	// empty pin matches any version).
	Lookup(ctx context.Context, fingerprint string, ttl time.Duration, pinnedEvaluatorVersion string) LookupResult

	// UpsertFromTask atomically writes rows, bumping LastUpdated and
	// stamping SourceTaskID, so a task observed SUCCESS always has its
	// aggregates visible here per the same critical section.
	UpsertFromTask(ctx context.Context, taskID string, rows []aggregate.Row, evaluatorVersion string) error

	// Quarantine flips the quarantine flag on the named rows.
	Quarantine(ctx context.Context, keys []aggregate.Key, reason string) (int, error)

	// Restore inverts Quarantine.
	Restore(ctx context.Context, keys []aggregate.Key) (int, error)

	// HardDelete removes rows outright.
	HardDelete(ctx context.Context, keys []aggregate.Key) (int, error)

	// Browse returns a filtered, paginated view plus the true total.
	Browse(ctx context.Context, filter aggregate.Filter, offset, limit int) ([]aggregate.Row, int, error)

	// Count returns the number of rows currently held, including
	// quarantined ones.
	Count(ctx context.Context) int

	// SweepStale scans rows last updated before cutoff or already
	// quarantined, capped at limit (0 means unbounded), and returns the
	// matching keys. If dryRun is false it also quarantines (soft) or
	// removes (hard) every matched row; a dry run only enumerates them,
	// leaving existing quarantine state untouched. Used by the
	// maintenance cleanup job when asked to sweep the cache resource.
	SweepStale(ctx context.Context, cutoff time.Time, limit int, hardDelete, dryRun bool) ([]aggregate.Key, error)
}

type entry struct {
	row              aggregate.Row
	evaluatorVersion string
}

// InMemory is the reference Index implementation: a mutex-guarded map,
// mirroring the shape of a treap-backed store without the ordering
// structure since aggregate rows are browsed by filter, not ranked.
type InMemory struct {
	mu   sync.RWMutex
	rows map[aggregate.Key]*entry
}

// New constructs an empty index.
func New() *InMemory {
	return &InMemory{rows: make(map[aggregate.Key]*entry)}
}

// Lookup implements Index.
func (idx *InMemory) Lookup(ctx context.Context, fingerprint string, ttl time.Duration, pinnedEvaluatorVersion string) LookupResult {
	start := time.Now()
	defer func() {
		metrics.RecordCacheLookupLatency(float64(time.Since(start).Milliseconds()))
	}()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var rows []aggregate.Row
	stale := false
	now := time.Now()
	for key, e := range idx.rows {
		if key.Fingerprint != fingerprint || e.row.Quarantine {
			continue
		}
		if ttl > 0 && now.Sub(e.row.LastUpdated) > ttl {
			stale = true
			continue
		}
		if pinnedEvaluatorVersion != "" && e.evaluatorVersion != pinnedEvaluatorVersion {
			stale = true
			continue
		}
		rows = append(rows, e.row)
	}

	switch {
	case len(rows) > 0:
		return LookupResult{Outcome: Fresh, Rows: rows}
	case stale:
		metrics.RecordCacheStale()
		return LookupResult{Outcome: Stale}
	default:
		return LookupResult{Outcome: Miss}
	}
}

// UpsertFromTask implements Index.
func (idx *InMemory) UpsertFromTask(ctx context.Context, taskID string, rows []aggregate.Row, evaluatorVersion string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := time.Now()
	for _, row := range rows {
		row.LastUpdated = now
		row.SourceTaskID = taskID
		idx.rows[row.Key] = &entry{row: row, evaluatorVersion: evaluatorVersion}
	}
	metrics.UpdateCacheRowsTotal(len(idx.rows))
	return nil
}

// Quarantine implements Index.
func (idx *InMemory) Quarantine(ctx context.Context, keys []aggregate.Key, reason string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for _, k := range keys {
		e, ok := idx.rows[k]
		if !ok {
			continue
		}
		e.row.Quarantine = true
		e.row.QuarantineNote = reason
		n++
	}
	metrics.RecordQuarantine(n)
	return n, nil
}

// Restore implements Index.
func (idx *InMemory) Restore(ctx context.Context, keys []aggregate.Key) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for _, k := range keys {
		e, ok := idx.rows[k]
		if !ok || !e.row.Quarantine {
			continue
		}
		e.row.Quarantine = false
		e.row.QuarantineNote = ""
		n++
	}
	metrics.RecordRestore(n)
	return n, nil
}

// HardDelete implements Index.
func (idx *InMemory) HardDelete(ctx context.Context, keys []aggregate.Key) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := idx.rows[k]; ok {
			delete(idx.rows, k)
			n++
		}
	}
	metrics.UpdateCacheRowsTotal(len(idx.rows))
	return n, nil
}

// Browse implements Index.
func (idx *InMemory) Browse(ctx context.Context, filter aggregate.Filter, offset, limit int) ([]aggregate.Row, int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matched := make([]aggregate.Row, 0, len(idx.rows))
	for _, e := range idx.rows {
		if filter.Matches(e.row) {
			matched = append(matched, e.row)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].ModelName < matched[j].ModelName
	})

	total := len(matched)
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	start := offset
	if start >= total {
		return []aggregate.Row{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Count implements Index.
func (idx *InMemory) Count(ctx context.Context) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.rows)
}

// SweepStale implements Index.
func (idx *InMemory) SweepStale(ctx context.Context, cutoff time.Time, limit int, hardDelete, dryRun bool) ([]aggregate.Key, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var keys []aggregate.Key
	for k, e := range idx.rows {
		if !e.row.Quarantine && !e.row.LastUpdated.Before(cutoff) {
			continue
		}
		keys = append(keys, k)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	if dryRun {
		return keys, nil
	}
	for _, k := range keys {
		if hardDelete {
			delete(idx.rows, k)
			continue
		}
		e := idx.rows[k]
		e.row.Quarantine = true
		if e.row.QuarantineNote == "" {
			e.row.QuarantineNote = "retention sweep"
		}
	}
	metrics.UpdateCacheRowsTotal(len(idx.rows))
	return keys, nil
}
