// Package maintenance implements the admin cleanup job: it walks the
// task registry for terminal tasks older than a retention window and
// removes them along with their samples, and can additionally sweep
// stale or quarantined leaderboard cache rows, each independently
// selectable through a Scope and optionally previewed as a dry run.
// Grounded on the original's periodic manager routes, generalized here
// to run as an ordinary function rather than a scheduled Celery task.
package maintenance

import (
	"context"
	"time"

	"github.com/okian/llmrank/internal/audit"
	"github.com/okian/llmrank/internal/cacheindex"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/registry"
	"github.com/okian/llmrank/internal/resultstore"
	"github.com/okian/llmrank/pkg/logger"
)

func terminalStatuses() []task.Status {
	return []task.Status{task.StatusSuccess, task.StatusFailure, task.StatusCancelled}
}

// ResourceTasks and its siblings are the closed set of resource names
// the cleanup wire contract accepts in its resources array.
const (
	ResourceTasks   = "tasks"
	ResourceSamples = "samples"
	ResourceCache   = "cache"
)

// ValidResource reports whether name is a resource the cleaner knows
// how to sweep.
func ValidResource(name string) bool {
	switch name {
	case ResourceTasks, ResourceSamples, ResourceCache:
		return true
	default:
		return false
	}
}

// Scope selects which resources a cleanup run touches and bounds how
// much it removes. An empty Resources defaults to sweeping tasks and
// their samples, matching the cleaner's original tasks-only behavior;
// the cache resource is swept only when named explicitly, since
// quarantining or deleting leaderboard rows is a more visible,
// higher-blast-radius action than retiring finished tasks.
type Scope struct {
	Resources  []string
	Limit      int
	HardDelete bool
}

func (s Scope) wants(resource string) bool {
	if len(s.Resources) == 0 {
		return resource == ResourceTasks || resource == ResourceSamples
	}
	for _, r := range s.Resources {
		if r == resource {
			return true
		}
	}
	return false
}

// Report summarizes one cleanup run.
type Report struct {
	Scanned      int
	Removed      []string
	CacheScanned int
	CacheSwept   []string
	DryRun       bool
	Duration     time.Duration
}

// Cleaner runs the periodic retention sweep over terminal tasks and,
// when asked, stale or quarantined leaderboard cache rows.
type Cleaner struct {
	registry registry.Registry
	results  resultstore.Store
	cache    cacheindex.Index
	audit    *audit.Log
	logger   logger.Logger
}

// New builds a Cleaner over the shared registry, result store, cache
// index and audit log.
func New(reg registry.Registry, results resultstore.Store, cache cacheindex.Index, auditLog *audit.Log) *Cleaner {
	return &Cleaner{registry: reg, results: results, cache: cache, audit: auditLog, logger: logger.Get().Named("maintenance")}
}

// Run sweeps every resource named in scope, each bounded by
// scope.Limit and cut off at now-retention. dryRun computes the same
// candidate sets without touching anything, for an operator to
// preview scope before committing.
func (c *Cleaner) Run(ctx context.Context, retention time.Duration, dryRun bool, scope Scope, actor, reason string) Report {
	start := time.Now()
	cutoff := start.Add(-retention)
	report := Report{DryRun: dryRun, Duration: 0}

	if scope.wants(ResourceTasks) || scope.wants(ResourceSamples) {
		if dryRun {
			candidates := c.scanCandidates(ctx, cutoff, scope.Limit)
			report.Scanned = len(candidates)
			c.logger.Info(ctx, "maintenance dry run", logger.Int("candidates", len(candidates)))
		} else {
			removed := c.registry.DeleteTerminalBefore(ctx, cutoff, scope.Limit)
			for _, taskID := range removed {
				c.results.DeleteTask(ctx, taskID)
			}
			report.Scanned = len(removed)
			report.Removed = removed
			c.logger.Info(ctx, "maintenance cleanup complete", logger.Int("removed", len(removed)))
		}
	}

	if scope.wants(ResourceCache) && c.cache != nil {
		keys, _ := c.cache.SweepStale(ctx, cutoff, scope.Limit, scope.HardDelete, dryRun)
		report.CacheScanned = len(keys)
		if dryRun {
			c.logger.Info(ctx, "maintenance cache dry run", logger.Int("candidates", len(keys)))
		} else {
			swept := make([]string, len(keys))
			for i, k := range keys {
				swept[i] = k.Fingerprint + "/" + k.ModelName
			}
			report.CacheSwept = swept
			c.logger.Info(ctx, "maintenance cache sweep complete",
				logger.Int("swept", len(keys)), logger.Any("hard_delete", scope.HardDelete))
		}
	}

	if !dryRun && c.audit != nil {
		c.audit.Append(ctx, actor, audit.ActionCleanup, reason, len(report.Removed)+len(report.CacheSwept), start)
	}
	report.Duration = time.Since(start)
	return report
}

// scanCandidates lists terminal tasks past cutoff without deleting
// them, used for the dry-run preview. It pages through the registry's
// List rather than relying on DeleteTerminalBefore, since the delete
// path is destructive and dry runs must never call it. limit caps the
// number of candidates returned (0 means unbounded).
func (c *Cleaner) scanCandidates(ctx context.Context, cutoff time.Time, limit int) []string {
	var ids []string
	for _, status := range terminalStatuses() {
		page := 0
		for {
			tasks, total, err := c.registry.List(ctx, registry.Filter{Status: &status, Page: page, Limit: 200})
			if err != nil || len(tasks) == 0 {
				break
			}
			for _, t := range tasks {
				if t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
					ids = append(ids, t.TaskID)
					if limit > 0 && len(ids) >= limit {
						return ids
					}
				}
			}
			page++
			if page*200 >= total {
				break
			}
		}
	}
	return ids
}
