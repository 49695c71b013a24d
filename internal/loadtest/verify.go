package loadtest

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/llmrank/pkg/logger"
)

// VerifyCache submits the same plan twice and confirms the second
// submission is served from the leaderboard cache, exercising the
// fingerprint coalescing and cache-reuse path end-to-end.
func VerifyCache(ctx context.Context, cfg *Config) error {
	log := logger.Get()
	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.healthy(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	plan := generateSinglePlan(0, cfg)

	first, err := c.submit(ctx, plan)
	if err != nil {
		return fmt.Errorf("first submission failed: %w", err)
	}
	if first.Cached {
		return fmt.Errorf("first submission of a fresh plan was unexpectedly served from cache")
	}

	deadline := time.Now().Add(cfg.PollFor)
	var snap taskSnapshot
	for time.Now().Before(deadline) {
		snap, err = c.getTask(ctx, first.TaskID)
		if err != nil {
			return fmt.Errorf("polling first task failed: %w", err)
		}
		if snap.terminal() {
			break
		}
		time.Sleep(cfg.PollEvery)
	}
	if !snap.terminal() {
		return fmt.Errorf("first task did not reach a terminal state within %s", cfg.PollFor)
	}

	second, err := c.submit(ctx, plan)
	if err != nil {
		return fmt.Errorf("second submission failed: %w", err)
	}
	if !second.Cached {
		return fmt.Errorf("second submission of an identical plan was not served from cache")
	}

	log.Info(ctx, "cache verification passed",
		logger.String("first_task_id", first.TaskID),
		logger.String("second_task_id", second.TaskID))
	return nil
}
