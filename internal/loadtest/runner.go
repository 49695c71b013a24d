package loadtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/llmrank/pkg/logger"
)

// Run submits Config.NumPlans plans concurrently, polls each to a
// terminal state, and logs a final summary.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting llmrank load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("plans", cfg.NumPlans),
		logger.Int("workers", cfg.Workers))

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.healthy(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	plans, err := generatePlans(ctx, cfg, stats)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	taskIDs := submitAll(ctx, c, plans, cfg, stats, log)
	pollAll(ctx, c, taskIDs, cfg, stats, log)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logSummary(stats)
	return nil
}

func submitAll(ctx context.Context, c *client, plans []planPayload, cfg *Config, stats *Stats, log logger.Logger) []string {
	var mu sync.Mutex
	var wg sync.WaitGroup
	taskIDs := make([]string, 0, len(plans))

	sem := make(chan struct{}, maxWorkers(cfg))
	for _, p := range plans {
		p := p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			stats.PlansSubmitted++
			mu.Unlock()

			ack, err := c.submit(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.PlansFailed++
				if cfg.Verbose {
					log.Warn(ctx, "plan submission failed", logger.Error(err))
				}
				return
			}
			stats.PlansAccepted++
			if ack.Cached {
				stats.PlansCached++
			}
			taskIDs = append(taskIDs, ack.TaskID)
		}()
	}
	wg.Wait()
	return taskIDs
}

func pollAll(ctx context.Context, c *client, taskIDs []string, cfg *Config, stats *Stats, log logger.Logger) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, maxWorkers(cfg))
	for _, id := range taskIDs {
		id := id
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			terminal, err := pollUntilTerminal(ctx, c, id, cfg)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if cfg.Verbose {
					log.Warn(ctx, "task poll failed", logger.String("task_id", id), logger.Error(err))
				}
			case terminal:
				stats.TasksTerminal++
			default:
				stats.TasksTimedOut++
			}
		}()
	}
	wg.Wait()
}

func pollUntilTerminal(ctx context.Context, c *client, taskID string, cfg *Config) (bool, error) {
	deadline := time.Now().Add(cfg.PollFor)
	for time.Now().Before(deadline) {
		snap, err := c.getTask(ctx, taskID)
		if err != nil {
			return false, err
		}
		if snap.terminal() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(cfg.PollEvery):
		}
	}
	return false, nil
}

func maxWorkers(cfg *Config) int {
	if cfg.Workers < 1 {
		return 1
	}
	return cfg.Workers
}

func logSummary(stats *Stats) {
	var successRate float64
	if stats.PlansSubmitted > 0 {
		successRate = float64(stats.PlansAccepted) / float64(stats.PlansSubmitted) * 100
	}
	logger.Get().Info(context.Background(), "load test finished",
		logger.Int("plansGenerated", stats.PlansGenerated),
		logger.Int("plansSubmitted", stats.PlansSubmitted),
		logger.Int("plansAccepted", stats.PlansAccepted),
		logger.Int("plansCached", stats.PlansCached),
		logger.Int("plansFailed", stats.PlansFailed),
		logger.Int("tasksTerminal", stats.TasksTerminal),
		logger.Int("tasksTimedOut", stats.TasksTimedOut),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate))
}
