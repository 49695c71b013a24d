package loadtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/llmrank/pkg/logger"
)

var subjects = []string{"math", "biology", "history", "programming"}
var languages = []string{"en", "es"}
var providers = []string{"local"}

// generatePlans creates config.NumPlans plans, varying subject and
// language so a run exercises multiple leaderboard cache rows rather
// than collapsing onto a single fingerprint.
func generatePlans(ctx context.Context, cfg *Config, stats *Stats) ([]planPayload, error) {
	logger.Get().Info(ctx, "generating plans", logger.Int("numPlans", cfg.NumPlans))

	plans := make([]planPayload, cfg.NumPlans)
	workerCount := minInt(cfg.Workers, cfg.NumPlans)
	if workerCount < 1 {
		workerCount = 1
	}
	perWorker := cfg.NumPlans / workerCount

	type result struct {
		index int
		plan  planPayload
	}
	results := make(chan result, cfg.NumPlans)

	for w := 0; w < workerCount; w++ {
		start := w * perWorker
		end := start + perWorker
		if w == workerCount-1 {
			end = cfg.NumPlans
		}
		go func(start, end int) {
			for i := start; i < end; i++ {
				results <- result{index: i, plan: generateSinglePlan(i, cfg)}
			}
		}(start, end)
	}

	for i := 0; i < cfg.NumPlans; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during plan generation: %w", ctx.Err())
		case r := <-results:
			plans[r.index] = r.plan
		}
	}

	stats.PlansGenerated = len(plans)
	logger.Get().Info(ctx, "generated plans successfully", logger.Int("count", len(plans)))
	return plans, nil
}

func generateSinglePlan(index int, cfg *Config) planPayload {
	subject := subjects[index%len(subjects)]
	language := languages[index%len(languages)]

	var p planPayload
	p.SchemaVersion = "1"
	p.Metadata.Name = "loadtest-" + uuid.New().String()
	p.Profile.ProblemType = "MCQA"
	p.Profile.TargetType = "General"
	p.Profile.TaskType = "Knowledge"
	p.Profile.Language = language
	p.Profile.SubjectTypes = []string{subject}
	p.Profile.SampleSize = cfg.SampleSize
	p.Models = []struct {
		Name         string `json:"name" yaml:"name"`
		ProviderKind string `json:"provider_kind" yaml:"provider_kind"`
		Endpoint     string `json:"endpoint" yaml:"endpoint"`
	}{{Name: fmt.Sprintf("loadtest-model-%d", randomInt(4)), ProviderKind: providers[0], Endpoint: "https://example.invalid/v1"}}
	p.Directives.ScoringMethod = "exact_match"
	return p
}

func randomInt(bound int64) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(bound))
	return int(n.Int64())
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
