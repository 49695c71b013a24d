// Package loadtest drives the llmrank control plane end-to-end from
// the outside: submitting plans, polling tasks, and verifying the
// cache-hit and coalescing behavior the orchestrator promises.
package loadtest

import "time"

// Config holds the parameters for a load-test run.
type Config struct {
	BaseURL    string        // Base URL of the running control plane
	NumPlans   int           // Number of plans to generate and submit
	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // Per-request HTTP timeout
	PollEvery  time.Duration // Interval between task status polls
	PollFor    time.Duration // Max time to wait for a task to terminate
	SampleSize int           // sample_size to put on each generated plan
	Verbose    bool
}

// Stats accumulates counters over a run.
type Stats struct {
	PlansGenerated int
	PlansSubmitted int
	PlansAccepted  int
	PlansCached    int
	PlansFailed    int
	TasksTerminal  int
	TasksTimedOut  int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
