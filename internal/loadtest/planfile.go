package loadtest

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadPlanFile reads a hand-authored plan from a YAML file on disk.
// This is the one path in orchload that takes a plan from outside the
// generator rather than synthesizing one.
func loadPlanFile(path string) (planPayload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return planPayload{}, fmt.Errorf("read plan file: %w", err)
	}
	var p planPayload
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return planPayload{}, fmt.Errorf("parse plan file: %w", err)
	}
	if p.SchemaVersion == "" {
		p.SchemaVersion = "1"
	}
	return p, nil
}

// SubmitPlanFile loads a plan described in YAML and submits it to the
// control plane, polling the resulting task to a terminal state.
func SubmitPlanFile(ctx context.Context, cfg *Config, path string) error {
	p, err := loadPlanFile(path)
	if err != nil {
		return err
	}

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.healthy(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	ack, err := c.submit(ctx, p)
	if err != nil {
		return fmt.Errorf("submit plan file %s: %w", path, err)
	}

	terminal, err := pollUntilTerminal(ctx, c, ack.TaskID, cfg)
	if err != nil {
		return fmt.Errorf("poll plan file task %s: %w", ack.TaskID, err)
	}
	if !terminal {
		return fmt.Errorf("plan file task %s did not reach a terminal state within %s", ack.TaskID, cfg.PollFor)
	}
	return nil
}
