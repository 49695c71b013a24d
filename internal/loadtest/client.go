package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// planPayload mirrors the wire shape of POST /evaluate. The yaml tags
// let it double as the schema for a hand-authored plan file submitted
// via the orchload "plan" subcommand.
type planPayload struct {
	SchemaVersion string `json:"schema_version" yaml:"schema_version"`
	Metadata      struct {
		Name string `json:"name" yaml:"name"`
	} `json:"metadata" yaml:"metadata"`
	Profile struct {
		ProblemType  string   `json:"problem_type" yaml:"problem_type"`
		TargetType   string   `json:"target_type" yaml:"target_type"`
		TaskType     string   `json:"task_type" yaml:"task_type"`
		Language     string   `json:"language" yaml:"language"`
		SubjectTypes []string `json:"subject_type" yaml:"subject_type"`
		SampleSize   int      `json:"sample_size" yaml:"sample_size"`
	} `json:"profile" yaml:"profile"`
	Models []struct {
		Name         string `json:"name" yaml:"name"`
		ProviderKind string `json:"provider_kind" yaml:"provider_kind"`
		Endpoint     string `json:"endpoint" yaml:"endpoint"`
	} `json:"models" yaml:"models"`
	Directives struct {
		ScoringMethod string `json:"scoring_method" yaml:"scoring_method"`
	} `json:"directives" yaml:"directives"`
}

// evaluateAck mirrors the response body of POST /evaluate.
type evaluateAck struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Cached bool   `json:"cached"`
}

// taskSnapshot mirrors the response body of GET /tasks/{task_id}.
type taskSnapshot struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (t taskSnapshot) terminal() bool {
	switch t.Status {
	case "SUCCESS", "FAILURE", "CANCELLED":
		return true
	default:
		return false
	}
}

// client wraps the control-plane HTTP surface.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *client) healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) submit(ctx context.Context, p planPayload) (evaluateAck, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return evaluateAck{}, fmt.Errorf("marshal plan: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return evaluateAck{}, fmt.Errorf("build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return evaluateAck{}, fmt.Errorf("call evaluate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return evaluateAck{}, fmt.Errorf("evaluate returned status %d: %s", resp.StatusCode, msg)
	}
	var ack evaluateAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return evaluateAck{}, fmt.Errorf("decode evaluate response: %w", err)
	}
	return ack, nil
}

func (c *client) getTask(ctx context.Context, taskID string) (taskSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, http.NoBody)
	if err != nil {
		return taskSnapshot{}, fmt.Errorf("build get_task request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return taskSnapshot{}, fmt.Errorf("call get_task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return taskSnapshot{}, fmt.Errorf("get_task returned status %d: %s", resp.StatusCode, msg)
	}
	var t taskSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return taskSnapshot{}, fmt.Errorf("decode task response: %w", err)
	}
	return t, nil
}
