// Package task defines the Task value and its lifecycle state machine.
package task

import (
	"fmt"
	"time"

	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/plan"
)

// Status is one of the closed states in the task lifecycle.
type Status string

// The task lifecycle states.
const (
	StatusPending   Status = "PENDING"
	StatusStarted   Status = "STARTED"
	StatusSuccess   Status = "SUCCESS"
	StatusFailure   Status = "FAILURE"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether a status is a sticky, terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled:
		return true
	default:
		return false
	}
}

// transitions enumerates the legal edges of the state machine. A
// transition not present here is rejected with ErrIllegalTransition.
var transitions = map[Status]map[Status]bool{
	StatusPending: {StatusStarted: true, StatusCancelled: true, StatusFailure: true},
	StatusStarted: {StatusSuccess: true, StatusFailure: true, StatusCancelled: true},
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	return transitions[from][to]
}

// Error captures a terminal FAILURE's classification and message.
type Error struct {
	Kind    string
	Message string
}

// Task is one execution attempt for one (plan, fingerprint) pair.
type Task struct {
	TaskID       string
	Fingerprint  string
	Status       Status
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Progress     int
	PlanSnapshot plan.Plan // always redacted: no credentials
	Result       []aggregate.Row
	Error        *Error
	Revision     uint64

	// Deadline is started_at + task_max_duration, set when the task
	// transitions to STARTED. The worker self-cancels with ErrTimeout
	// once this elapses.
	Deadline time.Time

	// CancelRequested is set by an admin cancel while the task is
	// still PENDING or STARTED; the worker observes it cooperatively.
	CancelRequested bool
}

// ErrIllegalTransition is returned when a caller asks for a transition
// the state machine does not allow.
var ErrIllegalTransition = fmt.Errorf("illegal task state transition")

// Clone returns a deep-enough copy for safe handoff across goroutines:
// the plan snapshot, result slice and error pointer are copied so a
// caller can't mutate registry-owned state through the returned value.
func (t *Task) Clone() Task {
	cp := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	if t.Result != nil {
		cp.Result = append([]aggregate.Row(nil), t.Result...)
	}
	if t.Error != nil {
		v := *t.Error
		cp.Error = &v
	}
	cp.PlanSnapshot.Models = append([]plan.ModelConfig(nil), t.PlanSnapshot.Models...)
	cp.PlanSnapshot.Profile.SubjectTypes = append([]string(nil), t.PlanSnapshot.Profile.SubjectTypes...)
	return cp
}
