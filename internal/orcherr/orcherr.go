// Package orcherr defines the error kinds emitted by the orchestrator core.
//
// Kinds are sentinel errors, never dynamic strings, so callers can use
// errors.Is against them after unwrapping. HTTP status mapping lives in
// the api package; this package only names and classifies.
package orcherr

import "errors"

// Kind is one of the closed set of error kinds the orchestrator can emit.
type Kind = error

// The error kinds named in the orchestrator's error handling design.
var (
	// ErrValidation means the plan failed schema or enum checks.
	ErrValidation = errors.New("validation_error")

	// ErrDuplicateFingerprintInFlight is internal-only: the dispatcher
	// converts this into a coalesced attach and never surfaces it.
	ErrDuplicateFingerprintInFlight = errors.New("duplicate_fingerprint_in_flight")

	// ErrCredentialsMissing means the worker could not find a credential
	// envelope for the task (TTL expired or process restart).
	ErrCredentialsMissing = errors.New("credentials_missing")

	// ErrStorageUnavailable means a persistent store was unreachable
	// after retries.
	ErrStorageUnavailable = errors.New("storage_unavailable")

	// ErrQueueUnavailable means the queue adapter could not enqueue or
	// claim a job.
	ErrQueueUnavailable = errors.New("queue_unavailable")

	// ErrEvaluatorRetryable classifies an Evaluator failure as
	// retryable (network timeout, 5xx from a provider).
	ErrEvaluatorRetryable = errors.New("evaluator_retryable")

	// ErrEvaluatorFatal classifies an Evaluator failure as
	// non-retryable (bad plan, auth failure).
	ErrEvaluatorFatal = errors.New("evaluator_fatal")

	// ErrTimeout means the task exceeded task_max_duration.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled is not a failure; it records a CANCELLED terminal
	// state. Kept here so callers can classify it alongside the rest.
	ErrCancelled = errors.New("cancelled")

	// ErrConflict means a state transition violated the task state
	// machine (e.g. cancel on an already-terminal task).
	ErrConflict = errors.New("conflict")
)

// Redact bounds a message's length before it is stored on a Task or
// returned to a client. Credential handles never appear in Evaluator
// error text in the first place; this only guards against an
// unbounded third-party error message bloating a task snapshot.
func Redact(msg string) string {
	const max = 512
	if len(msg) > max {
		return msg[:max] + "...(truncated)"
	}
	return msg
}
