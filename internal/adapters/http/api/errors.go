package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/llmrank/internal/orcherr"
)

// Sentinel kinds for API-local errors, not otherwise carried by orcherr.
var (
	ErrServe       = errors.New("swagger serve failed")
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	errRowIDFormat = errors.New("row_id must be fingerprint|model_name|language|subject_type|task_type")
)

// kindError pairs an operation name with a classified error kind, so
// logs and error payloads can identify both what failed and where.
type kindError struct {
	op   string
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil && e.err != e.kind {
		return fmt.Sprintf("%s: %s: %v", e.op, e.kind, e.err)
	}
	return fmt.Sprintf("%s: %s", e.op, e.kind)
}

func (e *kindError) Unwrap() error { return e.err }

// NewKind builds a kindError carrying only the kind, for call sites
// with no underlying error to wrap.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind, err: kind}
}

// WrapKind builds a kindError wrapping err under the given kind.
func WrapKind(op string, kind error, err error) error {
	return &kindError{op: op, kind: kind, err: err}
}

// Wrap attaches op to err without a specific kind classification,
// mapped to an internal error by statusFor.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// statusFor maps an orchestrator error kind to an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, orcherr.ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orcherr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, orcherr.ErrQueueUnavailable), errors.Is(err, orcherr.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeFor returns the machine-readable error code paired with statusFor.
func codeFor(err error) string {
	switch {
	case errors.Is(err, orcherr.ErrValidation), errors.Is(err, ErrBadRequest):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, orcherr.ErrConflict):
		return "conflict"
	case errors.Is(err, orcherr.ErrQueueUnavailable):
		return "queue_unavailable"
	case errors.Is(err, orcherr.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}
