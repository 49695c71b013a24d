package resultstore

import "errors"

// Sentinel kinds for result store errors.
var (
	ErrTaskNotFound = errors.New("task has no samples")
)
