package task

import "errors"

// Common task errors
var (
	// ErrInvalidSpec indicates a malformed creation request
	ErrInvalidSpec = errors.New("invalid task spec")

	// ErrNotFound indicates that no task has the given id
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates an operation the task's current status does not allow
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrRetryLimitExceeded indicates the task has used all of its retries
	ErrRetryLimitExceeded = errors.New("task retry limit exceeded")
)

// defaultFailureReason is recorded when a failure carries no message
const defaultFailureReason = "generation failed"
