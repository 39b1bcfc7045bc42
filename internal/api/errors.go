package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/genqueue/internal/task"
)

// MapErrorToStatusCode maps task errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, task.ErrRetryLimitExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns the message shown to clients for err. Task
// errors describe the request and are passed through; anything else is
// replaced by a generic message.
func GetSafeErrorMessage(err error) string {
	if err == nil || MapErrorToStatusCode(err) == http.StatusInternalServerError {
		return "An unexpected error occurred"
	}
	return err.Error()
}
