package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the resolver is misconfigured.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrUnsupportedType is returned for task types this backend cannot produce.
	ErrUnsupportedType = errors.New("task type not supported by gemini backend")

	// ErrInvalidResponse is returned when the API answers without usable images.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrContentBlocked is returned when safety filters removed every image.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrTransientFailure is returned when retries are exhausted.
	ErrTransientFailure = errors.New("transient gemini failure")
)
