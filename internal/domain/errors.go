package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrInvalidURL      = errors.New("url must be an absolute http(s) url")
	ErrInvalidPayload  = errors.New("payload must be valid JSON")
	ErrInvalidBudget   = errors.New("time budget must not be negative")
	ErrDriverStopped   = errors.New("scheduler driver is not running")
)
