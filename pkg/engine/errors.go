// Package engine exposes the high-level operations of the conditional
// routing and escalation core. Both entry points (the event consumer and the
// HTTP API) go through this facade so the idempotency and concurrency guards
// are never special-cased.
package engine

import (
	"errors"
	"fmt"
)

// Business logic errors that map to client-side HTTP responses.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrGroupInactive  = errors.New("condition group is deactivated")
	ErrEmptyGroupID   = errors.New("condition group id cannot be empty")
	ErrEmptyStepID    = errors.New("step instance id cannot be empty")
)

// EngineError wraps engine-level errors with additional context.
type EngineError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *EngineError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyGroupID) ||
		errors.Is(err, ErrEmptyStepID)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrGroupInactive)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *EngineError {
	return &EngineError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
