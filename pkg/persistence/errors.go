// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrConditionGroupNotFound indicates a condition group was not found.
	ErrConditionGroupNotFound = errors.New("condition group not found")

	// ErrActionNotFound indicates a conditional action was not found.
	ErrActionNotFound = errors.New("conditional action not found")

	// ErrEscalationRuleNotFound indicates an escalation rule was not found.
	ErrEscalationRuleNotFound = errors.New("escalation rule not found")

	// ErrEscalationInstanceNotFound indicates an escalation instance was not found.
	ErrEscalationInstanceNotFound = errors.New("escalation instance not found")

	// ErrDuplicatePending indicates a pending escalation instance already
	// exists for the same (rule, step instance) pair. Callers treat this as
	// a benign concurrency conflict, not a failure.
	ErrDuplicatePending = errors.New("pending escalation instance already exists")

	// ErrReferencedByHistory indicates a configuration entity cannot be
	// removed because ledger records still reference it.
	ErrReferencedByHistory = errors.New("entity is referenced by audit history")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op       string // Operation being performed (e.g., "SaveConditionGroup")
	EntityID string // Entity id if applicable
	Err      error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.EntityID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, entityID string, err error) *StoreError {
	return &StoreError{Op: op, EntityID: entityID, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConditionGroupNotFound) ||
		errors.Is(err, ErrActionNotFound) ||
		errors.Is(err, ErrEscalationRuleNotFound) ||
		errors.Is(err, ErrEscalationInstanceNotFound)
}

// IsDuplicatePending reports whether err is the benign pending-instance
// conflict.
func IsDuplicatePending(err error) bool {
	return errors.Is(err, ErrDuplicatePending)
}
