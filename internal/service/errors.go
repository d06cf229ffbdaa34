package service

import "errors"

// ErrNotFound indicates the requested resource was not found.
var ErrNotFound = errors.New("not found")

// ValidationError represents a bad-request condition (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError represents a conflict condition (HTTP 409).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// PermissionDeniedError means the caller lacks manager, owner or application
// rights for the requested mutation (HTTP 403).
type PermissionDeniedError struct {
	Message string
}

func (e *PermissionDeniedError) Error() string { return e.Message }

// InvalidStateError means a transition was attempted from the wrong state,
// e.g. deciding a permission that is no longer pending (HTTP 409).
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }
