package utils

import (
	"errors"
	"fmt"
	"strings"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorConflict signals a duplicate-key or concurrent-write collision.
// Callers may safely retry the request; a retried sale re-evaluates
// inventory and credit from scratch and cannot double-deduct.
var ErrorConflict = errors.New("conflicting concurrent write, retry the request")

// ErrorDependencyUnavailable signals that a backing store could not be
// reached. Fatal to the current request; retry policy is the caller's.
var ErrorDependencyUnavailable = errors.New("dependency unavailable")

// ValidationError carries per-field failures for a malformed request.
// Rejected before any ledger access.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, reason))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
