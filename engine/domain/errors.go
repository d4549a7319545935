package domain

import (
	"errors"
	"fmt"
)

// Errors surfaced to callers. Everything else degrades inside the pipeline.
var (
	// ErrUnknownSubject means the requested route or feature slug is not in the catalog.
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrDimensionMismatch is a fatal configuration error between the
	// embedding provider and the vector index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Sentinels wrapped by ValidationError.
var (
	ErrRequired      = errors.New("required")
	ErrTooShort      = errors.New("too short")
	ErrTooLong       = errors.New("too long")
	ErrInvalidEnum   = errors.New("not an allowed value")
	ErrInvalidFormat = errors.New("invalid format")
	ErrOutOfRange    = errors.New("out of range")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// UnknownSubjectError names the slug that was not found.
func UnknownSubjectError(slug string) error {
	return fmt.Errorf("%w: %q", ErrUnknownSubject, slug)
}
