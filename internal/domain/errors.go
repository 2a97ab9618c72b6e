package domain

import (
	"errors"
	"fmt"
)

// Error categories surfaced by the scoring core. None of them is fatal;
// callers branch on them with errors.Is / errors.As.
var (
	ErrValidation     = errors.New("validation failed")
	ErrDivisionByZero = errors.New("division by zero")
	ErrDataGap        = errors.New("insufficient data")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
