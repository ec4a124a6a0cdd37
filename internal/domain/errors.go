package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the pipeline.
// Callers match them with errors.Is; typed errors below wrap them.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrUnsupportedChannel = errors.New("unsupported channel")
	ErrMissingVariable    = errors.New("missing template variable")
	ErrUnknownTemplate    = errors.New("unknown template")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
)

// ValidationError names the field that made an event unpublishable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid notification event: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
