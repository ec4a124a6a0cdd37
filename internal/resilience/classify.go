// Package resilience classifies delivery failures into retryable and
// non-retryable ones. The WhatsApp pipeline routes on the result: retryable
// failures go to the retry queue, non-retryable ones straight to the DLQ.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// Class is the outcome of classifying a failure.
type Class int

const (
	Retryable Class = iota
	NonRetryable
)

func (c Class) String() string {
	if c == NonRetryable {
		return "non-retryable"
	}
	return "retryable"
}

// ProviderError is a provider failure already translated into the taxonomy.
type ProviderError struct {
	Class      Class
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Class, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s provider error: %v", e.Class, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewRetryable marks err as transient.
func NewRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Class: Retryable, Cause: err}
}

// NewNonRetryable marks err as permanent.
func NewNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Class: NonRetryable, Cause: err}
}

// FromHTTPStatus translates a non-2xx provider response.
// 408, 429 and 5xx are transient; every other 4xx is permanent.
func FromHTTPStatus(code int, body string) error {
	cause := fmt.Errorf("provider responded %d: %s", code, body)
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return &ProviderError{Class: Retryable, StatusCode: code, Cause: cause}
	case code >= 400:
		return &ProviderError{Class: NonRetryable, StatusCode: code, Cause: cause}
	}
	return &ProviderError{Class: Retryable, StatusCode: code, Cause: cause}
}

// Classify maps any failure to a Class. Errors that are not recognised
// are Retryable; use IsUnexpected to tell those apart for logging.
func Classify(err error) Class {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	switch {
	case errors.Is(err, domain.ErrMissingVariable),
		errors.Is(err, domain.ErrUnknownTemplate),
		errors.Is(err, domain.ErrValidation):
		return NonRetryable
	}
	return Retryable
}

// IsUnexpected reports whether err fell through to the fail-safe branch
// of Classify rather than being explicitly recognised.
func IsUnexpected(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, domain.ErrMissingVariable) ||
		errors.Is(err, domain.ErrUnknownTemplate) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrCircuitOpen) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return true
}
