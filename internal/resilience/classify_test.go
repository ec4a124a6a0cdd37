package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/render"
	"github.com/notifyhub/notification-pipeline/internal/resilience"
)

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want resilience.Class
	}{
		{http.StatusBadRequest, resilience.NonRetryable},
		{http.StatusUnauthorized, resilience.NonRetryable},
		{http.StatusForbidden, resilience.NonRetryable},
		{http.StatusNotFound, resilience.NonRetryable},
		{http.StatusRequestTimeout, resilience.Retryable},
		{http.StatusTooManyRequests, resilience.Retryable},
		{http.StatusInternalServerError, resilience.Retryable},
		{http.StatusBadGateway, resilience.Retryable},
		{http.StatusServiceUnavailable, resilience.Retryable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			err := resilience.FromHTTPStatus(tt.code, "body")
			assert.Equal(t, tt.want, resilience.Classify(err))

			var pe *resilience.ProviderError
			assert.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.code, pe.StatusCode)
		})
	}
}

func TestClassify(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", resilience.NewNonRetryable(errors.New("bad payload")))

	tests := []struct {
		name       string
		err        error
		want       resilience.Class
		unexpected bool
	}{
		{"wrapped non-retryable", wrapped, resilience.NonRetryable, false},
		{"explicit retryable", resilience.NewRetryable(errors.New("timeout")), resilience.Retryable, false},
		{"circuit open", fmt.Errorf("x: %w", domain.ErrCircuitOpen), resilience.Retryable, false},
		{"deadline", context.DeadlineExceeded, resilience.Retryable, false},
		{"cancelled", fmt.Errorf("send: %w", context.Canceled), resilience.Retryable, false},
		{"missing variable", &render.MissingVariableError{Key: "name"}, resilience.NonRetryable, false},
		{"unknown template", domain.ErrUnknownTemplate, resilience.NonRetryable, false},
		{"unknown error is retryable", errors.New("boom"), resilience.Retryable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.Classify(tt.err))
			assert.Equal(t, tt.unexpected, resilience.IsUnexpected(tt.err))
		})
	}
}

func TestNewRetryable_Nil(t *testing.T) {
	assert.NoError(t, resilience.NewRetryable(nil))
	assert.NoError(t, resilience.NewNonRetryable(nil))
}
