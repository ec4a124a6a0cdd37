package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/provider"
	"github.com/notifyhub/notification-pipeline/internal/resilience"
)

func message() domain.WhatsappMessage {
	return domain.NewWhatsappMessage("+5511999990000", "welcome", map[string]string{"name": "Ana"}, "evt-1", time.Now())
}

func TestWhatsAppClient_Success(t *testing.T) {
	msg := message()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, msg.CorrelationID, r.Header.Get("X-Correlation-ID"))

		var req provider.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+5511999990000", req.To)
		assert.Equal(t, "Hello Ana", req.Body)
		assert.Equal(t, "welcome", req.Template)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"messageId":"wamid.1"}`))
	}))
	defer srv.Close()

	c := provider.NewWhatsAppClient(srv.URL+"/v1/", "secret", time.Second)
	require.NoError(t, c.Send(context.Background(), msg.PhoneNumber, "Hello Ana", msg))
}

func TestWhatsAppClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   resilience.Class
	}{
		{http.StatusServiceUnavailable, resilience.Retryable},
		{http.StatusInternalServerError, resilience.Retryable},
		{http.StatusTooManyRequests, resilience.Retryable},
		{http.StatusRequestTimeout, resilience.Retryable},
		{http.StatusUnauthorized, resilience.NonRetryable},
		{http.StatusBadRequest, resilience.NonRetryable},
		{http.StatusNotFound, resilience.NonRetryable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := provider.NewWhatsAppClient(srv.URL, "", time.Second)
			err := c.Send(context.Background(), "+1", "x", message())
			require.Error(t, err)
			assert.Equal(t, tt.want, resilience.Classify(err))

			var pe *resilience.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestWhatsAppClient_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := provider.NewWhatsAppClient(srv.URL, "", 20*time.Millisecond)
	err := c.Send(context.Background(), "+1", "x", message())
	require.Error(t, err)
	assert.Equal(t, resilience.Retryable, resilience.Classify(err))
	assert.False(t, resilience.IsUnexpected(err))
}

func TestWhatsAppClient_UnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := provider.NewWhatsAppClient(url, "", time.Second)
	err := c.Send(context.Background(), "+1", "x", message())
	require.Error(t, err)
	assert.Equal(t, resilience.Retryable, resilience.Classify(err))
}
