package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/resilience"
)

// maxErrorBody caps how much of an error response is kept in the error text.
const maxErrorBody = 512

// SendRequest is the JSON body posted to the WhatsApp provider.
type SendRequest struct {
	To            string            `json:"to"`
	Template      string            `json:"template"`
	Body          string            `json:"body"`
	Variables     map[string]string `json:"variables,omitempty"`
	CorrelationID string            `json:"correlationId"`
}

// WhatsAppClient POSTs messages to <baseURL>/messages.
// The base URL is injected from config so tests can point to a local server.
type WhatsAppClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewWhatsAppClient(baseURL, token string, timeout time.Duration) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Send delivers body to phone. Any 2xx is success. Transport failures and
// 408/429/5xx responses are Retryable; other 4xx responses are NonRetryable.
func (c *WhatsAppClient) Send(ctx context.Context, phone, body string, msg domain.WhatsappMessage) error {
	payload, err := json.Marshal(SendRequest{
		To:            phone,
		Template:      msg.Template,
		Body:          body,
		Variables:     msg.Variables,
		CorrelationID: msg.CorrelationID,
	})
	if err != nil {
		return resilience.NewNonRetryable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return resilience.NewNonRetryable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", msg.CorrelationID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resilience.NewRetryable(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return resilience.FromHTTPStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
}

var _ WhatsAppSender = (*WhatsAppClient)(nil)
