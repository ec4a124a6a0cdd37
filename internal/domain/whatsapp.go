package domain

import (
	"time"

	"github.com/google/uuid"
)

// WhatsappMessage is the unit of work on the WhatsApp queues.
// It is treated as an immutable value: the next attempt is derived with
// WithIncrementedRetry, never by mutating a shared instance.
type WhatsappMessage struct {
	PhoneNumber     string            `json:"phoneNumber"`
	Template        string            `json:"template"`
	Variables       map[string]string `json:"variables"`
	RetryCount      int               `json:"retryCount"`
	CorrelationID   string            `json:"correlationId"`
	OriginalEventID string            `json:"originalEventId,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	LastRetryAt     *time.Time        `json:"lastRetryAt,omitempty"`
}

// NewWhatsappMessage creates a first-attempt message with a fresh correlation id.
func NewWhatsappMessage(phone, template string, vars map[string]string, originalEventID string, now time.Time) WhatsappMessage {
	return WhatsappMessage{
		PhoneNumber:     phone,
		Template:        template,
		Variables:       copyVars(vars),
		CorrelationID:   uuid.New().String(),
		OriginalEventID: originalEventID,
		CreatedAt:       now.UTC(),
	}
}

// WithIncrementedRetry returns the next attempt of m. The correlation id
// is carried over unchanged.
func (m WhatsappMessage) WithIncrementedRetry(now time.Time) WhatsappMessage {
	next := m
	next.Variables = copyVars(m.Variables)
	next.RetryCount = m.RetryCount + 1
	at := now.UTC()
	next.LastRetryAt = &at
	return next
}

// Age is the time elapsed since the logical message was first created.
func (m WhatsappMessage) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// DeadLetterRecord is the terminal, write-once record placed on the DLQ.
type DeadLetterRecord struct {
	OriginalMessage WhatsappMessage `json:"originalMessage"`
	FailureReason   string          `json:"failureReason"`
	FailureTime     time.Time       `json:"failureTime"`
	CorrelationID   string          `json:"correlationId"`
}

// NewDeadLetterRecord wraps msg with the reason it could not be delivered.
func NewDeadLetterRecord(msg WhatsappMessage, reason string, now time.Time) DeadLetterRecord {
	return DeadLetterRecord{
		OriginalMessage: msg,
		FailureReason:   reason,
		FailureTime:     now.UTC(),
		CorrelationID:   msg.CorrelationID,
	}
}

func copyVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
