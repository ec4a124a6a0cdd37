package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

func validEvent() domain.NotificationEvent {
	return domain.NotificationEvent{
		PersonID:  "P1",
		Channel:   domain.ChannelWhatsApp,
		Priority:  domain.PriorityHigh,
		Type:      domain.TypeWelcome,
		CreatedAt: time.Now(),
		Subject:   "Welcome",
		Template:  "welcome",
		Variables: map[string]string{"name": "Ana"},
	}
}

func TestNotificationEvent_Validate(t *testing.T) {
	t.Run("valid event passes", func(t *testing.T) {
		e := validEvent()
		if err := e.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty variables map is allowed", func(t *testing.T) {
		e := validEvent()
		e.Variables = map[string]string{}
		if err := e.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*domain.NotificationEvent)
		field  string
	}{
		{"blank person", func(e *domain.NotificationEvent) { e.PersonID = "  " }, "personId"},
		{"missing channel", func(e *domain.NotificationEvent) { e.Channel = "" }, "channel"},
		{"unknown channel", func(e *domain.NotificationEvent) { e.Channel = "FAX" }, "channel"},
		{"missing priority", func(e *domain.NotificationEvent) { e.Priority = "" }, "priority"},
		{"unknown priority", func(e *domain.NotificationEvent) { e.Priority = "URGENT" }, "priority"},
		{"unknown type", func(e *domain.NotificationEvent) { e.Type = "BIRTHDAY" }, "type"},
		{"zero createdAt", func(e *domain.NotificationEvent) { e.CreatedAt = time.Time{} }, "createdAt"},
		{"blank subject", func(e *domain.NotificationEvent) { e.Subject = "" }, "subject"},
		{"blank template", func(e *domain.NotificationEvent) { e.Template = "\t" }, "template"},
		{"nil variables", func(e *domain.NotificationEvent) { e.Variables = nil }, "variables"},
		{"reminder without reference", func(e *domain.NotificationEvent) {
			e.Type = domain.TypeMinistryFunctionReminder
			e.ReferenceID = ""
		}, "referenceId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(&e)
			err := e.Validate()
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestPriority_Value(t *testing.T) {
	cases := map[domain.Priority]uint8{
		domain.PriorityHigh:   9,
		domain.PriorityMedium: 5,
		domain.PriorityLow:    2,
	}
	for p, want := range cases {
		if got := p.Value(); got != want {
			t.Fatalf("priority %s: expected %d, got %d", p, want, got)
		}
	}
}

func TestNotificationType_RoutingKey(t *testing.T) {
	got := domain.TypeMinistryFunctionReminder.RoutingKey()
	if got != "notification.ministry_function_reminder" {
		t.Fatalf("unexpected routing key %q", got)
	}
	e := validEvent()
	e.Type = ""
	if e.EffectiveType() != domain.TypeGeneral {
		t.Fatalf("expected empty type to default to GENERAL")
	}
}

func TestWhatsappMessage_WithIncrementedRetry(t *testing.T) {
	now := time.Now()
	m := domain.NewWhatsappMessage("+5511999990000", "welcome", map[string]string{"name": "Ana"}, "evt-1", now)
	if m.CorrelationID == "" {
		t.Fatal("expected a correlation id")
	}
	if m.RetryCount != 0 || m.LastRetryAt != nil {
		t.Fatalf("unexpected initial state: %+v", m)
	}

	later := now.Add(30 * time.Second)
	next := m.WithIncrementedRetry(later)

	if next.RetryCount != 1 {
		t.Fatalf("expected retryCount=1, got %d", next.RetryCount)
	}
	if next.CorrelationID != m.CorrelationID {
		t.Fatal("correlation id must survive a retry")
	}
	if next.LastRetryAt == nil || !next.LastRetryAt.Equal(later.UTC()) {
		t.Fatalf("expected lastRetryAt=%v, got %v", later, next.LastRetryAt)
	}
	if m.RetryCount != 0 {
		t.Fatal("original message must not be mutated")
	}

	next.Variables["name"] = "Bia"
	if m.Variables["name"] != "Ana" {
		t.Fatal("variables must not be shared between attempts")
	}
}

func TestNewDeadLetterRecord(t *testing.T) {
	m := domain.NewWhatsappMessage("+5511999990000", "welcome", nil, "", time.Now())
	rec := domain.NewDeadLetterRecord(m, "Non-retryable error: 401", time.Now())
	if rec.CorrelationID != m.CorrelationID {
		t.Fatal("record must carry the message correlation id")
	}
	if rec.OriginalMessage.PhoneNumber != m.PhoneNumber {
		t.Fatal("record must embed the original message")
	}
}
