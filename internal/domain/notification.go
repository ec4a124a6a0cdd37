package domain

import (
	"strings"
	"time"
)

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelApp      Channel = "APP"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelApp:
		return true
	}
	return false
}

// Priority controls broker-side ordering. High is delivered first.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Value is the numeric message priority placed on the broker message.
// Queues are declared with x-max-priority 10.
func (p Priority) Value() uint8 {
	switch p {
	case PriorityHigh:
		return 9
	case PriorityMedium:
		return 5
	case PriorityLow:
		return 2
	}
	return 0
}

// NotificationType discriminates events that need post-send behaviour
// and selects the routing key on the notifications exchange.
type NotificationType string

const (
	TypeGeneral                  NotificationType = "GENERAL"
	TypeWelcome                  NotificationType = "WELCOME"
	TypeOfferingReceipt          NotificationType = "OFFERING_RECEIPT"
	TypeMinistryFunctionReminder NotificationType = "MINISTRY_FUNCTION_REMINDER"
)

// NotificationTypes lists every type that gets its own queue.
var NotificationTypes = []NotificationType{
	TypeGeneral,
	TypeWelcome,
	TypeOfferingReceipt,
	TypeMinistryFunctionReminder,
}

func (t NotificationType) IsValid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RoutingKey is the routing key used on the notifications exchange,
// e.g. "notification.ministry_function_reminder".
func (t NotificationType) RoutingKey() string {
	return "notification." + strings.ToLower(string(t))
}

// IsReminder reports whether delivery must be followed by the
// "reminder sent" write-back.
func (t NotificationType) IsReminder() bool {
	return t == TypeMinistryFunctionReminder
}

// NotificationEvent is the envelope published on the notifications exchange.
type NotificationEvent struct {
	ID        string            `json:"id"`
	PersonID  string            `json:"personId"`
	Channel   Channel           `json:"channel"`
	Priority  Priority          `json:"priority"`
	Type      NotificationType  `json:"type"`
	CreatedAt time.Time         `json:"createdAt"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`

	// ReferenceID points at the record the post-send write-back updates
	// (the ministry function schedule for reminders).
	ReferenceID string `json:"referenceId,omitempty"`
}

// Validate reports the first missing or malformed required field.
func (e *NotificationEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.PersonID) == "":
		return &ValidationError{Field: "personId", Reason: "must not be blank"}
	case e.Channel == "":
		return &ValidationError{Field: "channel", Reason: "is required"}
	case !e.Channel.IsValid():
		return &ValidationError{Field: "channel", Reason: "must be EMAIL, WHATSAPP or APP"}
	case e.Priority == "":
		return &ValidationError{Field: "priority", Reason: "is required"}
	case !e.Priority.IsValid():
		return &ValidationError{Field: "priority", Reason: "must be HIGH, MEDIUM or LOW"}
	case e.Type != "" && !e.Type.IsValid():
		return &ValidationError{Field: "type", Reason: "unknown notification type"}
	case e.CreatedAt.IsZero():
		return &ValidationError{Field: "createdAt", Reason: "is required"}
	case strings.TrimSpace(e.Subject) == "":
		return &ValidationError{Field: "subject", Reason: "must not be blank"}
	case strings.TrimSpace(e.Template) == "":
		return &ValidationError{Field: "template", Reason: "must not be blank"}
	case e.Variables == nil:
		return &ValidationError{Field: "variables", Reason: "is required"}
	case e.Type.IsReminder() && strings.TrimSpace(e.ReferenceID) == "":
		return &ValidationError{Field: "referenceId", Reason: "is required for reminders"}
	}
	return nil
}

// EffectiveType defaults an empty discriminator to GENERAL.
func (e *NotificationEvent) EffectiveType() NotificationType {
	if e.Type == "" {
		return TypeGeneral
	}
	return e.Type
}

// NotificationDto is the resolved, channel-facing message handed to a Notificator.
type NotificationDto struct {
	To            string            `json:"to"`
	Template      string            `json:"template"`
	Subject       string            `json:"subject,omitempty"`
	Variables     map[string]string `json:"variables"`
	CreatedAt     time.Time         `json:"createdAt"`
	CorrelationID string            `json:"correlationId,omitempty"`
}

// AddressKind tells which kind of contact address was resolved.
type AddressKind string

const (
	AddressEmail  AddressKind = "EMAIL"
	AddressPhone  AddressKind = "PHONE"
	AddressDevice AddressKind = "DEVICE"
)

// AddressKindFor maps a channel to the address kind it delivers to.
func AddressKindFor(ch Channel) AddressKind {
	switch ch {
	case ChannelEmail:
		return AddressEmail
	case ChannelWhatsApp:
		return AddressPhone
	default:
		return AddressDevice
	}
}

// ContactAddress is what the people lookup returns for a person.
type ContactAddress struct {
	Address string
	Kind    AddressKind
}
