package notificator

import (
	"context"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// WhatsAppPublisher hands a message to the resilient WhatsApp pipeline.
type WhatsAppPublisher interface {
	Send(ctx context.Context, phone, template string, vars map[string]string, originalEventID string) (domain.WhatsappMessage, error)
}

// WhatsAppNotificator does not call the provider itself. Rendering,
// retries and dead-lettering happen downstream on the WhatsApp queues.
type WhatsAppNotificator struct {
	facade WhatsAppPublisher
}

func NewWhatsAppNotificator(facade WhatsAppPublisher) *WhatsAppNotificator {
	return &WhatsAppNotificator{facade: facade}
}

func (n *WhatsAppNotificator) Channel() domain.Channel { return domain.ChannelWhatsApp }

func (n *WhatsAppNotificator) Send(ctx context.Context, dto domain.NotificationDto) error {
	_, err := n.facade.Send(ctx, dto.To, dto.Template, dto.Variables, dto.CorrelationID)
	return err
}
