// Package whatsapp is the resilient delivery pipeline for the WhatsApp
// channel. Messages are published to whatsapp.queue; a failed attempt is
// parked on a TTL queue that dead-letters back to the send queue, and a
// message that cannot be delivered ends up as a record on the DLQ.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// Facade is the entry point for sending a WhatsApp message.
type Facade struct {
	pub    broker.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewFacade(pub broker.Publisher, logger *zap.Logger) *Facade {
	return &Facade{pub: pub, logger: logger, now: time.Now}
}

// Send creates a first-attempt message and queues it for delivery.
func (f *Facade) Send(ctx context.Context, phone, template string, vars map[string]string, originalEventID string) (domain.WhatsappMessage, error) {
	msg := domain.NewWhatsappMessage(phone, template, vars, originalEventID, f.now())
	if err := f.Resend(ctx, msg); err != nil {
		return domain.WhatsappMessage{}, err
	}
	return msg, nil
}

// Resend queues an existing message as is, keeping its correlation id and
// retry count.
func (f *Facade) Resend(ctx context.Context, msg domain.WhatsappMessage) error {
	if err := publishJSON(ctx, f.pub, broker.WhatsAppExchange, broker.WhatsAppRoutingKey, msg.CorrelationID, msg, f.now()); err != nil {
		return err
	}
	f.logger.Debug("whatsapp message queued",
		zap.String("correlation_id", msg.CorrelationID),
		zap.String("template", msg.Template))
	return nil
}

func publishJSON(ctx context.Context, pub broker.Publisher, exchange, key, correlationID string, v any, now time.Time) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", key, err)
	}
	if err := pub.Publish(ctx, exchange, key, broker.JSON(body, correlationID, 0, now)); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
