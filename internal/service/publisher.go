package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// Publisher is the single entry point for getting a notification into
// the pipeline.
type Publisher struct {
	pub         broker.Publisher
	logger      *zap.Logger
	onPublished func(domain.NotificationType)
}

// NewPublisher builds a Publisher; onPublished may be nil.
func NewPublisher(pub broker.Publisher, logger *zap.Logger, onPublished func(domain.NotificationType)) *Publisher {
	return &Publisher{pub: pub, logger: logger, onPublished: onPublished}
}

// Publish validates ev and queues it on the notifications exchange with the
// routing key of its type and the numeric priority of ev.Priority.
// An invalid event returns a *domain.ValidationError and nothing is queued.
// The event id, assigned when empty, is returned.
func (p *Publisher) Publish(ctx context.Context, ev domain.NotificationEvent) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	nt := ev.EffectiveType()
	ev.Type = nt

	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	msg := broker.JSON(body, ev.ID, ev.Priority.Value(), ev.CreatedAt)
	if err := p.pub.Publish(ctx, broker.NotificationsExchange, nt.RoutingKey(), msg); err != nil {
		return "", fmt.Errorf("publish event %s: %w", ev.ID, err)
	}

	p.logger.Debug("notification event published",
		zap.String("event_id", ev.ID),
		zap.String("type", string(nt)),
		zap.String("channel", string(ev.Channel)),
		zap.String("priority", string(ev.Priority)))
	if p.onPublished != nil {
		p.onPublished(nt)
	}
	return ev.ID, nil
}
