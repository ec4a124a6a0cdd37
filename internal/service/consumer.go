package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/notificator"
	"github.com/notifyhub/notification-pipeline/internal/repository"
	"github.com/notifyhub/notification-pipeline/internal/tracing"
)

// Outcomes reported to the OnConsumed hook.
const (
	OutcomeSent    = "sent"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

// Consumer turns a NotificationEvent into a send on the right channel.
type Consumer struct {
	registry   *notificator.Registry
	people     repository.PersonRepository
	schedules  repository.ScheduleRepository
	logger     *zap.Logger
	onConsumed func(domain.NotificationType, string)
	now        func() time.Time
}

// NewConsumer builds a Consumer; onConsumed may be nil.
func NewConsumer(
	registry *notificator.Registry,
	people repository.PersonRepository,
	schedules repository.ScheduleRepository,
	logger *zap.Logger,
	onConsumed func(domain.NotificationType, string),
) *Consumer {
	return &Consumer{
		registry:   registry,
		people:     people,
		schedules:  schedules,
		logger:     logger,
		onConsumed: onConsumed,
		now:        time.Now,
	}
}

// Consume resolves the channel sender and the recipient address, sends,
// and runs the post-send write-back for reminders. It does not retry.
func (c *Consumer) Consume(ctx context.Context, ev domain.NotificationEvent) error {
	n, err := c.registry.Get(ev.Channel)
	if err != nil {
		return err
	}

	addr, err := c.people.GetContactAddress(ctx, ev.PersonID, ev.Channel)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	dto := domain.NotificationDto{
		To:            addr.Address,
		Template:      ev.Template,
		Variables:     ev.Variables,
		CreatedAt:     ev.CreatedAt,
		CorrelationID: ev.ID,
	}
	if ev.Channel == domain.ChannelEmail {
		dto.Subject = ev.Subject
	}

	if err := n.Send(ctx, dto); err != nil {
		return &SendError{Channel: ev.Channel, Err: err}
	}

	if ev.EffectiveType().IsReminder() {
		c.markReminderSent(ctx, ev)
	}
	return nil
}

func (c *Consumer) markReminderSent(ctx context.Context, ev domain.NotificationEvent) {
	err := c.schedules.MarkReminderSent(ctx, ev.ReferenceID, c.now())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		c.logger.Warn("reminder sent for unknown schedule",
			zap.String("event_id", ev.ID), zap.String("schedule_id", ev.ReferenceID))
	default:
		c.logger.Error("could not mark reminder as sent",
			zap.String("event_id", ev.ID), zap.String("schedule_id", ev.ReferenceID), zap.Error(err))
	}
}

// Handle is the broker.Handler for the notification queues.
//
// Unknown channels, unknown recipients, undecodable bodies and send failures
// are logged and acknowledged. Only a recipient lookup that failed for
// another reason (e.g. the database is down) is returned, so the broker
// redelivers the event.
func (c *Consumer) Handle(ctx context.Context, bm broker.Message) error {
	ctx, span := tracing.StartConsumerSpan(ctx, "notification consume", bm.Headers)
	defer span.End()

	var ev domain.NotificationEvent
	if err := json.Unmarshal(bm.Body, &ev); err != nil {
		c.logger.Error("undecodable notification event dropped",
			zap.String("message_id", bm.MessageID), zap.Error(err))
		c.report("UNKNOWN", OutcomeDropped)
		return nil
	}

	logger := c.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("person_id", ev.PersonID),
		zap.String("channel", string(ev.Channel)))
	nt := ev.EffectiveType()

	err := c.Consume(ctx, ev)
	var sendErr *SendError
	switch {
	case err == nil:
		logger.Info("notification sent", zap.String("type", string(nt)))
		c.report(nt, OutcomeSent)
	case errors.As(err, &sendErr):
		logger.Error("notification send failed", zap.Error(err))
		c.report(nt, OutcomeFailed)
	case errors.Is(err, domain.ErrUnsupportedChannel):
		logger.Error("no notificator for channel, event dropped", zap.Error(err))
		c.report(nt, OutcomeDropped)
	case errors.Is(err, domain.ErrNotFound):
		logger.Error("recipient not found, event dropped", zap.Error(err))
		c.report(nt, OutcomeDropped)
	default:
		logger.Warn("recipient lookup failed, event will be redelivered", zap.Error(err))
		return err
	}
	return nil
}

func (c *Consumer) report(nt domain.NotificationType, outcome string) {
	if c.onConsumed != nil {
		c.onConsumed(nt, outcome)
	}
}

// SendError is a failure reported by a Notificator.
type SendError struct {
	Channel domain.Channel
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send via %s: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
