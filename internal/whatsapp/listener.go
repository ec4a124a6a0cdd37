package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/ledger"
	"github.com/notifyhub/notification-pipeline/internal/provider"
	"github.com/notifyhub/notification-pipeline/internal/ratelimiter"
	"github.com/notifyhub/notification-pipeline/internal/render"
	"github.com/notifyhub/notification-pipeline/internal/resilience"
	"github.com/notifyhub/notification-pipeline/internal/resilience/circuitbreaker"
	"github.com/notifyhub/notification-pipeline/internal/tracing"
)

// Dead-letter kinds reported to Hooks.OnDeadLetter.
const (
	KindNonRetryable = "non_retryable"
	KindMaxRetries   = "max_retries"
	KindExpired      = "expired"
)

// Hooks carries optional metric callbacks injected by main.
type Hooks struct {
	OnDelivered  func(latency time.Duration)
	OnRetry      func()
	OnDeadLetter func(kind string)
	OnDuplicate  func()
}

type ListenerConfig struct {
	// MaxRetryCount is the number of retries before a retryable failure is
	// dead-lettered.
	MaxRetryCount int

	// MaxMessageAge dead-letters a failing message older than this,
	// whatever its retry count. Zero disables the check.
	MaxMessageAge time.Duration
}

// Listener consumes whatsapp.queue and drives every message to delivery,
// a retry, or the DLQ.
type Listener struct {
	cfg     ListenerConfig
	catalog *render.Catalog
	sender  provider.WhatsAppSender
	breaker *circuitbreaker.Breaker
	limiter *ratelimiter.ChannelLimiters
	ledger  ledger.Ledger
	retry   *RetryProducer
	dlq     *DLQProducer
	logger  *zap.Logger
	hooks   Hooks
	now     func() time.Time
}

func NewListener(
	cfg ListenerConfig,
	catalog *render.Catalog,
	sender provider.WhatsAppSender,
	breaker *circuitbreaker.Breaker,
	limiter *ratelimiter.ChannelLimiters,
	led ledger.Ledger,
	retry *RetryProducer,
	dlq *DLQProducer,
	logger *zap.Logger,
	hooks Hooks,
) *Listener {
	return &Listener{
		cfg:     cfg,
		catalog: catalog,
		sender:  sender,
		breaker: breaker,
		limiter: limiter,
		ledger:  led,
		retry:   retry,
		dlq:     dlq,
		logger:  logger,
		hooks:   hooks,
		now:     time.Now,
	}
}

// Handle is the broker.Handler for whatsapp.queue. It returns an error only
// when the outcome could not be published, so the broker redelivers.
func (l *Listener) Handle(ctx context.Context, bm broker.Message) (err error) {
	ctx, span := tracing.StartConsumerSpan(ctx, "whatsapp deliver", bm.Headers)
	defer span.End()

	var msg domain.WhatsappMessage
	if err := json.Unmarshal(bm.Body, &msg); err != nil {
		l.logger.Error("undecodable whatsapp message dropped",
			zap.String("correlation_id", bm.CorrelationID), zap.Error(err))
		return nil
	}

	logger := l.logger.With(
		zap.String("correlation_id", msg.CorrelationID),
		zap.Int("retry_count", msg.RetryCount))

	defer func() {
		if r := recover(); r != nil {
			err = l.onFailure(ctx, msg, fmt.Errorf("panic during delivery: %v", r), logger)
		}
	}()

	if l.alreadyDelivered(ctx, msg, logger) {
		return nil
	}

	start := l.now()
	if sendErr := l.deliver(ctx, msg); sendErr != nil {
		return l.onFailure(ctx, msg, sendErr, logger)
	}

	if err := l.ledger.MarkDelivered(ctx, msg.CorrelationID); err != nil {
		logger.Warn("could not record delivery in ledger", zap.Error(err))
	}
	if l.hooks.OnDelivered != nil {
		l.hooks.OnDelivered(l.now().Sub(start))
	}
	logger.Info("whatsapp message delivered", zap.String("template", msg.Template))
	return nil
}

// alreadyDelivered consults the ledger. A ledger failure never blocks delivery.
func (l *Listener) alreadyDelivered(ctx context.Context, msg domain.WhatsappMessage, logger *zap.Logger) bool {
	delivered, err := l.ledger.Delivered(ctx, msg.CorrelationID)
	if err != nil {
		logger.Warn("delivery ledger unavailable, sending anyway", zap.Error(err))
		return false
	}
	if delivered {
		logger.Info("duplicate delivery skipped")
		if l.hooks.OnDuplicate != nil {
			l.hooks.OnDuplicate()
		}
	}
	return delivered
}

func (l *Listener) deliver(ctx context.Context, msg domain.WhatsappMessage) error {
	body, err := l.catalog.Render(msg.Template, msg.Variables)
	if err != nil {
		return err
	}
	if err := l.limiter.Wait(ctx, domain.ChannelWhatsApp); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.sender.Send(ctx, msg.PhoneNumber, body, msg)
	})
}

func (l *Listener) onFailure(ctx context.Context, msg domain.WhatsappMessage, cause error, logger *zap.Logger) error {
	class := resilience.Classify(cause)
	if resilience.IsUnexpected(cause) {
		logger.Warn("unexpected delivery failure, treating as retryable", zap.Error(cause))
	}

	age := msg.Age(l.now())
	var reason, kind string
	switch {
	case class == resilience.NonRetryable:
		kind = KindNonRetryable
		reason = fmt.Sprintf("Non-retryable error: %v", cause)
	case l.cfg.MaxMessageAge > 0 && age > l.cfg.MaxMessageAge:
		kind = KindExpired
		reason = fmt.Sprintf("Message expired after %s: %v", age.Truncate(time.Second), cause)
	case msg.RetryCount >= l.cfg.MaxRetryCount:
		kind = KindMaxRetries
		reason = fmt.Sprintf("Max retries exceeded (%d): %v", msg.RetryCount, cause)
	default:
		next, err := l.retry.Schedule(ctx, msg)
		if err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		logger.Warn("whatsapp delivery failed, retry scheduled",
			zap.Int("next_retry_count", next.RetryCount), zap.Error(cause))
		if l.hooks.OnRetry != nil {
			l.hooks.OnRetry()
		}
		return nil
	}

	rec, err := l.dlq.Send(ctx, msg, reason)
	if err != nil {
		return fmt.Errorf("dead-letter: %w", err)
	}
	logger.Error("whatsapp message dead-lettered",
		zap.String("reason", rec.FailureReason), zap.Time("failure_time", rec.FailureTime))
	if l.hooks.OnDeadLetter != nil {
		l.hooks.OnDeadLetter(kind)
	}
	return nil
}
