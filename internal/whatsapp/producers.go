package whatsapp

import (
	"context"
	"time"

	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// RetryProducer parks the next attempt of a message on the retry queue.
// The broker returns it to whatsapp.queue once the queue TTL expires.
type RetryProducer struct {
	pub broker.Publisher
	now func() time.Time
}

func NewRetryProducer(pub broker.Publisher) *RetryProducer {
	return &RetryProducer{pub: pub, now: time.Now}
}

// Schedule publishes msg with its retry count incremented and returns the
// message that was published.
func (p *RetryProducer) Schedule(ctx context.Context, msg domain.WhatsappMessage) (domain.WhatsappMessage, error) {
	now := p.now()
	next := msg.WithIncrementedRetry(now)
	if err := publishJSON(ctx, p.pub, broker.WhatsAppExchange, broker.WhatsAppRetryRoutingKey, next.CorrelationID, next, now); err != nil {
		return domain.WhatsappMessage{}, err
	}
	return next, nil
}

// DLQProducer publishes terminal failures to the dead-letter exchange.
type DLQProducer struct {
	pub broker.Publisher
	now func() time.Time
}

func NewDLQProducer(pub broker.Publisher) *DLQProducer {
	return &DLQProducer{pub: pub, now: time.Now}
}

func (p *DLQProducer) Send(ctx context.Context, msg domain.WhatsappMessage, reason string) (domain.DeadLetterRecord, error) {
	now := p.now()
	rec := domain.NewDeadLetterRecord(msg, reason, now)
	if err := publishJSON(ctx, p.pub, broker.WhatsAppDLX, broker.WhatsAppDLQRoutingKey, rec.CorrelationID, rec, now); err != nil {
		return domain.DeadLetterRecord{}, err
	}
	return rec, nil
}
