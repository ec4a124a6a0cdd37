// Package broker publishes and consumes messages over a durable exchange and
// queue topology. AMQPBroker talks to RabbitMQ; MemoryBroker emulates the same
// topology in process, including per-queue TTL and dead-letter routing.
package broker

import (
	"context"
	"fmt"
	"time"
)

// Message is the broker-neutral envelope for one published payload.
type Message struct {
	Body          []byte
	ContentType   string
	Priority      uint8
	MessageID     string
	CorrelationID string
	Timestamp     time.Time
	Headers       map[string]any
}

// Handler processes one delivery. Returning nil acknowledges the message;
// returning an error negatively acknowledges it and requeues it.
type Handler func(ctx context.Context, msg Message) error

// Concurrency bounds the number of deliveries a subscription handles at once.
type Concurrency struct {
	Min        int
	Max        int
	IdleExpiry time.Duration
}

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error
}

type Subscriber interface {
	// Subscribe consumes queue until ctx is cancelled. In-flight deliveries
	// are allowed to finish before it returns.
	Subscribe(ctx context.Context, queue string, c Concurrency, h Handler) error
}

type Broker interface {
	Publisher
	Subscriber
	Close() error
}

const jsonContentType = "application/json"

// JSON builds a persistent JSON message.
func JSON(body []byte, correlationID string, priority uint8, now time.Time) Message {
	return Message{
		Body:          body,
		ContentType:   jsonContentType,
		Priority:      priority,
		MessageID:     correlationID,
		CorrelationID: correlationID,
		Timestamp:     now,
		Headers:       map[string]any{},
	}
}

func cloneHeaders(h map[string]any) map[string]any {
	out := make(map[string]any, len(h)+2)
	for k, v := range h {
		out[k] = v
	}
	return out
}

// UnknownExchangeError is returned when publishing to an undeclared exchange.
type UnknownExchangeError struct {
	Exchange string
}

func (e *UnknownExchangeError) Error() string {
	return fmt.Sprintf("exchange %q is not declared", e.Exchange)
}
