package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/tracing"
	"github.com/notifyhub/notification-pipeline/internal/worker"
)

var errPublishNacked = errors.New("broker did not confirm publish")

type AMQPConfig struct {
	URL      string
	Prefetch int

	// ReconnectMaxWait caps the total time spent retrying one dial.
	ReconnectMaxWait time.Duration
}

// AMQPBroker publishes with publisher confirms and consumes with manual
// acknowledgements. A dropped connection is re-dialled lazily by whichever
// publisher or consumer needs it next, and the topology is redeclared on
// every new connection.
type AMQPBroker struct {
	cfg      AMQPConfig
	topology Topology
	logger   *zap.Logger
	hooks    worker.MetricHooks

	connMu sync.Mutex
	conn   *amqp.Connection

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQPBroker dials the broker and declares the topology.
func NewAMQPBroker(ctx context.Context, cfg AMQPConfig, topology Topology, logger *zap.Logger, hooks worker.MetricHooks) (*AMQPBroker, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	b := &AMQPBroker{cfg: cfg, topology: topology, logger: logger, hooks: hooks}
	if _, err := b.connection(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AMQPBroker) connection(ctx context.Context) (*amqp.Connection, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}

	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	return conn, nil
}

func (b *AMQPBroker) dial(ctx context.Context) (*amqp.Connection, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = b.cfg.ReconnectMaxWait

	var conn *amqp.Connection
	attempt := 0
	op := func() error {
		attempt++
		c, err := amqp.Dial(b.cfg.URL)
		if err != nil {
			b.logger.Warn("broker dial failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	if err := declare(conn, b.topology); err != nil {
		_ = conn.Close()
		return nil, err
	}
	b.logger.Info("connected to broker", zap.Int("attempts", attempt))
	return conn, nil
}

func declare(conn *amqp.Connection, t Topology) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	for _, ex := range t.Exchanges {
		if err := ch.ExchangeDeclare(ex.Name, ex.Kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}
	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, queueArgs(q)); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
	}
	for _, bnd := range t.Bindings {
		if err := ch.QueueBind(bnd.Queue, bnd.RoutingKey, bnd.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", bnd.Queue, bnd.Exchange, err)
		}
	}
	return nil
}

func queueArgs(q Queue) amqp.Table {
	args := amqp.Table{}
	if q.MaxPriority > 0 {
		args["x-max-priority"] = int32(q.MaxPriority)
	}
	if q.MessageTTL > 0 {
		args["x-message-ttl"] = q.MessageTTL.Milliseconds()
	}
	if q.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = q.DeadLetterExchange
		if q.DeadLetterRoutingKey != "" {
			args["x-dead-letter-routing-key"] = q.DeadLetterRoutingKey
		}
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

func (b *AMQPBroker) publishChannel(ctx context.Context) (*amqp.Channel, error) {
	if b.pubCh != nil && !b.pubCh.IsClosed() {
		return b.pubCh, nil
	}
	conn, err := b.connection(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	b.pubCh = ch
	return ch, nil
}

// Publish sends msg and waits for the broker to confirm it.
func (b *AMQPBroker) Publish(ctx context.Context, exchange, routingKey string, msg Message) error {
	ctx, span := tracing.StartProducerSpan(ctx, "publish "+exchange)
	defer span.End()

	headers := cloneHeaders(msg.Headers)
	tracing.Inject(ctx, headers)

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	ch, err := b.publishChannel(ctx)
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		Headers:       amqp.Table(headers),
		ContentType:   msg.ContentType,
		DeliveryMode:  amqp.Persistent,
		Priority:      msg.Priority,
		CorrelationId: msg.CorrelationID,
		MessageId:     msg.MessageID,
		Timestamp:     msg.Timestamp,
		Body:          msg.Body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s/%s: %w", exchange, routingKey, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", errPublishNacked, exchange, routingKey)
	}
	return nil
}

// Subscribe consumes queue with manual acks, fanning deliveries out to a
// worker pool sized by c. The subscription survives connection loss.
func (b *AMQPBroker) Subscribe(ctx context.Context, queue string, c Concurrency, h Handler) error {
	logger := b.logger.With(zap.String("queue", queue))

	for {
		err := b.consume(ctx, queue, c, h, logger)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("consumer interrupted, resubscribing", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (b *AMQPBroker) consume(ctx context.Context, queue string, c Concurrency, h Handler, logger *zap.Logger) error {
	conn, err := b.connection(ctx)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close()

	prefetch := b.cfg.Prefetch
	if c.Max > prefetch {
		prefetch = c.Max
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	poolCtx, stop := context.WithCancel(ctx)
	pool := worker.NewPool(c.Min, c.Max, c.IdleExpiry, logger, b.hooks)
	pool.Start(poolCtx)
	// in-flight handlers ack before the channel closes
	defer pool.Wait()
	defer stop()

	logger.Info("consuming", zap.Int("min", c.Min), zap.Int("max", c.Max))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			job := func(jobCtx context.Context) { b.handle(jobCtx, d, h, logger) }
			if err := pool.Submit(ctx, job); err != nil {
				_ = d.Nack(false, true)
				return nil
			}
		}
	}
}

func (b *AMQPBroker) handle(ctx context.Context, d amqp.Delivery, h Handler, logger *zap.Logger) {
	msg := Message{
		Body:          d.Body,
		ContentType:   d.ContentType,
		Priority:      d.Priority,
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		Timestamp:     d.Timestamp,
		Headers:       map[string]any(d.Headers),
	}

	// a shutdown must not abort a message half way through
	ctx = context.WithoutCancel(ctx)
	if err := h(ctx, msg); err != nil {
		logger.Warn("handler failed, requeueing",
			zap.String("correlation_id", msg.CorrelationID), zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			logger.Error("nack failed", zap.Error(nackErr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		logger.Error("ack failed", zap.String("correlation_id", msg.CorrelationID), zap.Error(err))
	}
}

// Close shuts the publish channel and the connection.
func (b *AMQPBroker) Close() error {
	b.pubMu.Lock()
	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	b.pubMu.Unlock()

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}
