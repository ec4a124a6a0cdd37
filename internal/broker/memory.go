package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/queue"
	"github.com/notifyhub/notification-pipeline/internal/tracing"
	"github.com/notifyhub/notification-pipeline/internal/worker"
)

// Headers set on messages dead-lettered by a queue TTL.
const (
	HeaderDeathReason = "x-death-reason"
	HeaderDeathQueue  = "x-first-death-queue"
)

var errClosed = errors.New("memory broker is closed")

type memQueue struct {
	def    Queue
	items  *queue.PriorityQueue[Message]
	timers map[*time.Timer]struct{}
}

// MemoryBroker runs the topology in process. Queues with a message TTL are
// parking queues: every message waits out the TTL and is then routed to the
// queue's dead-letter exchange. Such queues cannot be consumed directly.
type MemoryBroker struct {
	logger *zap.Logger
	hooks  worker.MetricHooks

	mu        sync.Mutex
	exchanges map[string]map[string][]string // exchange -> routing key -> queues
	queues    map[string]*memQueue
	closed    bool
}

func NewMemoryBroker(topology Topology, logger *zap.Logger, hooks worker.MetricHooks) *MemoryBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &MemoryBroker{
		logger:    logger,
		hooks:     hooks,
		exchanges: make(map[string]map[string][]string),
		queues:    make(map[string]*memQueue),
	}
	for _, ex := range topology.Exchanges {
		b.exchanges[ex.Name] = make(map[string][]string)
	}
	for _, q := range topology.Queues {
		b.queues[q.Name] = &memQueue{
			def:    q,
			items:  queue.New[Message](),
			timers: make(map[*time.Timer]struct{}),
		}
	}
	for _, bnd := range topology.Bindings {
		keys, ok := b.exchanges[bnd.Exchange]
		if !ok {
			keys = make(map[string][]string)
			b.exchanges[bnd.Exchange] = keys
		}
		keys[bnd.RoutingKey] = append(keys[bnd.RoutingKey], bnd.Queue)
	}
	return b
}

// Publish routes msg to every queue bound to exchange with routingKey.
// A message matching no binding is dropped, as RabbitMQ does.
func (b *MemoryBroker) Publish(ctx context.Context, exchange, routingKey string, msg Message) error {
	ctx, span := tracing.StartProducerSpan(ctx, "publish "+exchange)
	defer span.End()

	msg.Headers = cloneHeaders(msg.Headers)
	tracing.Inject(ctx, msg.Headers)
	return b.route(exchange, routingKey, msg)
}

func (b *MemoryBroker) route(exchange, routingKey string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errClosed
	}
	keys, ok := b.exchanges[exchange]
	if !ok {
		return &UnknownExchangeError{Exchange: exchange}
	}

	targets := keys[routingKey]
	if len(targets) == 0 {
		b.logger.Debug("unroutable message dropped",
			zap.String("exchange", exchange), zap.String("routing_key", routingKey))
		return nil
	}

	for _, name := range targets {
		q := b.queues[name]
		if q.def.MessageTTL > 0 {
			b.parkLocked(q, routingKey, msg)
			continue
		}
		if err := q.items.Enqueue(msg, msg.Priority); err != nil {
			return fmt.Errorf("enqueue on %s: %w", name, err)
		}
	}
	return nil
}

func (b *MemoryBroker) parkLocked(q *memQueue, routingKey string, msg Message) {
	dlx, dlrk := q.def.DeadLetterExchange, q.def.DeadLetterRoutingKey
	if dlrk == "" {
		dlrk = routingKey
	}

	var timer *time.Timer
	timer = time.AfterFunc(q.def.MessageTTL, func() {
		b.mu.Lock()
		delete(q.timers, timer)
		b.mu.Unlock()

		if dlx == "" {
			return
		}
		expired := msg
		expired.Headers = cloneHeaders(msg.Headers)
		expired.Headers[HeaderDeathReason] = "expired"
		expired.Headers[HeaderDeathQueue] = q.def.Name
		if err := b.route(dlx, dlrk, expired); err != nil && !errors.Is(err, errClosed) {
			b.logger.Error("dead-letter routing failed",
				zap.String("queue", q.def.Name), zap.String("dlx", dlx), zap.Error(err))
		}
	})
	q.timers[timer] = struct{}{}
}

// Subscribe drains queue into a worker pool until ctx is cancelled. A handler
// error puts the message back on the queue.
func (b *MemoryBroker) Subscribe(ctx context.Context, name string, c Concurrency, h Handler) error {
	b.mu.Lock()
	q, ok := b.queues[name]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("queue %q is not declared", name)
	}
	if q.def.MessageTTL > 0 {
		return fmt.Errorf("queue %q has a message TTL and cannot be consumed", name)
	}

	logger := b.logger.With(zap.String("queue", name))
	pool := worker.NewPool(c.Min, c.Max, c.IdleExpiry, logger, b.hooks)
	pool.Start(ctx)
	defer pool.Wait()

	for {
		msg, ok := q.items.Dequeue(ctx)
		if !ok {
			return nil
		}
		job := func(jobCtx context.Context) {
			b.handle(context.WithoutCancel(jobCtx), q, msg, h, logger)
		}
		if err := pool.Submit(ctx, job); err != nil {
			b.requeue(q, msg, logger)
			return nil
		}
	}
}

func (b *MemoryBroker) handle(ctx context.Context, q *memQueue, msg Message, h Handler, logger *zap.Logger) {
	if err := h(ctx, msg); err != nil {
		logger.Warn("handler failed, requeueing",
			zap.String("correlation_id", msg.CorrelationID), zap.Error(err))
		b.requeue(q, msg, logger)
	}
}

func (b *MemoryBroker) requeue(q *memQueue, msg Message, logger *zap.Logger) {
	if err := q.items.Enqueue(msg, msg.Priority); err != nil {
		logger.Error("requeue failed, message lost",
			zap.String("correlation_id", msg.CorrelationID), zap.Error(err))
	}
}

// Depth returns the number of messages waiting on a queue, parked ones included.
func (b *MemoryBroker) Depth(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return 0
	}
	return q.items.Len() + len(q.timers)
}

// Depths reports Depth for every declared queue.
func (b *MemoryBroker) Depths() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]int, len(b.queues))
	for name, q := range b.queues {
		out[name] = q.items.Len() + len(q.timers)
	}
	return out
}

// Drain removes and returns every message waiting on a queue.
func (b *MemoryBroker) Drain(name string) []Message {
	b.mu.Lock()
	q, ok := b.queues[name]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	var out []Message
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for q.items.Len() > 0 {
		msg, ok := q.items.Dequeue(ctx)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Close stops pending TTL timers. Parked messages are discarded.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, q := range b.queues {
		for t := range q.timers {
			t.Stop()
			delete(q.timers, t)
		}
	}
	return nil
}
