package queue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by Enqueue when the target tier has no room left.
var ErrQueueFull = errors.New("queue is full")

// Tier boundaries on the 0-10 message priority scale.
const (
	HighPriorityFloor   uint8 = 7
	NormalPriorityFloor uint8 = 4
)

// Capacities sets the buffer size of each tier.
type Capacities struct {
	High   int
	Normal int
	Low    int
}

// DefaultCapacities reflect expected traffic ratios:
//
//	High:   1 000  must never accumulate; small buffer applies back-pressure quickly
//	Normal: 5 000  bulk of traffic
//	Low:    2 000  retries, reminders and unprioritised messages
var DefaultCapacities = Capacities{High: 1000, Normal: 5000, Low: 2000}

// PriorityQueue dispatches items to one of three buffered channels based on
// their numeric priority. Consumers dequeue via the double-select pattern,
// which serves high-priority items before normal or low ones while still
// letting normal and low compete fairly when high is empty.
type PriorityQueue[T any] struct {
	high   chan T
	normal chan T
	low    chan T
}

func New[T any]() *PriorityQueue[T] {
	return NewWithCapacities[T](DefaultCapacities)
}

func NewWithCapacities[T any](c Capacities) *PriorityQueue[T] {
	return &PriorityQueue[T]{
		high:   make(chan T, c.High),
		normal: make(chan T, c.Normal),
		low:    make(chan T, c.Low),
	}
}

// Enqueue places an item on the tier matching priority.
// It never blocks: a full tier yields ErrQueueFull.
func (q *PriorityQueue[T]) Enqueue(item T, priority uint8) error {
	select {
	case q.tier(priority) <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *PriorityQueue[T]) tier(priority uint8) chan T {
	switch {
	case priority >= HighPriorityFloor:
		return q.high
	case priority >= NormalPriorityFloor:
		return q.normal
	default:
		return q.low
	}
}

// Dequeue blocks until an item is available or ctx is cancelled.
//
//  1. A non-blocking select checks the high channel first. If an item is
//     waiting there, it is returned immediately regardless of normal/low.
//  2. Only when high is empty does the goroutine enter a fair blocking select
//     across all three channels plus the done signal.
//
// Returns the zero value and false when ctx is cancelled.
func (q *PriorityQueue[T]) Dequeue(ctx context.Context) (T, bool) {
	select {
	case item := <-q.high:
		return item, true
	default:
	}

	select {
	case item := <-q.high:
		return item, true
	case item := <-q.normal:
		return item, true
	case item := <-q.low:
		return item, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Depths returns the number of items waiting in each tier.
func (q *PriorityQueue[T]) Depths() (high, normal, low int) {
	return len(q.high), len(q.normal), len(q.low)
}

// Len returns the total number of waiting items.
func (q *PriorityQueue[T]) Len() int {
	h, n, l := q.Depths()
	return h + n + l
}
