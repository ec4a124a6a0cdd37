package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Submit once the pool's context is done.
var ErrPoolStopped = errors.New("worker pool stopped")

// Job is one unit of work. ctx is cancelled when the pool shuts down.
type Job func(ctx context.Context)

// MetricHooks carries optional callbacks injected by main.
type MetricHooks struct {
	OnWorkerStart func()
	OnWorkerStop  func()
}

// Pool runs between Min and Max workers draining a single hand-off channel.
//
// Min core workers live for the life of the pool. When every worker is busy
// and a job arrives, Submit starts an extra worker up to Max. Extra workers
// exit after sitting idle for IdleExpiry. Once Max workers are busy Submit
// blocks, which is how back-pressure reaches the broker.
type Pool struct {
	min, max   int
	idleExpiry time.Duration
	work       chan Job
	logger     *zap.Logger
	hooks      MetricHooks

	mu     sync.Mutex
	active int
	ctx    context.Context
	wg     sync.WaitGroup
}

// NewPool clamps min to at least 1 and max to at least min.
func NewPool(min, max int, idleExpiry time.Duration, logger *zap.Logger, hooks MetricHooks) *Pool {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if idleExpiry <= 0 {
		idleExpiry = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		min:        min,
		max:        max,
		idleExpiry: idleExpiry,
		work:       make(chan Job),
		logger:     logger,
		hooks:      hooks,
	}
}

// Start launches the core workers. Cancelling ctx stops the pool; call Wait
// afterwards so in-flight jobs finish.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx = ctx
	for i := 0; i < p.min; i++ {
		p.spawnLocked(false)
	}
}

// Submit hands job to an idle worker, growing the pool when none is free.
// It blocks while the pool is at Max and every worker is busy.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case p.work <- job:
		return nil
	default:
	}

	p.grow()

	select {
	case p.work <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done():
		return ErrPoolStopped
	}
}

func (p *Pool) done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	return p.ctx.Done()
}

func (p *Pool) grow() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil || p.ctx.Err() != nil || p.active >= p.max {
		return
	}
	p.spawnLocked(true)
	p.logger.Debug("worker pool scaled up", zap.Int("active", p.active))
}

func (p *Pool) spawnLocked(extra bool) {
	p.active++
	p.wg.Add(1)
	if p.hooks.OnWorkerStart != nil {
		p.hooks.OnWorkerStart()
	}

	ctx := p.ctx
	go func() {
		defer p.wg.Done()
		p.run(ctx, extra)
	}()
}

func (p *Pool) run(ctx context.Context, extra bool) {
	var idle <-chan time.Time
	var timer *time.Timer
	if extra {
		timer = time.NewTimer(p.idleExpiry)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			p.release()
			return
		case job := <-p.work:
			job(ctx)
			if timer != nil {
				timer.Reset(p.idleExpiry)
			}
		case <-idle:
			if p.retire() {
				return
			}
			timer.Reset(p.idleExpiry)
		}
	}
}

// retire lets an idle extra worker exit unless that would drop below min.
func (p *Pool) retire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active <= p.min {
		return false
	}
	p.active--
	if p.hooks.OnWorkerStop != nil {
		p.hooks.OnWorkerStop()
	}
	p.logger.Debug("worker pool scaled down", zap.Int("active", p.active))
	return true
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	if p.hooks.OnWorkerStop != nil {
		p.hooks.OnWorkerStop()
	}
}

// Active returns the number of running workers.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
