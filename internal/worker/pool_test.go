package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/worker"
)

func TestPool_RunsSubmittedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := worker.NewPool(2, 4, time.Minute, zap.NewNop(), worker.MetricHooks{})
	p.Start(ctx)

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(ctx, func(context.Context) {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
		}))
	}
	wg.Wait()

	assert.EqualValues(t, 20, atomic.LoadInt32(&ran))

	cancel()
	p.Wait()
	assert.Zero(t, p.Active())
}

func TestPool_ScalesBetweenMinAndMax(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started, stopped int32
	p := worker.NewPool(1, 3, 50*time.Millisecond, zap.NewNop(), worker.MetricHooks{
		OnWorkerStart: func() { atomic.AddInt32(&started, 1) },
		OnWorkerStop:  func() { atomic.AddInt32(&stopped, 1) },
	})
	p.Start(ctx)
	assert.Equal(t, 1, p.Active())

	release := make(chan struct{})
	running := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(ctx, func(context.Context) {
			running <- struct{}{}
			<-release
		}))
	}
	for i := 0; i < 3; i++ {
		<-running
	}
	assert.Equal(t, 3, p.Active())

	// At max with every worker busy, a further submit blocks.
	blocked, cancelBlocked := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancelBlocked()
	err := p.Submit(blocked, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)

	require.Eventually(t, func() bool { return p.Active() == 1 }, 2*time.Second, 10*time.Millisecond,
		"extra workers should retire after the idle expiry")
	assert.EqualValues(t, 3, atomic.LoadInt32(&started))
	assert.EqualValues(t, 2, atomic.LoadInt32(&stopped))
}

func TestPool_SubmitAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := worker.NewPool(1, 1, time.Minute, zap.NewNop(), worker.MetricHooks{})
	p.Start(ctx)
	cancel()
	p.Wait()

	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, worker.ErrPoolStopped)
}

func TestPool_ClampsRange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := worker.NewPool(0, -1, 0, nil, worker.MetricHooks{})
	p.Start(ctx)
	assert.Equal(t, 1, p.Active())
}
