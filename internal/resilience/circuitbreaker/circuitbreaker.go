// Package circuitbreaker guards calls to an external channel provider.
//
// State transitions are delegated to github.com/sony/gobreaker. The decision
// to trip is taken from a count-based sliding window of the last N calls,
// which tracks both the failure rate and the slow-call rate.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/resilience"
)

// errSlowCallsExceeded is reported to gobreaker (never to callers) when a
// slow call that does not count as a failure pushes the slow-call rate over
// the threshold.
var errSlowCallsExceeded = errors.New("slow call rate exceeded")

// Config holds the configuration for one breaker.
type Config struct {
	Name string

	// WindowSize is the number of most recent calls evaluated.
	WindowSize int

	// MinimumCalls must be recorded before the rates are evaluated.
	MinimumCalls int

	// FailureRateThreshold trips the breaker, e.g. 0.5 for 50%.
	FailureRateThreshold float64

	// SlowCallDuration marks a call as slow when exceeded.
	SlowCallDuration time.Duration

	// SlowCallRateThreshold trips the breaker on the share of slow calls.
	SlowCallRateThreshold float64

	// OpenWait is how long calls are short-circuited before trial calls.
	OpenWait time.Duration

	// HalfOpenCalls is the number of trial calls permitted in half-open.
	HalfOpenCalls uint32

	// OnStateChange is called after every transition. Optional.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns the settings used for the WhatsApp provider.
func DefaultConfig(name string) Config {
	return Config{
		Name:                  name,
		WindowSize:            10,
		MinimumCalls:          5,
		FailureRateThreshold:  0.5,
		SlowCallDuration:      2 * time.Second,
		SlowCallRateThreshold: 0.5,
		OpenWait:              30 * time.Second,
		HalfOpenCalls:         3,
	}
}

// Breaker is safe for concurrent use by every worker of a channel.
type Breaker struct {
	cfg    Config
	cb     *gobreaker.CircuitBreaker
	window *window
	logger *zap.Logger
}

// New creates a closed breaker.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		cfg:    cfg,
		window: newWindow(cfg.WindowSize),
		logger: logger.With(zap.String("circuit", cfg.Name)),
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenCalls,
		Timeout:     cfg.OpenWait,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.shouldTrip()
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.window.reset()
			b.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	})

	return b
}

// Execute runs fn through the breaker. When the breaker is open, or all
// half-open trial slots are taken, fn is not invoked and a Retryable error
// wrapping domain.ErrCircuitOpen is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var callErr error
	_, err := b.cb.Execute(func() (interface{}, error) {
		start := time.Now()
		callErr = fn(ctx)
		elapsed := time.Since(start)

		o := outcome{
			failed: callErr != nil && !isSuccessful(callErr),
			slow:   b.cfg.SlowCallDuration > 0 && elapsed > b.cfg.SlowCallDuration,
		}
		b.window.record(o)

		// gobreaker only consults ReadyToTrip on failures, so a slow call
		// it would otherwise count as a success is reported as one.
		if o.slow && isSuccessful(callErr) && b.shouldTrip() {
			return nil, errSlowCallsExceeded
		}
		return nil, callErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return resilience.NewRetryable(fmt.Errorf("%w: %s", domain.ErrCircuitOpen, b.cfg.Name))
	}
	// errSlowCallsExceeded stays internal; callers see what fn returned.
	return callErr
}

func (b *Breaker) shouldTrip() bool {
	calls, failureRate, slowRate := b.window.rates()
	if calls < b.cfg.MinimumCalls {
		return false
	}
	if failureRate >= b.cfg.FailureRateThreshold {
		return true
	}
	return b.cfg.SlowCallRateThreshold > 0 && slowRate >= b.cfg.SlowCallRateThreshold
}

// isSuccessful decides what gobreaker counts as a failure. A non-retryable
// answer means the provider is up and rejected this message, so it does not
// count against the provider.
func isSuccessful(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, errSlowCallsExceeded):
		return false
	}
	return resilience.Classify(err) == resilience.NonRetryable
}

// State returns the current state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Snapshot is a point-in-time view used by the status endpoint.
type Snapshot struct {
	Name        string  `json:"name"`
	State       string  `json:"state"`
	Calls       int     `json:"calls"`
	FailureRate float64 `json:"failure_rate"`
	SlowRate    float64 `json:"slow_call_rate"`
}

// Snapshot returns the current state and window rates.
func (b *Breaker) Snapshot() Snapshot {
	state := b.cb.State()
	calls, failureRate, slowRate := b.window.rates()
	return Snapshot{
		Name:        b.cfg.Name,
		State:       state.String(),
		Calls:       calls,
		FailureRate: failureRate,
		SlowRate:    slowRate,
	}
}
