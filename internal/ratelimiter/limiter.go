package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// ChannelLimiters holds one token bucket per channel provider.
// Burst equals the rate so no capacity is saved up beyond the
// configured per-second maximum.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates a ChannelLimiters with ratePerSec tokens per second per channel.
func New(ratePerSec int) *ChannelLimiters {
	r := rate.Limit(ratePerSec)

	return &ChannelLimiters{
		limiters: map[domain.Channel]*rate.Limiter{
			domain.ChannelEmail:    rate.NewLimiter(r, ratePerSec),
			domain.ChannelWhatsApp: rate.NewLimiter(r, ratePerSec),
			domain.ChannelApp:      rate.NewLimiter(r, ratePerSec),
		},
	}
}

// Wait blocks until the channel's limiter grants a token.
// Returns an error if ctx is cancelled (or its deadline is too close) while
// waiting, or if the channel has no limiter.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, ch)
	}
	return l.Wait(ctx)
}
