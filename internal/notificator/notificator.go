// Package notificator dispatches a resolved notification to the sender
// registered for its channel.
package notificator

import (
	"context"
	"fmt"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// Notificator sends one resolved notification on a single channel.
// Implementations classify their own failures; callers do not retry.
type Notificator interface {
	Channel() domain.Channel
	Send(ctx context.Context, dto domain.NotificationDto) error
}

// Registry maps each channel to its Notificator. It is built once at
// startup and read-only afterwards.
type Registry struct {
	byChannel map[domain.Channel]Notificator
}

// NewRegistry indexes ns by channel. A later Notificator for the same
// channel replaces an earlier one.
func NewRegistry(ns ...Notificator) *Registry {
	r := &Registry{byChannel: make(map[domain.Channel]Notificator, len(ns))}
	for _, n := range ns {
		r.byChannel[n.Channel()] = n
	}
	return r
}

// Get returns domain.ErrUnsupportedChannel when nothing is registered for ch.
func (r *Registry) Get(ch domain.Channel) (Notificator, error) {
	n, ok := r.byChannel[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, ch)
	}
	return n, nil
}

// Channels lists the registered channels.
func (r *Registry) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(r.byChannel))
	for ch := range r.byChannel {
		out = append(out, ch)
	}
	return out
}
