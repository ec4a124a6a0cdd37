package notificator

import (
	"context"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/ratelimiter"
	"github.com/notifyhub/notification-pipeline/internal/render"
)

type PushSender interface {
	Push(ctx context.Context, endpoint, body string) error
}

// AppNotificator renders the catalog template and pushes it to the
// person's device endpoint through SNS.
type AppNotificator struct {
	catalog *render.Catalog
	sender  PushSender
	limiter *ratelimiter.ChannelLimiters
}

func NewAppNotificator(catalog *render.Catalog, sender PushSender, limiter *ratelimiter.ChannelLimiters) *AppNotificator {
	return &AppNotificator{catalog: catalog, sender: sender, limiter: limiter}
}

func (n *AppNotificator) Channel() domain.Channel { return domain.ChannelApp }

func (n *AppNotificator) Send(ctx context.Context, dto domain.NotificationDto) error {
	body, err := n.catalog.Render(dto.Template, dto.Variables)
	if err != nil {
		return err
	}
	if err := n.limiter.Wait(ctx, domain.ChannelApp); err != nil {
		return err
	}
	return n.sender.Push(ctx, dto.To, body)
}
