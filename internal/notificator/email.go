package notificator

import (
	"context"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/ratelimiter"
	"github.com/notifyhub/notification-pipeline/internal/render"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// EmailNotificator renders the catalog template and sends it through SES.
type EmailNotificator struct {
	catalog *render.Catalog
	sender  EmailSender
	limiter *ratelimiter.ChannelLimiters
}

func NewEmailNotificator(catalog *render.Catalog, sender EmailSender, limiter *ratelimiter.ChannelLimiters) *EmailNotificator {
	return &EmailNotificator{catalog: catalog, sender: sender, limiter: limiter}
}

func (n *EmailNotificator) Channel() domain.Channel { return domain.ChannelEmail }

func (n *EmailNotificator) Send(ctx context.Context, dto domain.NotificationDto) error {
	body, err := n.catalog.Render(dto.Template, dto.Variables)
	if err != nil {
		return err
	}
	subject, err := n.catalog.RenderSubject(dto.Template, dto.Subject, dto.Variables)
	if err != nil {
		return err
	}
	if err := n.limiter.Wait(ctx, domain.ChannelEmail); err != nil {
		return err
	}
	return n.sender.SendEmail(ctx, dto.To, subject, body)
}
