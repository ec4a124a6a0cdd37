package notificator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/notificator"
	"github.com/notifyhub/notification-pipeline/internal/ratelimiter"
	"github.com/notifyhub/notification-pipeline/internal/render"
	"github.com/notifyhub/notification-pipeline/internal/resilience"
)

type fakeEmail struct {
	to, subject, body string
	err               error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

type fakePush struct {
	endpoint, body string
}

func (f *fakePush) Push(_ context.Context, endpoint, body string) error {
	f.endpoint, f.body = endpoint, body
	return nil
}

type fakeFacade struct {
	phone, template, eventID string
	vars                     map[string]string
}

func (f *fakeFacade) Send(_ context.Context, phone, template string, vars map[string]string, eventID string) (domain.WhatsappMessage, error) {
	f.phone, f.template, f.vars, f.eventID = phone, template, vars, eventID
	return domain.NewWhatsappMessage(phone, template, vars, eventID, time.Now()), nil
}

func catalog() *render.Catalog {
	return render.NewCatalog(map[string]render.Template{
		"welcome": {Subject: "Welcome {{name}}", Body: "Hello {{name}}"},
		"receipt": {Body: "We received {{amount}}"},
	})
}

func TestRegistry(t *testing.T) {
	limiter := ratelimiter.New(100)
	email := notificator.NewEmailNotificator(catalog(), &fakeEmail{}, limiter)
	app := notificator.NewAppNotificator(catalog(), &fakePush{}, limiter)

	r := notificator.NewRegistry(email, app)

	got, err := r.Get(domain.ChannelEmail)
	require.NoError(t, err)
	assert.Same(t, email, got)

	_, err = r.Get(domain.ChannelWhatsApp)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChannel)
	assert.ElementsMatch(t, []domain.Channel{domain.ChannelEmail, domain.ChannelApp}, r.Channels())
}

func TestEmailNotificator(t *testing.T) {
	sender := &fakeEmail{}
	n := notificator.NewEmailNotificator(catalog(), sender, ratelimiter.New(100))

	err := n.Send(context.Background(), domain.NotificationDto{
		To: "ana@example.org", Template: "welcome", Subject: "ignored", Variables: map[string]string{"name": "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.org", sender.to)
	assert.Equal(t, "Welcome Ana", sender.subject)
	assert.Equal(t, "Hello Ana", sender.body)

	// the event subject is used when the template has none
	err = n.Send(context.Background(), domain.NotificationDto{
		To: "ana@example.org", Template: "receipt", Subject: "Receipt", Variables: map[string]string{"amount": "10"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Receipt", sender.subject)
}

func TestEmailNotificator_RenderFailureIsNonRetryable(t *testing.T) {
	sender := &fakeEmail{}
	n := notificator.NewEmailNotificator(catalog(), sender, ratelimiter.New(100))

	err := n.Send(context.Background(), domain.NotificationDto{To: "x", Template: "welcome", Variables: map[string]string{}})
	require.Error(t, err)
	assert.Equal(t, resilience.NonRetryable, resilience.Classify(err))
	assert.Empty(t, sender.to, "nothing is sent when rendering fails")

	err = n.Send(context.Background(), domain.NotificationDto{To: "x", Template: "missing", Variables: map[string]string{}})
	assert.ErrorIs(t, err, domain.ErrUnknownTemplate)
}

func TestEmailNotificator_SenderError(t *testing.T) {
	boom := errors.New("boom")
	n := notificator.NewEmailNotificator(catalog(), &fakeEmail{err: boom}, ratelimiter.New(100))

	err := n.Send(context.Background(), domain.NotificationDto{To: "x", Template: "welcome", Variables: map[string]string{"name": "A"}})
	assert.ErrorIs(t, err, boom)
}

func TestAppNotificator(t *testing.T) {
	sender := &fakePush{}
	n := notificator.NewAppNotificator(catalog(), sender, ratelimiter.New(100))

	require.NoError(t, n.Send(context.Background(), domain.NotificationDto{
		To: "arn:endpoint", Template: "receipt", Variables: map[string]string{"amount": "10"},
	}))
	assert.Equal(t, "arn:endpoint", sender.endpoint)
	assert.Equal(t, "We received 10", sender.body)
}

func TestWhatsAppNotificator_HandsOffToFacade(t *testing.T) {
	facade := &fakeFacade{}
	n := notificator.NewWhatsAppNotificator(facade)

	require.NoError(t, n.Send(context.Background(), domain.NotificationDto{
		To: "+5511999990000", Template: "welcome", Variables: map[string]string{"name": "Ana"}, CorrelationID: "evt-1",
	}))
	assert.Equal(t, "+5511999990000", facade.phone)
	assert.Equal(t, "welcome", facade.template)
	assert.Equal(t, "evt-1", facade.eventID)
	assert.Equal(t, "Ana", facade.vars["name"])
}
