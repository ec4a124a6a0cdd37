package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/repository"
	"github.com/notifyhub/notification-pipeline/internal/worker"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.NotificationEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, ev)
	return "evt-" + ev.ReferenceID, nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func reminderFixture() (*repository.MockScheduleRepository, *recordingPublisher, *worker.ReminderScheduler) {
	schedules := repository.NewMockScheduleRepository()
	now := time.Now()
	sent := now.Add(-time.Hour)

	schedules.Add(domain.ReminderSchedule{ID: "due", PersonID: "P1", FunctionName: "Usher", Channel: domain.ChannelWhatsApp, StartsAt: now.Add(2 * time.Hour)})
	schedules.Add(domain.ReminderSchedule{ID: "later", PersonID: "P2", FunctionName: "Choir", Channel: domain.ChannelEmail, StartsAt: now.Add(72 * time.Hour)})
	schedules.Add(domain.ReminderSchedule{ID: "done", PersonID: "P3", FunctionName: "Sound", Channel: domain.ChannelEmail, StartsAt: now.Add(time.Hour), ReminderSentAt: &sent})

	pub := &recordingPublisher{}
	rs := worker.NewReminderScheduler(worker.ReminderConfig{Spec: "@every 1s", LeadTime: 24 * time.Hour}, schedules, pub, zap.NewNop())
	return schedules, pub, rs
}

func TestReminderScheduler_PublishesDueReminders(t *testing.T) {
	_, pub, rs := reminderFixture()

	n, err := rs.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, domain.TypeMinistryFunctionReminder, ev.Type)
	assert.Equal(t, domain.ReminderTemplate, ev.Template)
	assert.Equal(t, "due", ev.ReferenceID)
	assert.Equal(t, "Usher", ev.Variables["function"])
	assert.NoError(t, ev.Validate())
}

func TestReminderScheduler_SkipsInFlightReminders(t *testing.T) {
	schedules, pub, rs := reminderFixture()
	ctx := context.Background()

	_, err := rs.Tick(ctx)
	require.NoError(t, err)
	n, err := rs.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a published reminder must not be republished while in flight")

	require.NoError(t, schedules.MarkReminderSent(ctx, "due", time.Now()))
	n, err = rs.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, pub.count())
}

func TestReminderScheduler_PublishFailureIsRetriedNextTick(t *testing.T) {
	_, pub, rs := reminderFixture()
	ctx := context.Background()

	pub.err = errors.New("broker down")
	n, err := rs.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pub.err = nil
	n, err = rs.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReminderScheduler_RejectsBadSpec(t *testing.T) {
	rs := worker.NewReminderScheduler(worker.ReminderConfig{Spec: "not a cron"},
		repository.NewMockScheduleRepository(), &recordingPublisher{}, zap.NewNop())
	assert.Error(t, rs.Run(context.Background()))
}

func TestReminderScheduler_RunsOnSchedule(t *testing.T) {
	_, pub, rs := reminderFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- rs.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
