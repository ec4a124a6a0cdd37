package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/repository"
)

// EventPublisher is the part of service.Publisher the scheduler needs.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.NotificationEvent) (string, error)
}

// ReminderConfig controls the reminder scheduler.
type ReminderConfig struct {
	// Spec is a robfig/cron expression, e.g. "@every 5m" or "0 7 * * *".
	Spec string
	// LeadTime is how far ahead of a function's start its reminder goes out.
	LeadTime time.Duration
	// BatchSize caps the schedules read per tick.
	BatchSize int
	// TickTimeout bounds a single tick.
	TickTimeout time.Duration
}

// ReminderScheduler finds ministry-function schedules that start within the
// lead time and still have no reminder, and publishes a reminder event for
// each. A schedule is only marked once its reminder was actually sent (by
// service.Consumer), so a schedule published on one tick is skipped until
// LeadTime has passed to avoid flooding the queue while it is in flight.
type ReminderScheduler struct {
	cfg       ReminderConfig
	schedules repository.ScheduleRepository
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	published map[string]time.Time
}

func NewReminderScheduler(
	cfg ReminderConfig,
	schedules repository.ScheduleRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) *ReminderScheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = time.Minute
	}
	return &ReminderScheduler{
		cfg:       cfg,
		schedules: schedules,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		published: make(map[string]time.Time),
	}
}

// Run schedules Tick on the cron spec and blocks until ctx is cancelled.
// A running tick is allowed to finish before Run returns.
func (rs *ReminderScheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(rs.cfg.Spec, func() {
		tickCtx, cancel := context.WithTimeout(ctx, rs.cfg.TickTimeout)
		defer cancel()
		if _, err := rs.Tick(tickCtx); err != nil {
			rs.logger.Error("reminder tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("reminder cron spec %q: %w", rs.cfg.Spec, err)
	}

	c.Start()
	rs.logger.Info("reminder scheduler started",
		zap.String("spec", rs.cfg.Spec),
		zap.Duration("lead_time", rs.cfg.LeadTime))

	<-ctx.Done()
	<-c.Stop().Done()
	rs.logger.Info("reminder scheduler stopped")
	return nil
}

// Tick publishes reminders for every due schedule and returns how many
// were published.
func (rs *ReminderScheduler) Tick(ctx context.Context) (int, error) {
	now := rs.now()
	due, err := rs.schedules.FindDueReminders(ctx, now.Add(rs.cfg.LeadTime), rs.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.prune(now)

	count := 0
	for _, s := range due {
		if _, inFlight := rs.published[s.ID]; inFlight {
			continue
		}
		id, err := rs.publisher.Publish(ctx, s.ReminderEvent(now))
		if err != nil {
			rs.logger.Error("could not publish reminder",
				zap.String("schedule_id", s.ID), zap.Error(err))
			continue
		}
		rs.published[s.ID] = now
		count++
		rs.logger.Debug("reminder published",
			zap.String("schedule_id", s.ID), zap.String("event_id", id))
	}

	if count > 0 {
		rs.logger.Info("published due reminders", zap.Int("count", count))
	}
	return count, nil
}

func (rs *ReminderScheduler) prune(now time.Time) {
	for id, at := range rs.published {
		if now.Sub(at) >= rs.cfg.LeadTime {
			delete(rs.published, id)
		}
	}
}
