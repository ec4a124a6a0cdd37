package repository

import (
	"context"
	"time"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// PersonRepository resolves where a person can be reached on a channel.
type PersonRepository interface {
	// GetContactAddress returns domain.ErrNotFound when the person is unknown
	// or has no address for ch.
	GetContactAddress(ctx context.Context, personID string, ch domain.Channel) (domain.ContactAddress, error)
}

// ScheduleRepository reads and updates ministry function schedules.
type ScheduleRepository interface {
	// MarkReminderSent is idempotent: an already-marked schedule is left as is.
	// Returns domain.ErrNotFound when the schedule does not exist.
	MarkReminderSent(ctx context.Context, scheduleID string, sentAt time.Time) error
	FindDueReminders(ctx context.Context, until time.Time, limit int) ([]domain.ReminderSchedule, error)
}

// DeadLetterRepository is the durable, append-only store behind the DLQ listener.
type DeadLetterRepository interface {
	Insert(ctx context.Context, rec domain.DeadLetterRecord) error
	List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error)
}
