package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

type pgScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewPgScheduleRepository returns a ScheduleRepository backed by PostgreSQL.
func NewPgScheduleRepository(pool *pgxpool.Pool) ScheduleRepository {
	return &pgScheduleRepository{pool: pool}
}

func (r *pgScheduleRepository) MarkReminderSent(ctx context.Context, scheduleID string, sentAt time.Time) error {
	// COALESCE keeps the first timestamp, so repeating the call changes nothing.
	tag, err := r.pool.Exec(ctx, `
		UPDATE ministry_function_schedules
		SET reminder_sent_at = COALESCE(reminder_sent_at, $2)
		WHERE id = $1`, scheduleID, sentAt)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s: %w", scheduleID, domain.ErrNotFound)
	}
	return nil
}

func (r *pgScheduleRepository) FindDueReminders(ctx context.Context, until time.Time, limit int) ([]domain.ReminderSchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, person_id, function_name, channel, starts_at, reminder_sent_at
		FROM ministry_function_schedules
		WHERE reminder_sent_at IS NULL
		  AND starts_at > now()
		  AND starts_at <= $1
		ORDER BY starts_at
		LIMIT $2`, until, limit)
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

func scanSchedules(rows pgx.Rows) ([]domain.ReminderSchedule, error) {
	var out []domain.ReminderSchedule
	for rows.Next() {
		var s domain.ReminderSchedule
		var ch string
		if err := rows.Scan(&s.ID, &s.PersonID, &s.FunctionName, &ch, &s.StartsAt, &s.ReminderSentAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		s.Channel = domain.Channel(ch)
		out = append(out, s)
	}
	return out, rows.Err()
}
