package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

type pgDeadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewPgDeadLetterRepository returns a DeadLetterRepository backed by PostgreSQL.
func NewPgDeadLetterRepository(pool *pgxpool.Pool) DeadLetterRepository {
	return &pgDeadLetterRepository{pool: pool}
}

// Insert stores rec once; a redelivered record with the same correlation id
// and failure time is ignored.
func (r *pgDeadLetterRepository) Insert(ctx context.Context, rec domain.DeadLetterRecord) error {
	payload, err := json.Marshal(rec.OriginalMessage)
	if err != nil {
		return fmt.Errorf("marshal dead letter payload: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO dead_letters
			(correlation_id, failure_reason, failure_time, retry_count, phone_number, template, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (correlation_id, failure_time) DO NOTHING`,
		rec.CorrelationID, rec.FailureReason, rec.FailureTime,
		rec.OriginalMessage.RetryCount, rec.OriginalMessage.PhoneNumber, rec.OriginalMessage.Template,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *pgDeadLetterRepository) List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT correlation_id, failure_reason, failure_time, payload
		FROM dead_letters
		ORDER BY failure_time DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []domain.DeadLetterRecord
	for rows.Next() {
		var rec domain.DeadLetterRecord
		var payload []byte
		if err := rows.Scan(&rec.CorrelationID, &rec.FailureReason, &rec.FailureTime, &payload); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.OriginalMessage); err != nil {
			return nil, fmt.Errorf("decode dead letter %s: %w", rec.CorrelationID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
