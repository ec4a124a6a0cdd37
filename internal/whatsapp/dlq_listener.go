package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// DeadLetterStore is where dead-letter records are kept for operators.
type DeadLetterStore interface {
	Insert(ctx context.Context, rec domain.DeadLetterRecord) error
}

// DLQListener records what arrives on whatsapp.dlq. It never republishes.
type DLQListener struct {
	store    DeadLetterStore
	logger   *zap.Logger
	recorded func()
}

// NewDLQListener builds a listener; onRecorded may be nil.
func NewDLQListener(store DeadLetterStore, logger *zap.Logger, onRecorded func()) *DLQListener {
	return &DLQListener{store: store, logger: logger, recorded: onRecorded}
}

func (l *DLQListener) Handle(ctx context.Context, bm broker.Message) error {
	var rec domain.DeadLetterRecord
	if err := json.Unmarshal(bm.Body, &rec); err != nil {
		l.logger.Error("undecodable dead-letter record dropped",
			zap.String("correlation_id", bm.CorrelationID), zap.Error(err))
		return nil
	}

	if err := l.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("store dead letter %s: %w", rec.CorrelationID, err)
	}

	l.logger.Error("dead letter recorded",
		zap.String("correlation_id", rec.CorrelationID),
		zap.String("phone_number", rec.OriginalMessage.PhoneNumber),
		zap.String("template", rec.OriginalMessage.Template),
		zap.Int("retry_count", rec.OriginalMessage.RetryCount),
		zap.String("reason", rec.FailureReason),
		zap.Time("failure_time", rec.FailureTime))
	if l.recorded != nil {
		l.recorded()
	}
	return nil
}
