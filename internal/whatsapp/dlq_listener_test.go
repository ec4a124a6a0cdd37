package whatsapp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/repository"
	"github.com/notifyhub/notification-pipeline/internal/whatsapp"
)

func TestDLQListener_RecordsAndNeverRepublishes(t *testing.T) {
	store := repository.NewMockDeadLetterRepository()
	var recorded int
	l := whatsapp.NewDLQListener(store, zap.NewNop(), func() { recorded++ })

	rec := domain.NewDeadLetterRecord(welcome(3), "Max retries exceeded (3): 503", time.Now())
	require.NoError(t, l.Handle(context.Background(), delivery(t, rec)))
	// a redelivery of the same record is stored once
	require.NoError(t, l.Handle(context.Background(), delivery(t, rec)))

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, rec.CorrelationID, records[0].CorrelationID)
	assert.Equal(t, "Max retries exceeded (3): 503", records[0].FailureReason)
	assert.Equal(t, 2, recorded)
}

func TestDLQListener_StoreFailureRequeues(t *testing.T) {
	store := repository.NewMockDeadLetterRepository()
	store.InsertErr = errors.New("db down")
	l := whatsapp.NewDLQListener(store, zap.NewNop(), nil)

	rec := domain.NewDeadLetterRecord(welcome(0), "Non-retryable error: 401", time.Now())
	assert.Error(t, l.Handle(context.Background(), delivery(t, rec)))
}

func TestDLQListener_UndecodableRecordIsAcked(t *testing.T) {
	l := whatsapp.NewDLQListener(repository.NewMockDeadLetterRepository(), zap.NewNop(), nil)
	assert.NoError(t, l.Handle(context.Background(), broker.JSON([]byte("nope"), "x", 0, time.Now())))
}

func TestFacade_SendQueuesFirstAttempt(t *testing.T) {
	pub := &recordingPublisher{}
	f := whatsapp.NewFacade(pub, zap.NewNop())

	msg, err := f.Send(context.Background(), "+1", "welcome", map[string]string{"name": "Ana"}, "evt-7")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.CorrelationID)
	assert.Zero(t, msg.RetryCount)
	assert.Equal(t, "evt-7", msg.OriginalEventID)

	sent := pub.to(broker.WhatsAppRoutingKey)
	require.Len(t, sent, 1)
	assert.Equal(t, broker.WhatsAppExchange, sent[0].exchange)
	assert.Equal(t, msg.CorrelationID, sent[0].msg.CorrelationID)
}

func TestFacade_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	f := whatsapp.NewFacade(pub, zap.NewNop())

	_, err := f.Send(context.Background(), "+1", "welcome", nil, "")
	assert.Error(t, err)
}
