package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/metrics"
	"github.com/notifyhub/notification-pipeline/internal/whatsapp"
)

func TestMetrics_Hooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.OnPublished(domain.TypeWelcome)
	m.OnConsumed(domain.TypeWelcome, "sent")

	h := m.ListenerHooks()
	h.OnDelivered(2 * time.Second)
	h.OnRetry()
	h.OnRetry()
	h.OnDeadLetter(whatsapp.KindMaxRetries)
	h.OnDuplicate()
	m.OnDeadLetterStored()

	w := m.WorkerHooks()
	w.OnWorkerStart()
	w.OnWorkerStart()
	w.OnWorkerStop()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("WELCOME")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsConsumed.WithLabelValues("WELCOME", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WhatsAppSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WhatsAppRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLetters.WithLabelValues(whatsapp.KindMaxRetries)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLetterStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumerWorkers))
}

func TestMetrics_BreakerAndQueueGauges(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.OnBreakerStateChange("whatsapp", gobreaker.StateClosed, gobreaker.StateOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("whatsapp")))
	m.OnBreakerStateChange("whatsapp", gobreaker.StateOpen, gobreaker.StateHalfOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("whatsapp")))

	m.ObserveQueueDepths(map[string]int{"whatsapp.queue": 4})
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("whatsapp.queue")))
}

func TestMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}
