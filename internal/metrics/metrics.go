package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/whatsapp"
	"github.com/notifyhub/notification-pipeline/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EventsPublished  *prometheus.CounterVec
	EventsConsumed   *prometheus.CounterVec
	WhatsAppSent     prometheus.Counter
	WhatsAppLatency  prometheus.Histogram
	WhatsAppRetries  prometheus.Counter
	DeadLetters      *prometheus.CounterVec
	Duplicates       prometheus.Counter
	DeadLetterStored prometheus.Counter
	BreakerState     *prometheus.GaugeVec
	ConsumerWorkers  prometheus.Gauge
	QueueDepth       *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_published_total",
			Help: "Notification events accepted and queued, by type.",
		}, []string{"type"}),

		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_consumed_total",
			Help: "Notification events consumed, by type and outcome (sent, dropped, failed).",
		}, []string{"type", "outcome"}),

		WhatsAppSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_messages_delivered_total",
			Help: "WhatsApp messages accepted by the provider.",
		}),

		WhatsAppLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whatsapp_delivery_seconds",
			Help:    "Time spent on a successful delivery attempt, rendering and rate limiting included.",
			Buckets: prometheus.DefBuckets,
		}),

		WhatsAppRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_retries_scheduled_total",
			Help: "WhatsApp messages sent to the retry queue.",
		}),

		DeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_dead_letters_total",
			Help: "WhatsApp messages dead-lettered, by kind.",
		}, []string{"kind"}),

		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_duplicates_skipped_total",
			Help: "Redeliveries skipped because the message was already delivered.",
		}),

		DeadLetterStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dead_letter_records_stored_total",
			Help: "Dead-letter records persisted by the DLQ listener.",
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),

		ConsumerWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "consumer_workers_active",
			Help: "Consumer goroutines currently running across all queues.",
		}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_queue_depth",
			Help: "Messages waiting in each queue (in-memory broker only).",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		m.EventsPublished,
		m.EventsConsumed,
		m.WhatsAppSent,
		m.WhatsAppLatency,
		m.WhatsAppRetries,
		m.DeadLetters,
		m.Duplicates,
		m.DeadLetterStored,
		m.BreakerState,
		m.ConsumerWorkers,
		m.QueueDepth,
	)

	return m
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the pool stays import-free.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnWorkerStart: m.ConsumerWorkers.Inc,
		OnWorkerStop:  m.ConsumerWorkers.Dec,
	}
}

// ListenerHooks returns the callbacks for the WhatsApp listener.
func (m *Metrics) ListenerHooks() whatsapp.Hooks {
	return whatsapp.Hooks{
		OnDelivered: func(latency time.Duration) {
			m.WhatsAppSent.Inc()
			m.WhatsAppLatency.Observe(latency.Seconds())
		},
		OnRetry: m.WhatsAppRetries.Inc,
		OnDeadLetter: func(kind string) {
			m.DeadLetters.WithLabelValues(kind).Inc()
		},
		OnDuplicate: m.Duplicates.Inc,
	}
}

func (m *Metrics) OnPublished(nt domain.NotificationType) {
	m.EventsPublished.WithLabelValues(string(nt)).Inc()
}

func (m *Metrics) OnConsumed(nt domain.NotificationType, outcome string) {
	m.EventsConsumed.WithLabelValues(string(nt), outcome).Inc()
}

func (m *Metrics) OnDeadLetterStored() { m.DeadLetterStored.Inc() }

// OnBreakerStateChange matches circuitbreaker.Config.OnStateChange.
func (m *Metrics) OnBreakerStateChange(name string, _, to gobreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(stateValue(to)))
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// ObserveQueueDepths sets the depth gauge for every queue in depths.
func (m *Metrics) ObserveQueueDepths(depths map[string]int) {
	for q, d := range depths {
		m.QueueDepth.WithLabelValues(q).Set(float64(d))
	}
}
