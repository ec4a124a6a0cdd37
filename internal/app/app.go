// Package app assembles the notification pipeline from its parts and runs
// every consumer, the reminder scheduler and the operator HTTP server until
// the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/notification-pipeline/internal/api"
	"github.com/notifyhub/notification-pipeline/internal/api/handler"
	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/config"
	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/ledger"
	"github.com/notifyhub/notification-pipeline/internal/metrics"
	"github.com/notifyhub/notification-pipeline/internal/notificator"
	"github.com/notifyhub/notification-pipeline/internal/provider"
	"github.com/notifyhub/notification-pipeline/internal/ratelimiter"
	"github.com/notifyhub/notification-pipeline/internal/render"
	"github.com/notifyhub/notification-pipeline/internal/repository"
	"github.com/notifyhub/notification-pipeline/internal/resilience/circuitbreaker"
	"github.com/notifyhub/notification-pipeline/internal/service"
	"github.com/notifyhub/notification-pipeline/internal/whatsapp"
	"github.com/notifyhub/notification-pipeline/internal/worker"
)

const depthInterval = 15 * time.Second

// Deps are the external collaborators. Email and Push may be nil, in which
// case events for that channel are dropped as unsupported.
type Deps struct {
	Broker      broker.Broker
	People      repository.PersonRepository
	Schedules   repository.ScheduleRepository
	DeadLetters repository.DeadLetterRepository
	Ledger      ledger.Ledger
	Catalog     *render.Catalog
	WhatsApp    provider.WhatsAppSender
	Email       notificator.EmailSender
	Push        notificator.PushSender

	// Registry is served on /metrics; a fresh one is used when nil.
	Registry *prometheus.Registry
	// Metrics must be registered on Registry. Built from Registry when nil;
	// pass it in when the broker was already given its WorkerHooks.
	Metrics *metrics.Metrics
	// Health is checked by GET /health.
	Health map[string]handler.Pinger
}

// App is a fully wired pipeline.
type App struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger

	Metrics   *metrics.Metrics
	Breaker   *circuitbreaker.Breaker
	Publisher *service.Publisher
	Facade    *whatsapp.Facade

	consumer  *service.Consumer
	listener  *whatsapp.Listener
	dlq       *whatsapp.DLQListener
	scheduler *worker.ReminderScheduler
	router    http.Handler
}

// New wires the pipeline. Nothing is started until Run.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.Broker == nil || deps.People == nil || deps.Schedules == nil ||
		deps.Ledger == nil || deps.Catalog == nil || deps.WhatsApp == nil {
		return nil, errors.New("app: broker, people, schedules, ledger, catalog and whatsapp sender are required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(deps.Registry)
	}

	a := &App{cfg: cfg, deps: deps, logger: logger, Metrics: deps.Metrics}

	breakerCfg := circuitbreaker.Config{
		Name:                  "whatsapp",
		WindowSize:            cfg.BreakerWindowSize,
		MinimumCalls:          cfg.BreakerMinimumCalls,
		FailureRateThreshold:  cfg.BreakerFailureRate,
		SlowCallDuration:      cfg.BreakerSlowCallDuration,
		SlowCallRateThreshold: cfg.BreakerSlowCallRate,
		OpenWait:              cfg.BreakerOpenWait,
		HalfOpenCalls:         uint32(cfg.BreakerHalfOpenCalls),
		OnStateChange:         a.Metrics.OnBreakerStateChange,
	}
	a.Breaker = circuitbreaker.New(breakerCfg, logger)
	limiter := ratelimiter.New(cfg.RateLimit)

	a.Facade = whatsapp.NewFacade(deps.Broker, logger)
	a.listener = whatsapp.NewListener(
		whatsapp.ListenerConfig{MaxRetryCount: cfg.MaxRetryCount, MaxMessageAge: cfg.MaxMessageAge},
		deps.Catalog,
		deps.WhatsApp,
		a.Breaker,
		limiter,
		deps.Ledger,
		whatsapp.NewRetryProducer(deps.Broker),
		whatsapp.NewDLQProducer(deps.Broker),
		logger,
		a.Metrics.ListenerHooks(),
	)

	notificators := []notificator.Notificator{notificator.NewWhatsAppNotificator(a.Facade)}
	if deps.Email != nil {
		notificators = append(notificators, notificator.NewEmailNotificator(deps.Catalog, deps.Email, limiter))
	}
	if deps.Push != nil {
		notificators = append(notificators, notificator.NewAppNotificator(deps.Catalog, deps.Push, limiter))
	}
	registry := notificator.NewRegistry(notificators...)

	a.Publisher = service.NewPublisher(deps.Broker, logger, a.Metrics.OnPublished)
	a.consumer = service.NewConsumer(registry, deps.People, deps.Schedules, logger, a.Metrics.OnConsumed)

	if deps.DeadLetters != nil {
		a.dlq = whatsapp.NewDLQListener(deps.DeadLetters, logger, a.Metrics.OnDeadLetterStored)
	}

	if cfg.ReminderCron != "" {
		a.scheduler = worker.NewReminderScheduler(worker.ReminderConfig{
			Spec:     cfg.ReminderCron,
			LeadTime: cfg.ReminderLeadTime,
		}, deps.Schedules, a.Publisher, logger)
	}

	routerDeps := api.Deps{
		Breakers: []handler.BreakerView{a.Breaker},
		Ledger:   deps.Ledger,
		Health:   deps.Health,
		Gatherer: deps.Registry,
	}
	if deps.DeadLetters != nil {
		routerDeps.DeadLetters = deps.DeadLetters
	}
	if d, ok := deps.Broker.(depthReporter); ok {
		routerDeps.QueueDepths = d.Depths
	}
	a.router = api.NewRouter(routerDeps, logger)

	logger.Info("pipeline wired",
		zap.Strings("channels", channelNames(registry.Channels())),
		zap.Int("max_retry_count", cfg.MaxRetryCount),
		zap.Duration("retry_ttl", cfg.RetryTTL))
	return a, nil
}

type depthReporter interface {
	Depths() map[string]int
}

// Handler is the operator HTTP surface.
func (a *App) Handler() http.Handler { return a.router }

// Run subscribes every queue, starts the reminder scheduler and serves HTTP
// when a port is configured. It blocks until ctx is cancelled and every
// in-flight delivery has finished, or until one subsystem fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	concurrency := broker.Concurrency{
		Min:        a.cfg.MinConsumers,
		Max:        a.cfg.MaxConsumers,
		IdleExpiry: a.cfg.ConsumerIdleExpiry,
	}
	subscribe := func(queue string, c broker.Concurrency, h broker.Handler) {
		g.Go(func() error {
			a.logger.Info("subscribing", zap.String("queue", queue),
				zap.Int("min", c.Min), zap.Int("max", c.Max))
			if err := a.deps.Broker.Subscribe(ctx, queue, c, h); err != nil {
				return fmt.Errorf("subscribe %s: %w", queue, err)
			}
			return nil
		})
	}

	for _, nt := range domain.NotificationTypes {
		subscribe(broker.NotificationQueue(nt), concurrency, a.consumer.Handle)
	}
	subscribe(broker.WhatsAppQueue, concurrency, a.listener.Handle)
	if a.dlq != nil {
		subscribe(broker.WhatsAppDLQ, broker.Concurrency{Min: 1, Max: 1}, a.dlq.Handle)
	}

	if a.scheduler != nil {
		g.Go(func() error { return a.scheduler.Run(ctx) })
	}

	if d, ok := a.deps.Broker.(depthReporter); ok {
		g.Go(func() error {
			a.observeDepths(ctx, d)
			return nil
		})
	}

	if a.cfg.HTTPPort != "" {
		g.Go(func() error { return a.serve(ctx) })
	}

	return g.Wait()
}

func (a *App) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + a.cfg.HTTPPort,
		Handler:      a.router,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("operator server starting", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	return nil
}

func (a *App) observeDepths(ctx context.Context, d depthReporter) {
	ticker := time.NewTicker(depthInterval)
	defer ticker.Stop()
	for {
		a.Metrics.ObserveQueueDepths(d.Depths())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func channelNames(chs []domain.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = string(ch)
	}
	return out
}
