package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/api/handler"
	"github.com/notifyhub/notification-pipeline/internal/app"
	"github.com/notifyhub/notification-pipeline/internal/broker"
	"github.com/notifyhub/notification-pipeline/internal/config"
	"github.com/notifyhub/notification-pipeline/internal/db"
	"github.com/notifyhub/notification-pipeline/internal/ledger"
	"github.com/notifyhub/notification-pipeline/internal/metrics"
	"github.com/notifyhub/notification-pipeline/internal/provider"
	"github.com/notifyhub/notification-pipeline/internal/render"
	"github.com/notifyhub/notification-pipeline/internal/repository"
	"github.com/notifyhub/notification-pipeline/internal/tracing"
	"github.com/notifyhub/notification-pipeline/internal/worker"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the consumers, the reminder scheduler and the operator HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serve(ctx, cfg, logger, skipMigrations); err != nil {
				logger.Error("notifier stopped with error", zap.Error(err))
				return err
			}
			logger.Info("notifier stopped cleanly")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply database migrations on start")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, skipMigrations bool) error {
	// ---- tracing ----
	tp, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		Insecure:    cfg.TracingInsecure,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	// ---- database ----
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if !skipMigrations {
		if err := db.Migrate(cfg.DatabaseURL, db.DefaultMigrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	health := map[string]handler.Pinger{"postgres": pool}

	// ---- metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- delivery ledger ----
	var led ledger.Ledger = ledger.NewMemoryLedger(cfg.LedgerTTL, ledger.DefaultMaxEntries)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		led = ledger.NewRedisLedger(rdb, cfg.LedgerTTL)
		health["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		logger.Warn("REDIS_ADDR not set, delivery ledger is kept in memory")
	}

	// ---- broker ----
	b, err := newBroker(ctx, cfg, logger, m.WorkerHooks())
	if err != nil {
		return err
	}
	defer b.Close()

	// ---- channels ----
	catalog, err := render.LoadCatalog(cfg.TemplatesFile)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	deadLetters := repository.NewPgDeadLetterRepository(pool)
	a, err := app.New(cfg, app.Deps{
		Broker:      b,
		People:      repository.NewPgPersonRepository(pool),
		Schedules:   repository.NewPgScheduleRepository(pool),
		DeadLetters: deadLetters,
		Ledger:      led,
		Catalog:     catalog,
		WhatsApp:    provider.NewWhatsAppClient(cfg.WhatsAppBaseURL, cfg.WhatsAppToken, cfg.WhatsAppTimeout),
		Email:       provider.NewSESClient(ses.NewFromConfig(awsCfg), cfg.SESFromAddress),
		Push:        provider.NewSNSClient(sns.NewFromConfig(awsCfg)),
		Registry:    reg,
		Metrics:     m,
		Health:      health,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("notifier running",
		zap.String("broker", cfg.BrokerType),
		zap.String("http_port", cfg.HTTPPort))
	return a.Run(ctx)
}

func newBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger, hooks worker.MetricHooks) (broker.Broker, error) {
	topology := broker.DefaultTopology(cfg.RetryTTL)
	switch cfg.BrokerType {
	case "memory":
		logger.Warn("using the in-memory broker, messages do not survive a restart")
		return broker.NewMemoryBroker(topology, logger, hooks), nil
	default:
		b, err := broker.NewAMQPBroker(ctx, broker.AMQPConfig{
			URL:              cfg.AMQPURL,
			Prefetch:         cfg.Prefetch,
			ReconnectMaxWait: cfg.ReconnectMaxWait,
		}, topology, logger, hooks)
		if err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
		return b, nil
	}
}
