package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/handoffdesk-backend/internal/agentjobs"
	"github.com/angelmondragon/handoffdesk-backend/internal/conversations"
	"github.com/angelmondragon/handoffdesk-backend/internal/cron"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db"
	"github.com/angelmondragon/handoffdesk-backend/pkg/instance"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
	"github.com/angelmondragon/handoffdesk-backend/pkg/outbox"
	"github.com/angelmondragon/handoffdesk-backend/pkg/rabbitmq"
	"github.com/angelmondragon/handoffdesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Instance:    instance.GetID(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mq, err := rabbitmq.Dial(ctx, cfg.RabbitMQ, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to rabbitmq", err)
		os.Exit(1)
	}
	defer func() {
		if err := mq.Close(); err != nil {
			logg.Error(context.Background(), "error closing rabbitmq", err)
		}
	}()
	publisher, err := mq.Publisher()
	if err != nil {
		logg.Error(ctx, "failed to open rabbitmq publisher", err)
		os.Exit(1)
	}
	enqueuer, err := agentjobs.NewEnqueuer(publisher, cfg.RabbitMQ.Queue)
	if err != nil {
		logg.Error(ctx, "failed to create run-agent enqueuer", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	stalledJob, err := cron.NewStalledRunsJob(cron.StalledRunsJobParams{
		Logger:     logg,
		Store:      conversations.NewRepository(conn),
		Enqueuer:   enqueuer,
		StallAfter: cfg.Routing.StallAfter,
		BatchSize:  cfg.Routing.StalledBatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to create stalled runs job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(conn),
		Retention:  cfg.Routing.OutboxRetentionDays,
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox retention job", err)
		os.Exit(1)
	}

	dlqJob, err := cron.NewDLQDepthJob(logg, outbox.NewDLQRepository(conn), metrics.NewDLQDepth(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(ctx, "failed to create dlq depth job", err)
		os.Exit(1)
	}

	lock, err := redis.NewLock(redisClient, lockKey(cfg.App.Env), 2*cfg.Routing.CronInterval)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(stalledJob, dlqJob)
	registry.Schedule(retentionJob, cfg.Routing.OutboxRetentionEvery)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Routing.CronInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")
	metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return redis.Key("cron-worker", "lock", env)
}
