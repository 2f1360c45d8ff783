package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/handoffdesk-backend/internal/agentjobs"
	"github.com/angelmondragon/handoffdesk-backend/internal/conversations"
	"github.com/angelmondragon/handoffdesk-backend/internal/generator"
	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/internal/orchestrator"
	"github.com/angelmondragon/handoffdesk-backend/internal/policy"
	"github.com/angelmondragon/handoffdesk-backend/internal/routing"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db"
	"github.com/angelmondragon/handoffdesk-backend/pkg/idempotency"
	"github.com/angelmondragon/handoffdesk-backend/pkg/instance"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
	"github.com/angelmondragon/handoffdesk-backend/pkg/outbox"
	"github.com/angelmondragon/handoffdesk-backend/pkg/rabbitmq"
	"github.com/angelmondragon/handoffdesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "agent-worker"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "agent-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Instance:    instance.GetID(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "agent worker stopped with error", err)
		os.Exit(1)
	}
	logg.Info(ctx, "agent worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	mq, err := rabbitmq.Dial(ctx, cfg.RabbitMQ, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, mq.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	routingMetrics := metrics.NewRoutingMetrics(reg)
	metrics.Serve(ctx, cfg.Service.MetricsAddr, reg, logg)

	conn := dbClient.DB()
	machine, err := lifecycle.NewMachine(dbClient, lifecycle.NewRepository(conn),
		outbox.NewService(outbox.NewRepository(conn), logg), routingMetrics, logg)
	if err != nil {
		return err
	}

	gen, err := generator.DefaultRegistry().Get(cfg.Agent.Provider, cfg.Agent)
	if err != nil {
		return err
	}
	engine, err := policy.NewEngine(policy.NewRepository(conn), cfg.Routing.PolicyCacheTTL, logg)
	if err != nil {
		return err
	}
	resolver, err := routing.NewResolver(routing.NewRepository(conn), redisClient, cfg.Routing.DefaultQueueTTL, logg)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Params{
		Machine:         machine,
		Conversations:   conversations.NewRepository(conn),
		Generator:       gen,
		Policy:          engine,
		Resolver:        resolver,
		Metrics:         routingMetrics,
		Logger:          logg,
		TranscriptLimit: cfg.Agent.TranscriptLimit,
	})
	if err != nil {
		return err
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.RabbitMQ.IdempotencyTTL)
	if err != nil {
		return err
	}
	handler, err := agentjobs.NewHandler(agentjobs.HandlerParams{
		Runner:  orch,
		Locks:   redisClient,
		Guard:   guard,
		LockTTL: cfg.Routing.RunLockTTL,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	consumer, err := mq.Consumer(handler.Handle)
	if err != nil {
		return err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"queue":       cfg.RabbitMQ.Queue,
		"provider":    cfg.Agent.Provider,
		"concurrency": cfg.RabbitMQ.Concurrency,
	}), "agent worker consuming")

	if runErr := consumer.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
