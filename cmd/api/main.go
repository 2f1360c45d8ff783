package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/handoffdesk-backend/api/controllers"
	"github.com/angelmondragon/handoffdesk-backend/api/routes"
	"github.com/angelmondragon/handoffdesk-backend/internal/agentjobs"
	"github.com/angelmondragon/handoffdesk-backend/internal/assignments"
	"github.com/angelmondragon/handoffdesk-backend/internal/conversations"
	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/internal/routing"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db"
	"github.com/angelmondragon/handoffdesk-backend/pkg/env"
	"github.com/angelmondragon/handoffdesk-backend/pkg/instance"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
	"github.com/angelmondragon/handoffdesk-backend/pkg/migrate"
	"github.com/angelmondragon/handoffdesk-backend/pkg/outbox"
	"github.com/angelmondragon/handoffdesk-backend/pkg/rabbitmq"
	"github.com/angelmondragon/handoffdesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	routingMetrics := metrics.NewRoutingMetrics(reg)

	conn := dbClient.DB()
	lifecycleRepo := lifecycle.NewRepository(conn)
	machine, err := lifecycle.NewMachine(dbClient, lifecycleRepo, outbox.NewService(outbox.NewRepository(conn), logg), routingMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create lifecycle machine", err)
		os.Exit(1)
	}

	conversationService, err := conversations.NewService(conversations.ServiceParams{
		TxRunner: dbClient,
		Repo:     conversations.NewRepository(conn),
		History:  lifecycleRepo,
		Machine:  machine,
		Enqueuer: enqueuer,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create conversations service", err)
		os.Exit(1)
	}

	assignmentService, err := assignments.NewService(assignments.ServiceParams{
		TxRunner: dbClient,
		Repo:     assignments.NewRepository(conn),
		Machine:  machine,
		Enqueuer: enqueuer,
		Metrics:  routingMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create assignments service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:           cfg,
			Logger:           logg,
			Gatherer:         reg,
			HTTPMetrics:      metrics.NewHTTPMetrics(reg),
			IdempotencyStore: redisClient,
			CORSOrigins:      cfg.App.CORSOrigins,
			Ready: map[string]controllers.Pinger{
				"db":       dbClient,
				"redis":    redisClient,
				"rabbitmq": mq,
			},
			Conversations: conversationService,
			Queues:        routing.NewRepository(conn),
			Assignments:   assignmentService,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api shutdown", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "api server stopped")
}
