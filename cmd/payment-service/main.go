package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/coordinator"
	"github.com/jcmexdev/orchestrated-sagas/internal/participant"
	"github.com/jcmexdev/orchestrated-sagas/internal/payment-service/adapters/memory"
	"github.com/jcmexdev/orchestrated-sagas/internal/payment-service/adapters/postgres"
	"github.com/jcmexdev/orchestrated-sagas/internal/payment-service/app"
	"github.com/jcmexdev/orchestrated-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/config"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/httpserver"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	natsbus "github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging/nats"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/telemetry"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

func main() {
	cfg, err := config.Load("payment-service")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Service, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Start(ctx, cfg.OTel.Enabled, telemetry.TracerConfig{
		Service:     cfg.Service,
		Endpoint:    cfg.OTel.Endpoint,
		Environment: cfg.OTel.Environment,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	var (
		repo   domain.Repository
		checks []httpserver.Option
	)
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		repo = pg
		checks = append(checks, httpserver.WithCheck("postgres", pg.Ping))
	} else {
		logger.Warn("postgres.dsn not set, payments are kept in memory and lost on restart")
		repo = memory.New()
	}

	bus, err := natsbus.Connect(ctx, cfg.Bus(saga.TopicNames()), logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "url", cfg.NATS.URL, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	svc := app.NewService(repo, cfg.Saga.MinAmount, logger)
	stage, ok := coordinator.DefaultPipeline().Stage(svc.Source())
	if !ok {
		logger.Error("no pipeline stage for participant", "source", svc.Source())
		os.Exit(1)
	}

	handler := participant.New(svc, bus,
		participant.WithLogger(logger),
		participant.WithMaxAttempts(cfg.NATS.MaxDeliver),
	)
	unsubscribe, err := handler.Subscribe(ctx, bus, cfg.Service, stage.Topic, stage.RollbackTopic,
		interceptors.TraceConsumerInterceptor(cfg.Service),
	)
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	defer unsubscribe()

	opts := append([]httpserver.Option{
		httpserver.WithLogger(logger),
		httpserver.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpserver.WithCheck("nats", bus.Ping),
	}, checks...)
	srv := httpserver.New(cfg.HTTP.Addr, opts...)

	logger.Info("payment service running", "forward", stage.Topic, "rollback", stage.RollbackTopic, "min_amount", cfg.Saga.MinAmount)
	if err := srv.Run(ctx); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}
