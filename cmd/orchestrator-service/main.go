package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/coordinator"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/config"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/httpserver"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	natsbus "github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging/nats"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/telemetry"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

func main() {
	cfg, err := config.Load("orchestrator-service")
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

	controller, err := coordinator.NewController(coordinator.DefaultPipeline())
	if err != nil {
		logger.Error("invalid saga pipeline", "error", err)
		os.Exit(1)
	}

	bus, err := natsbus.Connect(ctx, cfg.Bus(saga.TopicNames()), logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "url", cfg.NATS.URL, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	orchestrator := coordinator.NewOrchestrator(controller, bus, coordinator.WithLogger(logger))
	unsubscribe, err := orchestrator.Subscribe(ctx, bus, cfg.Service, interceptors.TraceConsumerInterceptor(cfg.Service))
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	defer unsubscribe()

	srv := httpserver.New(cfg.HTTP.Addr,
		httpserver.WithLogger(logger),
		httpserver.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpserver.WithCheck("nats", bus.Ping),
	)

	logger.Info("orchestrator running", "stages", len(coordinator.DefaultPipeline().Stages))
	if err := srv.Run(ctx); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}
