package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/app"
	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/httpx"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/config"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/httpserver"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	natsbus "github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging/nats"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/telemetry"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

func main() {
	cfg, err := config.Load("order-service")
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

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.SQLite.Path, "error", err)
		os.Exit(1)
	}
	db, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.SQLite.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bus, err := natsbus.Connect(ctx, cfg.Bus(saga.TopicNames()), logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "url", cfg.NATS.URL, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	orderRepo := sqlite.NewOrderRepository(db)
	eventRepo := sqlite.NewEventRepository(db)
	orderService := app.NewOrderService(orderRepo, eventRepo, bus, logger)
	eventService := app.NewEventService(eventRepo, orderRepo, logger)

	unsubscribe, err := app.SubscribeNotifyEnding(ctx, bus, cfg.Service, eventService,
		interceptors.TraceConsumerInterceptor(cfg.Service),
	)
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	defer unsubscribe()

	srv := httpserver.New(cfg.HTTP.Addr,
		httpserver.WithLogger(logger),
		httpserver.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpserver.WithCheck("nats", bus.Ping),
		httpserver.WithCheck("sqlite", db.Ping),
	)
	srv.Mount("/", httpx.NewRouter(httpx.NewHandler(orderService, eventService)))

	logger.Info("order service running", "addr", cfg.HTTP.Addr)
	if err := srv.Run(ctx); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}
