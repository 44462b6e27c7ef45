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

	"github.com/angelmondragon/vertical-shop/internal/inventory"
	"github.com/angelmondragon/vertical-shop/pkg/bus"
	"github.com/angelmondragon/vertical-shop/pkg/config"
	"github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/metrics"
	"github.com/angelmondragon/vertical-shop/pkg/migrate"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/idempotency"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/registry"
	"github.com/angelmondragon/vertical-shop/pkg/redis"
)

const serviceName = "inventory-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "inventory worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"busDriver":   cfg.Bus.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	consumer, err := inventory.NewProductCreatedConsumer(
		inventory.NewRepository(dbClient.DB()),
		logg,
		inventory.WithIdempotency(manager),
		inventory.WithMetrics(metrics.NewConsumerMetrics(reg)),
	)
	if err != nil {
		return err
	}
	eventRegistry, err := registry.NewEventRegistry(bus.ProductsTopic(cfg))
	if err != nil {
		return err
	}

	subscriber, closeSubscriber, err := openSubscriber(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeSubscriber()) }()

	service, err := NewService(subscriber, consumer.BusHandler(eventRegistry), logg)
	if err != nil {
		return err
	}

	handler := metrics.NewHandler(reg, map[string]metrics.Check{
		"database": dbClient.Ping,
		"redis":    redisClient.Ping,
	}, logg)
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, handler, logg); err != nil {
			logg.Error(ctx, "metrics server failed", err)
		}
	}()

	logg.Info(ctx, "starting inventory worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "inventory worker shutting down gracefully")
	return nil
}
