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
	"github.com/angelmondragon/vertical-shop/pkg/outbox"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/registry"
)

const serviceName = "outbox-publisher"

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
		logg.Error(context.Background(), "outbox publisher stopped unexpectedly", err)
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

	driver, err := bus.Open(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, driver.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eventRegistry, err := registry.NewEventRegistry(bus.ProductsTopic(cfg))
	if err != nil {
		return err
	}

	if memory, ok := driver.(*bus.Memory); ok {
		if err := wireInProcessConsumers(ctx, cfg, logg, dbClient, memory, eventRegistry, metrics.NewConsumerMetrics(reg)); err != nil {
			return err
		}
	}

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Bus:        driver,
		Repository: outbox.NewRepository(dbClient.DB(), outbox.WithSkipLocked(cfg.Outbox.ClaimSkipLocked)),
		Registry:   eventRegistry,
		Metrics:    metrics.NewRelayMetrics(reg),
	})
	if err != nil {
		return err
	}

	handler := metrics.NewHandler(reg, map[string]metrics.Check{
		"database": dbClient.Ping,
		"bus":      driver.Ping,
	}, logg)
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, handler, logg); err != nil {
			logg.Error(ctx, "metrics server failed", err)
		}
	}()

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

// wireInProcessConsumers subscribes the inventory consumer to the memory bus so
// a single process relays and consumes. Deliveries run inside the relay's batch
// transaction, so the inventory row commits or rolls back with the outcome and
// no Redis guard is involved.
func wireInProcessConsumers(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	memory *bus.Memory,
	decoder *registry.EventRegistry,
	consumerMetrics *metrics.ConsumerMetrics,
) error {
	consumer, err := inventory.NewProductCreatedConsumer(
		inventory.NewRepository(dbClient.DB()),
		logg,
		inventory.WithMetrics(consumerMetrics),
	)
	if err != nil {
		return err
	}
	memory.Subscribe(bus.ProductsTopic(cfg), consumer.BusHandler(decoder))
	logg.Info(ctx, "inventory consumer subscribed to in-process bus")
	return nil
}
