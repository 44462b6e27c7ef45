package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/vertical-shop/pkg/bus"
	"github.com/angelmondragon/vertical-shop/pkg/config"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/pubsub"
)

// Service drains product events from the bus into the inventory consumer.
type Service struct {
	subscriber bus.Subscriber
	handler    bus.Handler
	logg       *logger.Logger
}

func NewService(subscriber bus.Subscriber, handler bus.Handler, logg *logger.Logger) (*Service, error) {
	if subscriber == nil {
		return nil, errors.New("subscriber is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{subscriber: subscriber, handler: handler, logg: logg}, nil
}

// Run receives until ctx is canceled. Failed deliveries are left to the
// driver to redeliver.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.subscriber.Receive(ctx, s.handle)
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.logg.Info(ctx, "inventory worker context canceled")
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("receive product events: %w", err)
	}
	return nil
}

func (s *Service) handle(ctx context.Context, msg bus.Message) error {
	if err := s.handler(ctx, msg); err != nil {
		logCtx := s.logg.WithEventType(s.logg.WithEventID(ctx, msg.ID), msg.Type)
		logCtx = s.logg.WithField(logCtx, "topic", msg.Topic)
		s.logg.Error(logCtx, "handler error, message will be redelivered", err)
		return err
	}
	return nil
}

// openSubscriber builds the subscriber for the configured bus driver. The memory
// driver only works inside the relay process and is rejected here.
func openSubscriber(ctx context.Context, cfg *config.Config, logg *logger.Logger) (bus.Subscriber, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Bus.Driver)) {
	case config.BusDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureSubscription(ctx, cfg.PubSub.InventorySubscription); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		sub, err := bus.NewPubSubSubscriber(client.InventorySubscription(), cfg.PubSub.ProductsTopic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return sub, client.Close, nil
	case config.BusDriverKafka:
		sub, err := bus.NewKafkaSubscriber(cfg.Kafka, cfg.Kafka.ProductsTopic, cfg.Kafka.InventoryGroup)
		if err != nil {
			return nil, nil, err
		}
		return sub, sub.Close, nil
	default:
		return nil, nil, fmt.Errorf("bus driver %q cannot feed a standalone inventory worker", cfg.Bus.Driver)
	}
}
