package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/vertical-shop/pkg/config"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/pubsub"
)

// ProductsTopic resolves the product events topic for the configured driver.
func ProductsTopic(cfg *config.Config) string {
	switch strings.ToLower(strings.TrimSpace(cfg.Bus.Driver)) {
	case config.BusDriverKafka:
		return cfg.Kafka.ProductsTopic
	default:
		return cfg.PubSub.ProductsTopic
	}
}

// Open builds the publishing driver selected by VSHOP_BUS_DRIVER.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Driver, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Bus.Driver))
	switch driver {
	case config.BusDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, err
		}
		return NewPubSubPublisher(client)
	case config.BusDriverKafka:
		return NewKafkaPublisher(cfg.Kafka)
	case config.BusDriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.Bus.Driver)
	}
}
