package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vertical-shop/pkg/bus"
	dbpkg "github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	"github.com/angelmondragon/vertical-shop/pkg/enums"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/metrics"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/payloads"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/registry"
)

// ProductCreatedConsumerName scopes idempotency keys and metrics for the consumer.
const ProductCreatedConsumerName = "inventory.product_created"

type idempotencyRunner interface {
	Run(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

type eventDecoder interface {
	Decode(eventType string, payload json.RawMessage) (payloads.Event, error)
}

// ProductCreatedConsumer opens an empty inventory item for every new product.
// Redelivery is harmless: the insert ignores existing slugs and an optional
// Redis guard skips event ids that were already applied. When ctx carries a
// transaction the insert joins it.
type ProductCreatedConsumer struct {
	repo    *Repository
	guard   idempotencyRunner
	metrics *metrics.ConsumerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type ConsumerOption func(*ProductCreatedConsumer)

// WithIdempotency adds an event-id guard in front of the insert.
func WithIdempotency(guard idempotencyRunner) ConsumerOption {
	return func(c *ProductCreatedConsumer) {
		c.guard = guard
	}
}

func WithMetrics(m *metrics.ConsumerMetrics) ConsumerOption {
	return func(c *ProductCreatedConsumer) {
		c.metrics = m
	}
}

func NewProductCreatedConsumer(repo *Repository, logg *logger.Logger, opts ...ConsumerOption) (*ProductCreatedConsumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	c := &ProductCreatedConsumer{repo: repo, logg: logg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle applies one ProductCreated event. A returned error means the event
// was not applied and should be redelivered.
func (c *ProductCreatedConsumer) Handle(ctx context.Context, eventID uuid.UUID, event payloads.ProductCreated) error {
	logCtx := c.logg.WithConsumer(c.logg.WithEventID(ctx, eventID.String()), ProductCreatedConsumerName)
	logCtx = c.logg.WithField(logCtx, "product_slug", event.ProductSlug)

	if strings.TrimSpace(event.ProductSlug) == "" {
		c.logg.Warn(logCtx, "product created event without slug")
		c.metrics.IncEvent(ProductCreatedConsumerName, metrics.OutcomeDropped)
		return nil
	}

	var created bool
	apply := func(ctx context.Context) error {
		return c.repo.Within(ctx, func(repo *Repository) error {
			now := c.now().UTC()
			inserted, err := repo.EnsureItem(ctx, &models.InventoryItem{
				ProductSlug: event.ProductSlug,
				ProductID:   event.ProductID,
				Quantity:    0,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			created = inserted
			return err
		})
	}

	// A tx-bound apply commits or rolls back with the caller's transaction, so a
	// Redis mark could outlive it. The slug conflict alone dedupes there.
	if c.guard != nil && dbpkg.TxFromContext(ctx) == nil {
		skipped, err := c.guard.Run(logCtx, ProductCreatedConsumerName, eventID, apply)
		if err != nil {
			c.logg.Error(logCtx, "failed to apply product created event", err)
			return err
		}
		if skipped {
			c.logg.Info(logCtx, "event already processed")
			c.metrics.IncEvent(ProductCreatedConsumerName, metrics.OutcomeDuplicate)
			return nil
		}
	} else if err := apply(logCtx); err != nil {
		c.logg.Error(logCtx, "failed to apply product created event", err)
		return err
	}

	if !created {
		c.logg.Info(logCtx, "inventory item already exists")
		c.metrics.IncEvent(ProductCreatedConsumerName, metrics.OutcomeDuplicate)
		return nil
	}
	c.logg.Info(logCtx, "inventory item created")
	c.metrics.IncEvent(ProductCreatedConsumerName, metrics.OutcomeApplied)
	return nil
}

// BusHandler adapts the consumer to bus deliveries. Other event types on the
// topic and messages that can never decode are acknowledged and dropped.
func (c *ProductCreatedConsumer) BusHandler(decoder eventDecoder) bus.Handler {
	return func(ctx context.Context, msg bus.Message) error {
		logCtx := c.logg.WithEventType(c.logg.WithEventID(ctx, msg.ID), msg.Type)
		logCtx = c.logg.WithField(logCtx, "topic", msg.Topic)
		if msg.Type != string(enums.EventProductCreated) {
			c.logg.Debug(logCtx, "event not handled by inventory consumer")
			return nil
		}

		eventID, err := uuid.Parse(msg.ID)
		if err != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invalid event id")
			c.metrics.IncEvent(ProductCreatedConsumerName, metrics.OutcomeDropped)
			return nil
		}

		decoded, err := decoder.Decode(msg.Type, msg.Data)
		if err != nil {
			var nonRetry registry.NonRetryableError
			if errors.As(err, &nonRetry) {
				c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "undecodable product created event")
				c.metrics.IncEvent(ProductCreatedConsumerName, metrics.OutcomeDropped)
				return nil
			}
			return err
		}
		event, ok := decoded.(payloads.ProductCreated)
		if !ok {
			c.logg.Warn(logCtx, "unexpected payload for product created event")
			c.metrics.IncEvent(ProductCreatedConsumerName, metrics.OutcomeDropped)
			return nil
		}
		return c.Handle(ctx, eventID, event)
	}
}
