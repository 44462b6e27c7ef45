package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vertical-shop/internal/inventory"
	product "github.com/angelmondragon/vertical-shop/internal/products"
	"github.com/angelmondragon/vertical-shop/pkg/bus"
	"github.com/angelmondragon/vertical-shop/pkg/config"
	dbpkg "github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/dbtest"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	"github.com/angelmondragon/vertical-shop/pkg/enums"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/migrate"
	"github.com/angelmondragon/vertical-shop/pkg/outbox"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/registry"
)

const e2eTopic = "vshop-product-events"

var errCrashBeforeCommit = errors.New("process died before commit")

// shop wires the catalog, the relay and the inventory consumer over the memory
// bus. newShop gives inventory its own database, as a separate service would
// have; newSingleProcessShop shares one database the way main does.
type shop struct {
	catalog     product.Service
	inventory   *inventory.Repository
	bus         *bus.Memory
	relay       *Service
	catalogDB   *gorm.DB
	crashCommit bool
}

func newShop(t *testing.T) *shop {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "e2e", Output: io.Discard})

	catalogDB := dbtest.NewSQLite(t)
	client := dbpkg.Wrap(catalogDB)
	outboxRepo := outbox.NewRepository(catalogDB)
	catalog, err := product.NewService(product.NewRepository(catalogDB), client, outbox.NewService(outboxRepo, logg), logg)
	require.NoError(t, err)

	inventoryRepo := inventory.NewRepository(dbtest.NewSQLite(t))
	consumer, err := inventory.NewProductCreatedConsumer(inventoryRepo, logg)
	require.NoError(t, err)

	events, err := registry.NewEventRegistry(e2eTopic)
	require.NoError(t, err)
	memory := bus.NewMemory()
	memory.Subscribe(e2eTopic, consumer.BusHandler(events))

	s := &shop{
		catalog:   catalog,
		inventory: inventoryRepo,
		bus:       memory,
		catalogDB: catalogDB,
	}
	relay, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      100,
			Delay:          time.Millisecond,
			PublishTimeout: time.Second,
		}},
		Logger:     logg,
		DB:         &crashingDB{client: client, crash: &s.crashCommit},
		Bus:        memory,
		Repository: outboxRepo,
		Registry:   events,
	})
	require.NoError(t, err)
	s.relay = relay
	return s
}

// newSingleProcessShop wires one sqlite file the way main does with the memory
// driver: catalog, outbox and inventory share a connection pool and the
// consumer is subscribed by wireInProcessConsumers.
func newSingleProcessShop(t *testing.T) *shop {
	t.Helper()
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "e2e", Output: io.Discard})

	cfg := &config.Config{
		DB: config.DBConfig{
			Driver: config.DBDriverSQLite,
			DSN:    "file:" + filepath.Join(t.TempDir(), "shop.db") + "?_busy_timeout=5000&_foreign_keys=1",
		},
		Bus:    config.BusConfig{Driver: config.BusDriverMemory},
		PubSub: config.PubSubConfig{ProductsTopic: e2eTopic},
		Outbox: config.OutboxConfig{
			BatchSize:      100,
			Delay:          time.Millisecond,
			PublishTimeout: time.Second,
		},
	}

	client, err := dbpkg.New(ctx, cfg.DB, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, migrate.Up(ctx, cfg.DB, client, logg))

	conn := client.DB()
	outboxRepo := outbox.NewRepository(conn)
	catalog, err := product.NewService(product.NewRepository(conn), client, outbox.NewService(outboxRepo, logg), logg)
	require.NoError(t, err)

	events, err := registry.NewEventRegistry(bus.ProductsTopic(cfg))
	require.NoError(t, err)
	memory := bus.NewMemory()
	require.NoError(t, wireInProcessConsumers(ctx, cfg, logg, client, memory, events, nil))

	s := &shop{
		catalog:   catalog,
		inventory: inventory.NewRepository(conn),
		bus:       memory,
		catalogDB: conn,
	}
	relay, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         &crashingDB{client: client, crash: &s.crashCommit},
		Bus:        memory,
		Repository: outboxRepo,
		Registry:   events,
	})
	require.NoError(t, err)
	s.relay = relay
	return s
}

func (s *shop) outboxRows(t *testing.T) []models.OutboxMessage {
	t.Helper()
	var rows []models.OutboxMessage
	require.NoError(t, s.catalogDB.Order("created_at ASC, id ASC").Find(&rows).Error)
	return rows
}

// crashingDB commits normally unless crash is set, in which case the batch
// does all of its work and then rolls back as if the process died.
type crashingDB struct {
	client *dbpkg.Client
	crash  *bool
}

func (c *crashingDB) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func (c *crashingDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		if *c.crash {
			return errCrashBeforeCommit
		}
		return nil
	})
}

func TestRelayDeliversWidgetToInventory(t *testing.T) {
	ctx := context.Background()
	s := newShop(t)

	created, err := s.catalog.CreateProduct(ctx, product.CreateProductInput{Slug: "widget", Name: "Widget"})
	require.NoError(t, err)

	_, err = s.inventory.FindBySlug(ctx, "widget")
	require.Error(t, err, "nothing reaches inventory before the relay runs")

	result, err := s.relay.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, batchResult{claimed: 1, published: 1}, result)

	item, err := s.inventory.FindBySlug(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)
	assert.Equal(t, created.ID, item.ProductID)

	rows := s.outboxRows(t)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Pending())
	assert.Nil(t, rows[0].ErrorMessage)

	published := s.bus.Published()
	require.Len(t, published, 1)
	assert.Equal(t, rows[0].ID.String(), published[0].ID)
	assert.Equal(t, "widget", published[0].Key)
	assert.Equal(t, string(enums.EventProductCreated), published[0].Attributes[bus.AttrEventType])

	result, err = s.relay.processBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.claimed, "a terminal row is never claimed again")
}

func TestRelayPublishesInCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := newShop(t)

	slugs := []string{"zeta", "alpha", "mid"}
	for _, slug := range slugs {
		_, err := s.catalog.CreateProduct(ctx, product.CreateProductInput{Slug: slug, Name: slug})
		require.NoError(t, err)
	}

	_, err := s.relay.processBatch(ctx)
	require.NoError(t, err)

	published := s.bus.Published()
	require.Len(t, published, len(slugs))
	for i, slug := range slugs {
		assert.Equal(t, slug, published[i].Key)
	}
}

func TestRelayRepublishesAfterCrashAndConsumerStaysIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newShop(t)

	_, err := s.catalog.CreateProduct(ctx, product.CreateProductInput{Slug: "sku-1", Name: "Sku"})
	require.NoError(t, err)

	s.crashCommit = true
	_, err = s.relay.processBatch(ctx)
	require.ErrorIs(t, err, errCrashBeforeCommit)
	require.Len(t, s.bus.Published(), 1)
	assert.True(t, s.outboxRows(t)[0].Pending(), "the outcome rolled back with the batch")

	s.crashCommit = false
	result, err := s.relay.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.published)

	published := s.bus.Published()
	require.Len(t, published, 2)
	assert.Equal(t, published[0].ID, published[1].ID, "the same event is delivered twice")

	count, err := s.inventory.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.False(t, s.outboxRows(t)[0].Pending())
}

func TestRelayIsolatesConsumerFailure(t *testing.T) {
	ctx := context.Background()
	s := newShop(t)
	s.bus.Subscribe(e2eTopic, func(_ context.Context, msg bus.Message) error {
		if msg.Key == "broken" {
			return errors.New("downstream rejected broken")
		}
		return nil
	})

	for _, slug := range []string{"first", "broken", "last"} {
		_, err := s.catalog.CreateProduct(ctx, product.CreateProductInput{Slug: slug, Name: slug})
		require.NoError(t, err)
	}

	result, err := s.relay.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, batchResult{claimed: 3, published: 2, failed: 1}, result)

	rows := s.outboxRows(t)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.False(t, row.Pending())
	}
	require.NotNil(t, rows[1].ErrorMessage)
	assert.Contains(t, *rows[1].ErrorMessage, "downstream rejected broken")
	assert.Nil(t, rows[0].ErrorMessage)
	assert.Nil(t, rows[2].ErrorMessage)

	count, err := s.inventory.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count, "the inventory consumer still applied every event")
}

func TestRelayRunDrainsUntilCanceled(t *testing.T) {
	s := newShop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.catalog.CreateProduct(ctx, product.CreateProductInput{Slug: "widget", Name: "Widget"})
	require.NoError(t, err)

	cycles := 0
	s.relay.sleep = func(ctx context.Context, d time.Duration) error {
		cycles++
		if cycles == 2 {
			cancel()
		}
		return sleepContext(ctx, d)
	}
	require.ErrorIs(t, s.relay.Run(ctx), context.Canceled)

	count, err := s.inventory.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Len(t, s.bus.Published(), 1)
}

func TestSingleProcessRelayAppliesInventoryOnSharedDatabase(t *testing.T) {
	ctx := context.Background()
	s := newSingleProcessShop(t)

	for _, slug := range []string{"widget", "gadget", "gizmo"} {
		_, err := s.catalog.CreateProduct(ctx, product.CreateProductInput{Slug: slug, Name: slug})
		require.NoError(t, err)
	}

	started := time.Now()
	result, err := s.relay.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, batchResult{claimed: 3, published: 3}, result)
	assert.Less(t, time.Since(started), 2*time.Second, "deliveries must not wait on the batch's own lock")

	for _, row := range s.outboxRows(t) {
		assert.False(t, row.Pending())
		assert.Nil(t, row.ErrorMessage)
	}
	count, err := s.inventory.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	item, err := s.inventory.FindBySlug(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)
}

func TestSingleProcessInventoryRollsBackWithCrashedBatch(t *testing.T) {
	ctx := context.Background()
	s := newSingleProcessShop(t)

	_, err := s.catalog.CreateProduct(ctx, product.CreateProductInput{Slug: "sku-1", Name: "Sku"})
	require.NoError(t, err)

	s.crashCommit = true
	_, err = s.relay.processBatch(ctx)
	require.ErrorIs(t, err, errCrashBeforeCommit)

	count, err := s.inventory.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "the inventory row rolls back with the batch")
	assert.True(t, s.outboxRows(t)[0].Pending())

	s.crashCommit = false
	result, err := s.relay.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, batchResult{claimed: 1, published: 1}, result)

	count, err = s.inventory.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Len(t, s.bus.Published(), 2)
}
