package inventory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/dbtest"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vertical-shop/pkg/errors"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
)

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, dbpkg.Wrap(conn), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return svc, repo
}

func seedItem(t *testing.T, repo *Repository, slug string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := repo.EnsureItem(context.Background(), &models.InventoryItem{ProductSlug: slug, ProductID: uuid.New(), CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
}

func TestReceiveAndRestockAddQuantity(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	seedItem(t, repo, "widget")

	item, err := svc.Receive(ctx, AdjustInput{ProductSlug: "widget", Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)

	item, err = svc.Restock(ctx, AdjustInput{ProductSlug: " widget ", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 13, item.Quantity)

	qty, err := svc.QuantityInStock(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, 13, qty)

	item, err = svc.Receive(ctx, AdjustInput{ProductSlug: "widget", Quantity: 0})
	require.NoError(t, err)
	assert.Equal(t, 13, item.Quantity)
}

func TestAdjustValidation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	seedItem(t, repo, "widget")

	_, err := svc.Receive(ctx, AdjustInput{ProductSlug: "widget", Quantity: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = svc.Restock(ctx, AdjustInput{Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = svc.Receive(ctx, AdjustInput{ProductSlug: "unknown", Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = svc.QuantityInStock(ctx, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = svc.QuantityInStock(ctx, "unknown")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	qty, err := svc.QuantityInStock(ctx, "widget")
	require.NoError(t, err)
	assert.Zero(t, qty)
}
