package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/vertical-shop/pkg/db"
	"github.com/angelmondragon/vertical-shop/pkg/db/dbtest"
	"github.com/angelmondragon/vertical-shop/pkg/db/models"
	"github.com/angelmondragon/vertical-shop/pkg/enums"
	"github.com/angelmondragon/vertical-shop/pkg/logger"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/payloads"
)

type unknownEvent struct{}

func (unknownEvent) EventType() enums.OutboxEventType { return "products.unknown" }

func newTestService(t *testing.T) (*Service, *Repository, *dbpkg.Client, *bytes.Buffer) {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	repo := NewRepository(conn)
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	svc := NewService(repo, logg)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	}
	return svc, repo, dbpkg.Wrap(conn), buf
}

func TestEnqueueWritesPendingRow(t *testing.T) {
	ctx := context.Background()
	svc, repo, client, buf := newTestService(t)

	event := payloads.ProductCreated{ProductID: uuid.New(), ProductSlug: "widget", ProductName: "Widget"}
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Enqueue(ctx, tx, event)
	}))

	var rows []models.OutboxMessage
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, enums.EventProductCreated, row.Type)
	assert.Equal(t, uuid.Version(7), row.ID.Version())
	assert.True(t, row.Pending())
	assert.Nil(t, row.ErrorMessage)
	_, offset := row.CreatedAt.Zone()
	assert.Zero(t, offset)
	assert.Equal(t, 14, row.CreatedAt.Hour())

	var decoded payloads.ProductCreated
	require.NoError(t, json.Unmarshal(row.Payload, &decoded))
	assert.Equal(t, event, decoded)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
	assert.Contains(t, buf.String(), "outbox message queued")
	assert.Contains(t, buf.String(), row.ID.String())
}

func TestEnqueueRolledBackWithBusinessWrite(t *testing.T) {
	ctx := context.Background()
	svc, repo, client, _ := newTestService(t)

	boom := errors.New("business rule violated")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Enqueue(ctx, tx, payloads.ProductCreated{ProductID: uuid.New(), ProductSlug: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestEnqueueIDsFollowInsertionOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo, client, _ := newTestService(t)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		for _, slug := range []string{"a", "b", "c"} {
			if err := svc.Enqueue(ctx, tx, payloads.ProductCreated{ProductID: uuid.New(), ProductSlug: slug}); err != nil {
				return err
			}
		}
		return nil
	}))

	rows, err := repo.ClaimBatch(client.DB(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	var slugs []string
	for _, row := range rows {
		var decoded payloads.ProductCreated
		require.NoError(t, json.Unmarshal(row.Payload, &decoded))
		slugs = append(slugs, decoded.ProductSlug)
	}
	assert.Equal(t, []string{"a", "b", "c"}, slugs)
}

func TestEnqueueValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, client, _ := newTestService(t)

	err := svc.Enqueue(ctx, nil, payloads.ProductCreated{})
	assert.ErrorIs(t, err, ErrTransactionRequired)

	err = svc.Enqueue(ctx, client.DB(), nil)
	assert.Error(t, err)

	err = svc.Enqueue(ctx, client.DB(), unknownEvent{})
	assert.Error(t, err)
}
