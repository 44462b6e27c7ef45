//go:build integration

package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vertical-shop/pkg/db/dbtest"
)

func TestClaimBatchSkipLockedPartitionsConcurrentRelays(t *testing.T) {
	conn := dbtest.StartPostgres(t)
	require.NoError(t, conn.Exec("DELETE FROM outbox_messages").Error)

	repo := NewRepository(conn, WithSkipLocked(true))
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		seedMessage(t, conn, repo, base.Add(time.Duration(i)*time.Second))
	}

	first := conn.Begin()
	require.NoError(t, first.Error)
	defer first.Rollback()
	second := conn.Begin()
	require.NoError(t, second.Error)
	defer second.Rollback()

	claimedFirst, err := repo.ClaimBatch(first, 2)
	require.NoError(t, err)
	require.Len(t, claimedFirst, 2)

	claimedSecond, err := repo.ClaimBatch(second, 4)
	require.NoError(t, err)
	require.Len(t, claimedSecond, 2)

	seen := map[uuid.UUID]bool{}
	for _, msg := range append(claimedFirst, claimedSecond...) {
		assert.False(t, seen[msg.ID], "message %s claimed twice", msg.ID)
		seen[msg.ID] = true
	}
	assert.True(t, claimedFirst[0].CreatedAt.Before(claimedSecond[0].CreatedAt))
}

func TestMarkOutcomeOnPostgresIsTerminal(t *testing.T) {
	conn := dbtest.StartPostgres(t)
	repo := NewRepository(conn)
	msg := seedMessage(t, conn, repo, time.Now())

	require.NoError(t, repo.MarkOutcome(conn, msg.ID, time.Now().UTC(), nil))
	assert.ErrorIs(t, repo.MarkOutcome(conn, msg.ID, time.Now().UTC(), nil), ErrMessageNotPending)
}
