package repository

import (
	"context"
	"testing"
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRepository_EmptyLedger(t *testing.T) {
	_, rdb := setupTestRedis(t)
	repo := NewSnapshotRepository(rdb, "")

	txns, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, txns)
	assert.Empty(t, txns)
}

func TestSnapshotRepository_PutPrependsAndPersists(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	repo := NewSnapshotRepository(rdb, "ledger")
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Put(ctx, newTxn("txn_1", "alice", model.StatusPending, now)))
	require.NoError(t, repo.Put(ctx, newTxn("txn_2", "bob", model.StatusPending, now.Add(time.Second))))

	assert.True(t, mr.Exists("test:ledger"))

	txns, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "txn_2", txns[0].ID)
	assert.Equal(t, "txn_1", txns[1].ID)

	assert.ErrorIs(t, repo.Put(ctx, newTxn("txn_1", "alice", model.StatusPending, now)), ErrDuplicate)

	got, err := repo.Get(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.True(t, got.Amount.Equal(txns[1].Amount))

	_, err = repo.Get(ctx, "txn_3")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := repo.ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "txn_2", mine[0].ID)
}

func TestSnapshotRepository_SaveReplacesWholeCollection(t *testing.T) {
	_, rdb := setupTestRedis(t)
	repo := NewSnapshotRepository(rdb, "ledger")
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Put(ctx, newTxn("txn_1", "alice", model.StatusPending, now)))

	// a stale writer that never saw txn_1 wins
	require.NoError(t, repo.Save(ctx, []*model.Transaction{newTxn("txn_9", "carol", model.StatusPending, now)}))

	txns, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "txn_9", txns[0].ID)
}

func TestSnapshotRepository_CorruptSnapshot(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	repo := NewSnapshotRepository(rdb, "ledger")

	require.NoError(t, mr.Set("test:ledger", "{not json"))

	_, err := repo.Load(context.Background())
	assert.Error(t, err)
}
