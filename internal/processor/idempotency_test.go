package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyGuard_Lifecycle(t *testing.T) {
	_, rdb := setupTestRedis(t)
	guard := NewIdempotencyGuard(rdb, DefaultIdempotencyConfig())
	ctx := context.Background()

	d, err := guard.Acquire(ctx, "txn_1:completed")
	require.NoError(t, err)
	assert.False(t, d.IsRetry())

	_, err = guard.Acquire(ctx, "txn_1:completed")
	assert.ErrorIs(t, err, ErrLockAcquireFailed, "second consumer must not get the lock")

	require.NoError(t, guard.Succeed(ctx, d))

	delivered, err := guard.Delivered(ctx, "txn_1:completed")
	require.NoError(t, err)
	assert.True(t, delivered)

	_, err = guard.Acquire(ctx, "txn_1:completed")
	assert.ErrorIs(t, err, ErrAlreadyDelivered)

	// other statuses of the same transaction are separate keys
	other, err := guard.Acquire(ctx, "txn_1:failed")
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, other))
}

func TestIdempotencyGuard_RetriesThenGivesUp(t *testing.T) {
	_, rdb := setupTestRedis(t)
	cfg := DefaultIdempotencyConfig()
	cfg.MaxRetries = 2
	guard := NewIdempotencyGuard(rdb, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := guard.Acquire(ctx, "txn_2:failed")
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, i, d.Attempts)
		assert.Equal(t, i > 0, d.IsRetry())
		require.NoError(t, guard.Fail(ctx, d, errors.New("smtp down")))
	}

	n, err := guard.Attempts(ctx, "txn_2:failed")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = guard.Acquire(ctx, "txn_2:failed")
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestIdempotencyGuard_SuccessClearsAttempts(t *testing.T) {
	_, rdb := setupTestRedis(t)
	guard := NewIdempotencyGuard(rdb, DefaultIdempotencyConfig())
	ctx := context.Background()

	d, err := guard.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, guard.Fail(ctx, d, errors.New("x")))

	d, err = guard.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Attempts)
	require.NoError(t, guard.Succeed(ctx, d))

	n, err := guard.Attempts(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIdempotencyGuard_LockExpires(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	cfg := DefaultIdempotencyConfig()
	cfg.LockTTL = time.Second
	guard := NewIdempotencyGuard(rdb, cfg)
	ctx := context.Background()

	_, err := guard.Acquire(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = guard.Acquire(ctx, "k")
	assert.NoError(t, err, "a crashed holder must not block forever")
}

func TestIdempotencyGuard_ReleaseNil(t *testing.T) {
	_, rdb := setupTestRedis(t)
	guard := NewIdempotencyGuard(rdb, DefaultIdempotencyConfig())
	assert.NoError(t, guard.Release(context.Background(), nil))
}
