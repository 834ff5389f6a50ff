package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/redis"
)

var (
	ErrAlreadyDelivered   = errors.New("notification already delivered")
	ErrLockAcquireFailed  = errors.New("failed to acquire delivery lock")
	ErrMaxRetriesExceeded = errors.New("maximum delivery attempts exceeded")
)

// KeyStore is the slice of the Redis adapter the guard needs.
type KeyStore interface {
	Exist(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

type IdempotencyConfig struct {
	LockTTL      time.Duration
	DeliveredTTL time.Duration
	MaxRetries   int
	KeyPrefix    string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:      30 * time.Second,
		DeliveredTTL: 7 * 24 * time.Hour,
		MaxRetries:   3,
		KeyPrefix:    "receipts:",
	}
}

// IdempotencyGuard makes sure each notification key is delivered at most once
// across consumers: a short lock while sending, a long-lived delivered
// marker afterwards and a per-key attempt counter.
type IdempotencyGuard struct {
	store  KeyStore
	config IdempotencyConfig
}

func NewIdempotencyGuard(store KeyStore, config IdempotencyConfig) *IdempotencyGuard {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	return &IdempotencyGuard{store: store, config: config}
}

type Delivery struct {
	Key      string
	Attempts int
	locked   bool
}

func (d *Delivery) IsRetry() bool {
	return d.Attempts > 0
}

func (g *IdempotencyGuard) redisKey(kind, key string) string {
	return g.config.KeyPrefix + kind + ":" + key
}

// Acquire claims key for delivery.
func (g *IdempotencyGuard) Acquire(ctx context.Context, key string) (*Delivery, error) {
	exists, err := g.store.Exist(ctx, g.redisKey("delivered", key))
	if err != nil {
		// a duplicate receipt beats a lost one
		logger.Warn("[receipts] delivered check failed", "key", key, "error", err)
	} else if exists > 0 {
		return nil, ErrAlreadyDelivered
	}

	attempts, err := g.Attempts(ctx, key)
	if err != nil {
		logger.Warn("[receipts] attempts lookup failed", "key", key, "error", err)
	}
	if attempts >= g.config.MaxRetries {
		return nil, fmt.Errorf("%w: key=%s attempts=%d", ErrMaxRetriesExceeded, key, attempts)
	}

	stamp := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := g.store.SetNX(ctx, g.redisKey("lock", key), stamp, g.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	return &Delivery{Key: key, Attempts: attempts, locked: true}, nil
}

// Succeed records the delivery and clears the lock and counter.
func (g *IdempotencyGuard) Succeed(ctx context.Context, d *Delivery) error {
	if err := g.store.Set(ctx, g.redisKey("delivered", d.Key), []byte("1"), g.config.DeliveredTTL); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if err := g.store.Del(ctx, g.redisKey("attempts", d.Key)); err != nil {
		logger.Warn("[receipts] clear attempts failed", "key", d.Key, "error", err)
	}
	return g.Release(ctx, d)
}

// Fail bumps the attempt counter and frees the lock for the next try.
func (g *IdempotencyGuard) Fail(ctx context.Context, d *Delivery, reason error) error {
	next := d.Attempts + 1
	if err := g.store.Set(ctx, g.redisKey("attempts", d.Key), []byte(strconv.Itoa(next)), g.config.DeliveredTTL); err != nil {
		logger.Error("[receipts] bump attempts failed", "key", d.Key, "error", err)
	}
	logger.Warn("[receipts] delivery failed", "key", d.Key, "attempts", next, "max", g.config.MaxRetries, "reason", reason)
	return g.Release(ctx, d)
}

func (g *IdempotencyGuard) Release(ctx context.Context, d *Delivery) error {
	if d == nil || !d.locked {
		return nil
	}
	if err := g.store.Del(ctx, g.redisKey("lock", d.Key)); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	d.locked = false
	return nil
}

func (g *IdempotencyGuard) Attempts(ctx context.Context, key string) (int, error) {
	raw, err := g.store.Get(ctx, g.redisKey("attempts", key))
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt attempts counter for %s: %w", key, err)
	}
	return n, nil
}

func (g *IdempotencyGuard) Delivered(ctx context.Context, key string) (bool, error) {
	n, err := g.store.Exist(ctx, g.redisKey("delivered", key))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
