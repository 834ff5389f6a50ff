// Package redis wraps a go-redis universal client with a key prefix so that
// several deployments can share one Redis without colliding.
package redis

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var NilError = goredis.Nil

type Options = goredis.UniversalOptions

// StreamMessage is one entry read from a stream.
type StreamMessage struct {
	ID     string
	Values map[string]interface{}
}

// RedisAdapter is the subset of Redis used by the ledger, the event stream and
// the receipt idempotency markers. Every key is prefixed by the adapter.
type RedisAdapter interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	Exist(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error

	XAdd(ctx context.Context, key string, values map[string]interface{}) (string, error)
	XReadGroup(ctx context.Context, group, consumer, key, id string, count int64) ([]StreamMessage, error)
	XAck(ctx context.Context, key, group string, ids ...string) error
	XGroupCreateMkStream(ctx context.Context, key, group, start string) error
	XLen(ctx context.Context, key string) (int64, error)
	XTrimApprox(ctx context.Context, key string, maxLen int64) error
	XPending(ctx context.Context, key, group string) (*goredis.XPending, error)
	XPendingExt(ctx context.Context, key, group string, start, end string, count int64) ([]goredis.XPendingExt, error)
	XClaim(ctx context.Context, key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error)
}

type adapter struct {
	name   string
	prefix string
	client goredis.UniversalClient
}

var (
	registryMu sync.Mutex
	registry   = map[string]RedisAdapter{}
)

// NewRedisAdapter returns the adapter registered under connName. The first
// call for a name dials and pings; later calls reuse the connection and
// ignore opts.
func NewRedisAdapter(connName string, keysPrefix string, opts *goredis.UniversalOptions) (RedisAdapter, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if a, ok := registry[connName]; ok {
		return a, nil
	}

	client := goredis.NewUniversalClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	a := &adapter{name: connName, prefix: keysPrefix, client: client}
	registry[connName] = a
	return a, nil
}

func (a *adapter) key(k string) string {
	return a.prefix + k
}

func (a *adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.client.Set(ctx, a.key(key), value, ttl).Err()
}

func (a *adapter) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return a.client.SetNX(ctx, a.key(key), value, ttl).Result()
}

// Get returns NilError for a missing key.
func (a *adapter) Get(ctx context.Context, key string) ([]byte, error) {
	return a.client.Get(ctx, a.key(key)).Bytes()
}

func (a *adapter) Del(ctx context.Context, key string) error {
	return a.client.Del(ctx, a.key(key)).Err()
}

func (a *adapter) Exist(ctx context.Context, key string) (int64, error) {
	return a.client.Exists(ctx, a.key(key)).Result()
}

func (a *adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *adapter) XAdd(ctx context.Context, key string, values map[string]interface{}) (string, error) {
	return a.client.XAdd(ctx, &goredis.XAddArgs{Stream: a.key(key), ID: "*", Values: values}).Result()
}

// XReadGroup never blocks; an empty stream yields NilError.
func (a *adapter) XReadGroup(ctx context.Context, group, consumer, key, id string, count int64) ([]StreamMessage, error) {
	streams, err := a.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{a.key(key), id},
		Count:    count,
		Block:    -1,
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []StreamMessage
	for _, s := range streams {
		out = append(out, toStreamMessages(s.Messages)...)
	}
	return out, nil
}

func (a *adapter) XAck(ctx context.Context, key, group string, ids ...string) error {
	return a.client.XAck(ctx, a.key(key), group, ids...).Err()
}

func (a *adapter) XGroupCreateMkStream(ctx context.Context, key, group, start string) error {
	return a.client.XGroupCreateMkStream(ctx, a.key(key), group, start).Err()
}

func (a *adapter) XLen(ctx context.Context, key string) (int64, error) {
	return a.client.XLen(ctx, a.key(key)).Result()
}

func (a *adapter) XTrimApprox(ctx context.Context, key string, maxLen int64) error {
	return a.client.XTrimMaxLenApprox(ctx, a.key(key), maxLen, 0).Err()
}

func (a *adapter) XPending(ctx context.Context, key, group string) (*goredis.XPending, error) {
	return a.client.XPending(ctx, a.key(key), group).Result()
}

func (a *adapter) XPendingExt(ctx context.Context, key, group string, start, end string, count int64) ([]goredis.XPendingExt, error) {
	return a.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: a.key(key),
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	}).Result()
}

func (a *adapter) XClaim(ctx context.Context, key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	msgs, err := a.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   a.key(key),
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return toStreamMessages(msgs), nil
}

func toStreamMessages(msgs []goredis.XMessage) []StreamMessage {
	out := make([]StreamMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, StreamMessage{ID: m.ID, Values: m.Values})
	}
	return out
}
