package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	// unique connection name per test, adapters are cached by name
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func testConfig(name string) QueueConfig {
	return QueueConfig{
		Name:              name,
		ConsumerGroup:     "receipts",
		ConsumerName:      "receipts-test",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
}

func testTransaction() *model.Transaction {
	return &model.Transaction{
		ID:                "txn_1700000000000_abcdef123",
		Amount:            decimal.NewFromInt(500),
		Currency:          "INR",
		Receiver:          "Alice",
		Status:            model.StatusCompleted,
		SignatureVerified: true,
		UserID:            "u1",
		CreatedAt:         time.Now().UTC(),
	}
}

func TestQueue_PublishTransactionAndConsume(t *testing.T) {
	_, adapter := setupTestRedis(t)
	ctx := context.Background()

	q, err := NewQueue(ctx, adapter, testConfig("transactions:recorded"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	_, err = q.PublishTransaction(ctx, model.EventTransactionRecorded, testTransaction())
	require.NoError(t, err)

	received := make(chan *model.TransactionEvent, 1)
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		assert.Equal(t, model.EventTransactionRecorded, msg.Metadata["type"])
		assert.Equal(t, "completed", msg.Metadata["status"])
		ev, err := msg.Event()
		if err != nil {
			return err
		}
		received <- ev
		return nil
	}))

	select {
	case ev := <-received:
		assert.Equal(t, model.EventTransactionRecorded, ev.Type)
		assert.Equal(t, "txn_1700000000000_abcdef123", ev.Transaction.ID)
		assert.True(t, ev.Transaction.Amount.Equal(decimal.NewFromInt(500)))
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}

	require.Eventually(t, func() bool {
		stats, err := q.GetStats(ctx)
		return err == nil && stats.PendingMessages == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_FailedMessageStaysPending(t *testing.T) {
	_, adapter := setupTestRedis(t)
	ctx := context.Background()

	q, err := NewQueue(ctx, adapter, testConfig("test:retry"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	_, err = q.PublishTransaction(ctx, model.EventTransactionRecorded, testTransaction())
	require.NoError(t, err)

	var calls int32
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		atomic.AddInt32(&calls, 1)
		return assert.AnError
	}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, 2*time.Second, 20*time.Millisecond)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingMessages)
	assert.Equal(t, int64(0), stats.DeadLetters)
}

func TestQueue_ExhaustedMessageGoesToDeadLetter(t *testing.T) {
	_, adapter := setupTestRedis(t)
	ctx := context.Background()

	q, err := NewQueue(ctx, adapter, testConfig("test:dlq"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	q.handler = func(ctx context.Context, msg *Message) error {
		t.Fatal("handler must not run for exhausted messages")
		return nil
	}

	id, err := q.Publish(ctx, []byte(`{}`), map[string]string{"type": "x"})
	require.NoError(t, err)

	q.dispatch(&Message{ID: id, Data: []byte(`{}`), Metadata: map[string]string{"type": "x"}, Attempts: 3, queue: q})

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DeadLetters)
}

func TestQueue_NewQueueTwiceReusesGroup(t *testing.T) {
	_, adapter := setupTestRedis(t)
	ctx := context.Background()

	q1, err := NewQueue(ctx, adapter, testConfig("test:group"))
	require.NoError(t, err)
	defer q1.Stop(time.Second)

	q2, err := NewQueue(ctx, adapter, testConfig("test:group"))
	require.NoError(t, err)
	defer q2.Stop(time.Second)
}

func TestQueueConfig_Validation(t *testing.T) {
	_, adapter := setupTestRedis(t)

	_, err := NewQueue(context.Background(), adapter, QueueConfig{})
	assert.Error(t, err)

	q, err := NewQueue(context.Background(), adapter, QueueConfig{Name: "defaults"})
	require.NoError(t, err)
	defer q.Stop(time.Second)
	assert.Equal(t, 3, q.config.MaxRetries)
	assert.Equal(t, int64(10), q.config.BatchSize)
	assert.Error(t, q.Consume(nil))
}

func TestMessage_Ack(t *testing.T) {
	_, adapter := setupTestRedis(t)
	ctx := context.Background()

	q, err := NewQueue(ctx, adapter, testConfig("test:ack"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	id, err := q.Publish(ctx, []byte(`{"test":"data"}`), nil)
	require.NoError(t, err)

	msg := &Message{ID: id, queue: q}
	assert.NoError(t, msg.Ack(ctx))

	err = msg.Ack(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already acknowledged")
}

func TestMessage_EventRejectsEmptyPayload(t *testing.T) {
	_, err := (&Message{ID: "1", Data: []byte(`{"type":"transaction.recorded"}`)}).Event()
	assert.Error(t, err)

	_, err = (&Message{ID: "2", Data: []byte(`not json`)}).Event()
	assert.Error(t, err)
}

func TestQueue_ConcurrentPublish(t *testing.T) {
	_, adapter := setupTestRedis(t)
	ctx := context.Background()

	q, err := NewQueue(ctx, adapter, testConfig("test:concurrent"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	numGoroutines := 10
	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			_, err := q.PublishTransaction(ctx, model.EventTransactionRecorded, testTransaction())
			assert.NoError(t, err)
			done <- true
		}()
	}
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(numGoroutines), stats.TotalMessages)
}
