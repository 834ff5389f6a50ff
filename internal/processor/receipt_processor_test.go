package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/queue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUsers = staticUsers{
	"user-a":  {ID: "user-a", Email: "ada@kryos.dev", DisplayName: "Ada", Role: model.RoleUser},
	"admin-1": {ID: "admin-1", Email: "ops@kryos.dev", Role: model.RoleAdmin},
	"silent":  {ID: "silent", Role: model.RoleUser},
}

func eventMessage(t *testing.T, txn *model.Transaction) *queue.Message {
	t.Helper()
	data, err := json.Marshal(model.TransactionEvent{Type: model.EventTransactionRecorded, Transaction: txn, OccurredAt: time.Now()})
	require.NoError(t, err)
	return &queue.Message{ID: "1-0", Data: data}
}

func testTxn(id, userID string, status model.Status) *model.Transaction {
	pay := "pay_1"
	return &model.Transaction{
		ID:               id,
		Amount:           decimal.RequireFromString("499.50"),
		Currency:         "INR",
		Receiver:         "Acme",
		Status:           status,
		GatewayPaymentID: &pay,
		UserID:           userID,
		UpdatedAt:        time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestReceiptProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("completed transaction mails the payer once", func(t *testing.T) {
		_, rdb := setupTestRedis(t)
		mailer := &recordingMailer{}
		p := NewReceiptProcessor(testUsers, mailer, NewIdempotencyGuard(rdb, DefaultIdempotencyConfig()))

		msg := eventMessage(t, testTxn("txn_1", "user-a", model.StatusCompleted))
		require.NoError(t, p.Process(ctx, msg))
		require.NoError(t, p.Process(ctx, msg))

		require.Equal(t, 1, mailer.count())
		mail := mailer.last()
		assert.Equal(t, []string{"ada@kryos.dev"}, mail.To)
		assert.Equal(t, "Payment receipt txn_1", mail.Subject)
		assert.Contains(t, mail.Text, "499.50 INR to Acme was completed")
		assert.Contains(t, mail.Text, "Payment reference: pay_1")
	})

	t.Run("failed transaction includes the reason", func(t *testing.T) {
		_, rdb := setupTestRedis(t)
		mailer := &recordingMailer{}
		p := NewReceiptProcessor(testUsers, mailer, NewIdempotencyGuard(rdb, DefaultIdempotencyConfig()))

		txn := testTxn("txn_2", "user-a", model.StatusFailed)
		txn.FailureReason = model.ReasonCancelledByUser
		require.NoError(t, p.Process(ctx, eventMessage(t, txn)))

		require.Equal(t, 1, mailer.count())
		assert.Equal(t, "Payment failed txn_2", mailer.last().Subject)
		assert.Contains(t, mailer.last().Text, "Reason: Payment cancelled by user")
	})

	t.Run("pending and unknown payers are skipped", func(t *testing.T) {
		_, rdb := setupTestRedis(t)
		mailer := &recordingMailer{}
		p := NewReceiptProcessor(testUsers, mailer, NewIdempotencyGuard(rdb, DefaultIdempotencyConfig()))

		require.NoError(t, p.Process(ctx, eventMessage(t, testTxn("txn_3", "user-a", model.StatusPending))))
		require.NoError(t, p.Process(ctx, eventMessage(t, testTxn("txn_4", "ghost", model.StatusCompleted))))
		require.NoError(t, p.Process(ctx, eventMessage(t, testTxn("txn_5", "silent", model.StatusCompleted))))
		assert.Zero(t, mailer.count())
	})

	t.Run("send failure is retried then abandoned", func(t *testing.T) {
		_, rdb := setupTestRedis(t)
		mailer := &recordingMailer{fail: 10}
		cfg := DefaultIdempotencyConfig()
		cfg.MaxRetries = 2
		p := NewReceiptProcessor(testUsers, mailer, NewIdempotencyGuard(rdb, cfg))

		msg := eventMessage(t, testTxn("txn_6", "user-a", model.StatusCompleted))
		assert.Error(t, p.Process(ctx, msg))
		assert.Error(t, p.Process(ctx, msg))
		assert.NoError(t, p.Process(ctx, msg), "after max attempts the message is acked")
		assert.Zero(t, mailer.count())
	})

	t.Run("undecodable payload is an error", func(t *testing.T) {
		_, rdb := setupTestRedis(t)
		p := NewReceiptProcessor(testUsers, &recordingMailer{}, NewIdempotencyGuard(rdb, DefaultIdempotencyConfig()))
		assert.Error(t, p.Process(ctx, &queue.Message{ID: "1-0", Data: []byte("{")}))
	})
}
