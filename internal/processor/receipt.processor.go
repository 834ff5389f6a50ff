package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/queue"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/prom"
)

type UserLookup interface {
	Get(ctx context.Context, id string) (*model.User, error)
}

// ReceiptProcessor mails the payer when a transaction reaches a terminal
// status. Pending transactions produce no mail.
type ReceiptProcessor struct {
	users  UserLookup
	mailer Mailer
	guard  *IdempotencyGuard
}

func NewReceiptProcessor(users UserLookup, mailer Mailer, guard *IdempotencyGuard) *ReceiptProcessor {
	return &ReceiptProcessor{
		users:  users,
		mailer: mailer,
		guard:  guard,
	}
}

func (p *ReceiptProcessor) GetType() string {
	return "receipt"
}

func (p *ReceiptProcessor) Process(ctx context.Context, msg *queue.Message) error {
	ev, err := msg.Event()
	if err != nil {
		logger.Error("[receipts] undecodable event", "id", msg.ID, "error", err)
		return err
	}
	txn := ev.Transaction
	if !txn.Status.Terminal() {
		return nil
	}
	kind := string(txn.Status)

	user, err := p.users.Get(ctx, txn.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("[receipts] unknown payer, skipping", "transaction_id", txn.ID, "user_id", txn.UserID)
			prom.IncReceiptSent(kind, "skipped")
			return nil
		}
		return fmt.Errorf("lookup payer %s: %w", txn.UserID, err)
	}
	if user.Email == "" {
		prom.IncReceiptSent(kind, "skipped")
		return nil
	}

	key := txn.ID + ":" + kind
	delivery, err := p.guard.Acquire(ctx, key)
	switch {
	case errors.Is(err, ErrAlreadyDelivered):
		logger.Debug("[receipts] already sent", "key", key)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("[receipts] giving up", "key", key, "error", err)
		prom.IncReceiptSent(kind, "abandoned")
		return nil
	case err != nil:
		return err
	}
	defer func() {
		if rerr := p.guard.Release(ctx, delivery); rerr != nil {
			logger.Warn("[receipts] release lock failed", "key", key, "error", rerr)
		}
	}()

	if err := p.mailer.Send(ctx, ReceiptMail(user, txn)); err != nil {
		prom.IncReceiptSent(kind, "error")
		if ferr := p.guard.Fail(ctx, delivery, err); ferr != nil {
			logger.Warn("[receipts] record failure failed", "key", key, "error", ferr)
		}
		return err
	}

	prom.IncReceiptSent(kind, "ok")
	if err := p.guard.Succeed(ctx, delivery); err != nil {
		logger.Error("[receipts] mark delivered failed", "key", key, "error", err)
	}
	logger.Info("[receipts] sent", "transaction_id", txn.ID, "status", kind, "retry", delivery.IsRetry())
	return nil
}

// ReceiptMail renders the payer notification for txn.
func ReceiptMail(user *model.User, txn *model.Transaction) Mail {
	name := user.DisplayName
	if name == "" {
		name = user.Email
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	switch txn.Status {
	case model.StatusCompleted:
		fmt.Fprintf(&b, "Your payment of %s %s to %s was completed.\n", txn.Amount.StringFixed(2), txn.Currency, txn.Receiver)
	default:
		fmt.Fprintf(&b, "Your payment of %s %s to %s did not go through.\n", txn.Amount.StringFixed(2), txn.Currency, txn.Receiver)
		if txn.FailureReason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", txn.FailureReason)
		}
	}
	fmt.Fprintf(&b, "Transaction: %s\n", txn.ID)
	if txn.GatewayPaymentID != nil {
		fmt.Fprintf(&b, "Payment reference: %s\n", *txn.GatewayPaymentID)
	}
	fmt.Fprintf(&b, "Date: %s\n", txn.UpdatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	b.WriteString("\nKryos Payments")

	subject := "Payment receipt " + txn.ID
	if txn.Status == model.StatusFailed {
		subject = "Payment failed " + txn.ID
	}
	return Mail{To: []string{user.Email}, Subject: subject, Text: b.String()}
}
