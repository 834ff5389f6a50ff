package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kryos/kryos-api/internal/gateway"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/prom"
	"github.com/shopspring/decimal"
)

type OrderGateway interface {
	CreateOrder(ctx context.Context, p gateway.OrderParams) (*model.Order, error)
	KeyID() string
}

type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) (bool, error)
}

type TransactionStore interface {
	Put(ctx context.Context, txn *model.Transaction) error
	Get(ctx context.Context, id string) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error)
}

type UserLookup interface {
	Get(ctx context.Context, id string) (*model.User, error)
}

type EventPublisher interface {
	PublishTransaction(ctx context.Context, eventType string, txn *model.Transaction) (string, error)
}

type PaymentService struct {
	gateway  OrderGateway
	verifier SignatureVerifier
	store    TransactionStore
	users    UserLookup
	events   EventPublisher
	now      func() time.Time
}

// NewPaymentService wires the gateway workflow. users and events may be nil:
// without users no payment ceiling is applied, without events nothing is
// published.
func NewPaymentService(gw OrderGateway, verifier SignatureVerifier, store TransactionStore, users UserLookup, events EventPublisher) *PaymentService {
	return &PaymentService{
		gateway:  gw,
		verifier: verifier,
		store:    store,
		users:    users,
		events:   events,
		now:      time.Now,
	}
}

func (s *PaymentService) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.CreateOrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	if req.UserID != "" {
		if err := s.checkPaymentLimit(ctx, req.UserID, req.Amount); err != nil {
			return nil, err
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = fmt.Sprintf("rcpt_%d", s.now().UnixMilli())
	}

	start := time.Now()
	order, err := s.gateway.CreateOrder(ctx, gateway.OrderParams{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    req.Notes,
	})
	prom.ObserveGateway("create_order", time.Since(start))
	if err != nil {
		prom.IncOrderCreated("error")
		logger.Error("[payments] create order failed", "error", err, "receipt", receipt)
		return nil, fmt.Errorf("%w: %w", ErrCreateOrder, err)
	}
	prom.IncOrderCreated("ok")

	return &model.CreateOrderResult{Order: order, KeyID: s.gateway.KeyID()}, nil
}

// checkPaymentLimit applies the role ceiling for a known user. Unknown users
// are not mirrored yet and pass through.
func (s *PaymentService) checkPaymentLimit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if s.users == nil {
		return nil
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	if !model.WithinPaymentLimit(user.Role, amount) {
		return ErrPaymentLimitExceeded
	}
	return nil
}

// VerifyPayment checks the checkout callback signature and records the
// outcome. A signature mismatch is not an error: the transaction is stored as
// failed and the result reports verified=false.
func (s *PaymentService) VerifyPayment(ctx context.Context, req model.VerifyPaymentRequest) (*model.VerifyPaymentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	verified, err := s.verifier.Verify(req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return nil, verificationError(err)
	}

	now := s.now().UTC()
	txn := &model.Transaction{
		ID:                model.NewTransactionID(now),
		Amount:            req.OrderDetails.Amount,
		Currency:          req.OrderDetails.CurrencyOrDefault(),
		Receiver:          req.OrderDetails.Receiver,
		Description:       req.OrderDetails.Description,
		Status:            model.StatusFailed,
		GatewayOrderID:    strPtr(req.OrderID),
		GatewayPaymentID:  strPtr(req.PaymentID),
		GatewaySignature:  strPtr(req.Signature),
		SignatureVerified: verified,
		UserID:            req.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if verified {
		txn.Status = model.StatusCompleted
	} else {
		txn.FailureReason = model.ReasonSignatureFailed
		logger.Warn("[payments] signature mismatch", "order_id", req.OrderID, "payment_id", req.PaymentID, "user_id", req.UserID)
	}

	if err := s.record(ctx, txn); err != nil {
		return nil, err
	}

	res := &model.VerifyPaymentResult{
		Verified:      verified,
		TransactionID: txn.ID,
		Status:        txn.Status,
		Message:       "Payment verification failed",
	}
	if verified {
		res.Message = "Payment verified successfully"
	}
	return res, nil
}

// RecordFailedPayment stores a cancelled or failed checkout. There is no
// payment id or signature for these.
func (s *PaymentService) RecordFailedPayment(ctx context.Context, req model.FailedPaymentRequest) (*model.FailedPaymentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	reason := req.FailureReason
	if reason == "" {
		reason = model.ReasonCancelledByUser
	}

	now := s.now().UTC()
	txn := &model.Transaction{
		ID:             model.NewTransactionID(now),
		Currency:       model.DefaultCurrency,
		Status:         model.StatusFailed,
		GatewayOrderID: strPtr(req.OrderID),
		FailureReason:  reason,
		UserID:         req.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if d := req.OrderDetails; d != nil {
		txn.Amount = d.Amount
		txn.Currency = d.CurrencyOrDefault()
		txn.Receiver = d.Receiver
		txn.Description = d.Description
	}

	if err := s.record(ctx, txn); err != nil {
		return nil, err
	}

	return &model.FailedPaymentResult{
		TransactionID: txn.ID,
		Status:        txn.Status,
		Message:       "Failed transaction recorded successfully",
	}, nil
}

func (s *PaymentService) record(ctx context.Context, txn *model.Transaction) error {
	if err := s.store.Put(ctx, txn); err != nil {
		logger.Error("[payments] persist transaction failed", "transaction_id", txn.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	prom.IncTransactionRecorded(string(txn.Status))
	logger.Info("[payments] transaction recorded", "transaction_id", txn.ID, "status", string(txn.Status), "user_id", txn.UserID)
	publish(ctx, s.events, model.EventTransactionRecorded, txn)
	return nil
}

// ListTransactions returns the user's transactions newest first.
func (s *PaymentService) ListTransactions(ctx context.Context, userID string) (*model.TransactionList, error) {
	if userID == "" {
		return nil, validationError(errors.New("user id is required"))
	}

	txns, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("[payments] list transactions failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrFetchTransactions, err)
	}
	if txns == nil {
		txns = []*model.Transaction{}
	}
	sortNewestFirst(txns)

	return &model.TransactionList{Transactions: txns, Total: len(txns)}, nil
}

// publish is best effort: the transaction is already durable.
func publish(ctx context.Context, events EventPublisher, eventType string, txn *model.Transaction) {
	if events == nil {
		return
	}
	if _, err := events.PublishTransaction(ctx, eventType, txn); err != nil {
		logger.Warn("[payments] publish event failed", "transaction_id", txn.ID, "type", eventType, "error", err)
	}
}

func sortNewestFirst(txns []*model.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
}

func strPtr(s string) *string {
	return &s
}
