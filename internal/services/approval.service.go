package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/internal/signature"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/prom"
	"github.com/shopspring/decimal"
)

// LedgerStore persists the approval ledger as a whole collection.
type LedgerStore interface {
	Load(ctx context.Context) ([]*model.Transaction, error)
	Save(ctx context.Context, txns []*model.Transaction) error
}

type UserDirectory interface {
	Get(ctx context.Context, id string) (*model.User, error)
	Count(ctx context.Context) (int64, error)
}

const recentActivityLimit = 10

// ApprovalService runs the offline approval ledger: dashboard payments by
// regular users wait as pending until an admin approves or rejects them.
// Every mutation rewrites the full snapshot; concurrent admins race and the
// last write wins.
type ApprovalService struct {
	ledger   LedgerStore
	users    UserDirectory
	verifier SignatureVerifier
	events   EventPublisher
	now      func() time.Time
}

func NewApprovalService(ledger LedgerStore, users UserDirectory, verifier SignatureVerifier, events EventPublisher) *ApprovalService {
	return &ApprovalService{
		ledger:   ledger,
		users:    users,
		verifier: verifier,
		events:   events,
		now:      time.Now,
	}
}

func (s *ApprovalService) role(ctx context.Context, userID string) (model.Role, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	return user.Role, nil
}

func (s *ApprovalService) requireAdmin(ctx context.Context, actorID string) error {
	if actorID == "" {
		return ErrNotAdmin
	}
	role, err := s.role(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrNotAdmin
		}
		return err
	}
	if !model.CanApproveTransactions(role) {
		return ErrNotAdmin
	}
	return nil
}

// Submit records a dashboard payment in the ledger. The gateway signature is
// checked first: unverified payments are failed, verified admin payments are
// completed at once and everything else waits for approval.
func (s *ApprovalService) Submit(ctx context.Context, req model.SubmitPaymentRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	role, err := s.role(ctx, req.UserID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		role = model.RoleUser
	}
	if !model.WithinPaymentLimit(role, req.OrderDetails.Amount) {
		return nil, ErrPaymentLimitExceeded
	}

	verified, err := s.verifier.Verify(req.OrderID, req.PaymentID, req.Signature)
	if errors.Is(err, signature.ErrMissingSecret) {
		return nil, ErrVerifierNotReady
	}

	now := s.now().UTC()
	txn := &model.Transaction{
		ID:                model.NewTransactionID(now),
		Amount:            req.OrderDetails.Amount,
		Currency:          req.OrderDetails.CurrencyOrDefault(),
		Receiver:          req.OrderDetails.Receiver,
		Description:       req.OrderDetails.Description,
		GatewayOrderID:    strPtr(req.OrderID),
		SignatureVerified: verified,
		UserID:            req.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.PaymentID != "" {
		txn.GatewayPaymentID = strPtr(req.PaymentID)
	}
	if req.Signature != "" {
		txn.GatewaySignature = strPtr(req.Signature)
	}

	switch {
	case !verified:
		txn.Status = model.StatusFailed
		txn.FailureReason = model.ReasonSignatureFailed
	case model.CanApproveTransactions(role):
		txn.Status = model.StatusCompleted
	default:
		txn.Status = model.StatusPending
	}

	txns, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := s.ledger.Save(ctx, append([]*model.Transaction{txn}, txns...)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	prom.IncTransactionRecorded(string(txn.Status))
	logger.Info("[approval] payment submitted", "transaction_id", txn.ID, "status", string(txn.Status), "user_id", txn.UserID)
	publish(ctx, s.events, model.EventTransactionRecorded, txn)
	return txn, nil
}

func (s *ApprovalService) Approve(ctx context.Context, actorID, id string) (*model.Transaction, error) {
	return s.transition(ctx, actorID, id, model.StatusCompleted, "")
}

// Reject fails a pending transaction. An empty reason gets the default.
func (s *ApprovalService) Reject(ctx context.Context, actorID, id, reason string) (*model.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = model.ReasonRejectedByAdmin
	}
	return s.transition(ctx, actorID, id, model.StatusFailed, reason)
}

func (s *ApprovalService) transition(ctx context.Context, actorID, id string, to model.Status, reason string) (*model.Transaction, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	txns, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var target *model.Transaction
	for _, t := range txns {
		if t.ID == id {
			target = t
			break
		}
	}
	if target == nil {
		return nil, ErrTransactionNotFound
	}
	if target.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, target.Status)
	}
	// completed requires a verified signature
	if to == model.StatusCompleted && !target.SignatureVerified {
		return nil, fmt.Errorf("%w: %s has no verified signature", ErrInvalidTransition, id)
	}

	target.Status = to
	target.UpdatedAt = s.now().UTC()
	if to == model.StatusFailed {
		target.FailureReason = reason
	}

	if err := s.ledger.Save(ctx, txns); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	prom.IncApprovalTransition(string(to), 1)
	logger.Info("[approval] transaction transitioned", "transaction_id", id, "to", string(to), "actor", actorID)
	publish(ctx, s.events, model.EventTransactionStatusChanged, target)
	return target, nil
}

// BulkApprove completes every pending transaction in one snapshot write and
// returns how many changed. With nothing pending no write happens.
func (s *ApprovalService) BulkApprove(ctx context.Context, actorID string) (int, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return 0, err
	}

	txns, err := s.ledger.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	now := s.now().UTC()
	var changed []*model.Transaction
	var skipped []string
	for _, t := range txns {
		if t.Status != model.StatusPending {
			continue
		}
		// completed requires a verified signature
		if !t.SignatureVerified {
			skipped = append(skipped, t.ID)
			continue
		}
		t.Status = model.StatusCompleted
		t.UpdatedAt = now
		changed = append(changed, t)
	}
	if len(skipped) > 0 {
		logger.Warn("[approval] bulk approve skipped unverified pending records", "ids", skipped, "actor", actorID)
	}
	if len(changed) == 0 {
		return 0, nil
	}

	if err := s.ledger.Save(ctx, txns); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	prom.IncApprovalTransition(string(model.StatusCompleted), len(changed))
	logger.Info("[approval] bulk approve", "count", len(changed), "actor", actorID)
	for _, t := range changed {
		publish(ctx, s.events, model.EventTransactionStatusChanged, t)
	}
	return len(changed), nil
}

// Overview summarises the ledger for the admin panel.
func (s *ApprovalService) Overview(ctx context.Context, actorID string) (*model.Overview, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	txns, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchTransactions, err)
	}

	ov := BuildOverview(txns)
	users, err := s.users.Count(ctx)
	if err != nil {
		logger.Warn("[approval] count users failed", "error", err)
	}
	ov.TotalUsers = users
	return ov, nil
}

// BuildOverview computes the admin stats. Total value sums completed
// transactions; the average is taken over all of them.
func BuildOverview(txns []*model.Transaction) *model.Overview {
	ov := &model.Overview{
		Total:          len(txns),
		TotalValue:     decimal.Zero,
		AverageValue:   decimal.Zero,
		PendingList:    []*model.Transaction{},
		RecentActivity: []*model.Transaction{},
	}

	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(t.Amount)
		switch t.Status {
		case model.StatusPending:
			ov.Pending++
			ov.PendingList = append(ov.PendingList, t)
		case model.StatusCompleted:
			ov.Completed++
			ov.TotalValue = ov.TotalValue.Add(t.Amount)
		case model.StatusFailed:
			ov.Failed++
		}
	}
	if len(txns) > 0 {
		ov.AverageValue = sum.Div(decimal.NewFromInt(int64(len(txns)))).Round(2)
	}

	recent := make([]*model.Transaction, len(txns))
	copy(recent, txns)
	sortNewestFirst(recent)
	if len(recent) > recentActivityLimit {
		recent = recent[:recentActivityLimit]
	}
	ov.RecentActivity = recent
	return ov
}
