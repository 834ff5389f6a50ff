package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers, the way the dashboard sends them.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const DefaultCurrency = "INR"

const (
	ReasonSignatureFailed = "signature verification failed"
	ReasonCancelledByUser = "Payment cancelled by user"
	ReasonRejectedByAdmin = "Rejected by administrator"
)

var ErrUnknownStatus = errors.New("unknown transaction status")

// ParseStatus accepts both the gateway vocabulary (completed/failed) and the
// approval vocabulary (approved/rejected) and returns the canonical status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "completed", "approved":
		return StatusCompleted, nil
	case "failed", "rejected":
		return StatusFailed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Transaction struct {
	ID                string          `json:"id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Receiver          string          `json:"receiver"`
	Description       string          `json:"description,omitempty"`
	Status            Status          `json:"status"`
	GatewayOrderID    *string         `json:"razorpay_order_id,omitempty"`
	GatewayPaymentID  *string         `json:"razorpay_payment_id,omitempty"`
	GatewaySignature  *string         `json:"razorpay_signature,omitempty"`
	SignatureVerified bool            `json:"signature_verified"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	UserID            string          `json:"user_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewTransactionID returns txn_<unix-ms>_<9 random chars>.
func NewTransactionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("txn_%d_%s", now.UnixMilli(), suffix)
}

// ValidateAmount enforces a positive amount in major units with at most two
// fractional digits.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return errors.New("amount must have at most two decimal places")
	}
	return nil
}

// OrderDetails is what the dashboard knows about a payment before checkout.
type OrderDetails struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Receiver    string          `json:"receiver"`
	Description string          `json:"description"`
}

func (d OrderDetails) Validate() error {
	if err := ValidateAmount(d.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(d.Receiver) == "" {
		return errors.New("receiver is required")
	}
	return nil
}

func (d OrderDetails) CurrencyOrDefault() string {
	if d.Currency == "" {
		return DefaultCurrency
	}
	return strings.ToUpper(d.Currency)
}

// VerifyPaymentRequest is the gateway checkout callback forwarded by the
// dashboard.
type VerifyPaymentRequest struct {
	OrderID      string       `json:"razorpay_order_id"`
	PaymentID    string       `json:"razorpay_payment_id"`
	Signature    string       `json:"razorpay_signature"`
	OrderDetails OrderDetails `json:"order_details"`
	UserID       string       `json:"user_id"`
}

func (r VerifyPaymentRequest) Validate() error {
	if r.OrderID == "" || r.PaymentID == "" || r.Signature == "" {
		return errors.New("missing required payment verification parameters")
	}
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	return r.OrderDetails.Validate()
}

type VerifyPaymentResult struct {
	Verified      bool   `json:"verified"`
	TransactionID string `json:"transaction_id"`
	Status        Status `json:"status"`
	Message       string `json:"message"`
}

// FailedPaymentRequest records a checkout that was cancelled or failed at the
// gateway. Order details are optional, the dashboard sends what it has.
type FailedPaymentRequest struct {
	OrderID       string        `json:"razorpay_order_id"`
	OrderDetails  *OrderDetails `json:"order_details,omitempty"`
	FailureReason string        `json:"failure_reason"`
	UserID        string        `json:"user_id"`
}

func (r FailedPaymentRequest) Validate() error {
	if r.OrderID == "" || r.UserID == "" {
		return errors.New("missing required parameters")
	}
	return nil
}

type FailedPaymentResult struct {
	TransactionID string `json:"transaction_id"`
	Status        Status `json:"status"`
	Message       string `json:"message"`
}

type TransactionList struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int            `json:"total"`
}

// SubmitPaymentRequest is the dashboard pay action of the approval ledger.
type SubmitPaymentRequest struct {
	OrderID      string       `json:"razorpay_order_id"`
	PaymentID    string       `json:"razorpay_payment_id"`
	Signature    string       `json:"razorpay_signature"`
	OrderDetails OrderDetails `json:"order_details"`
	UserID       string       `json:"user_id"`
}

func (r SubmitPaymentRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.OrderID == "" {
		return errors.New("razorpay_order_id is required")
	}
	return r.OrderDetails.Validate()
}

// Overview is the admin panel summary of the approval ledger.
type Overview struct {
	Total          int             `json:"total_transactions"`
	Pending        int             `json:"pending_transactions"`
	Completed      int             `json:"approved_transactions"`
	Failed         int             `json:"rejected_transactions"`
	TotalValue     decimal.Decimal `json:"total_value"`
	AverageValue   decimal.Decimal `json:"average_value"`
	TotalUsers     int64           `json:"total_users"`
	PendingList    []*Transaction  `json:"pending"`
	RecentActivity []*Transaction  `json:"recent"`
}

// TransactionEvent is published after a transaction is durably recorded.
type TransactionEvent struct {
	Type        string       `json:"type"`
	Transaction *Transaction `json:"transaction"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

const (
	EventTransactionRecorded      = "transaction.recorded"
	EventTransactionStatusChanged = "transaction.status_changed"
)
