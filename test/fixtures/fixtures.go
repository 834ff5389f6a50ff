package fixtures

import (
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/signature"
	"github.com/shopspring/decimal"
)

const (
	KeyID  = "rzp_test_key"
	Secret = "s3cret"

	UserID  = "uid-alice"
	Email   = "alice@kryos.io"
	OtherID = "uid-bob"
	AdminID = "uid-admin"
)

var (
	TestUser  = model.UserUpsertRequest{ID: UserID, Email: Email, DisplayName: "Alice"}
	TestOther = model.UserUpsertRequest{ID: OtherID, Email: "bob@kryos.io", DisplayName: "Bob"}
	TestAdmin = model.UserUpsertRequest{ID: AdminID, Email: "admin@kryos.io", DisplayName: "Ops"}
)

func NewOrderDetails(amount string) model.OrderDetails {
	return model.OrderDetails{
		Amount:      decimal.RequireFromString(amount),
		Currency:    "INR",
		Receiver:    "Acme Supplies",
		Description: "Invoice 42",
	}
}

func NewCreateOrderRequest(amount string) model.CreateOrderRequest {
	return model.CreateOrderRequest{
		Amount:   decimal.RequireFromString(amount),
		Currency: "INR",
		Receipt:  "receipt_e2e",
		UserID:   UserID,
	}
}

// NewVerifyRequest returns a callback signed with Secret.
func NewVerifyRequest(orderID, paymentID, userID, amount string) model.VerifyPaymentRequest {
	return model.VerifyPaymentRequest{
		OrderID:      orderID,
		PaymentID:    paymentID,
		Signature:    signature.Sign(orderID, paymentID, Secret),
		OrderDetails: NewOrderDetails(amount),
		UserID:       userID,
	}
}

func NewSubmitRequest(orderID, paymentID, userID, amount string) model.SubmitPaymentRequest {
	return model.SubmitPaymentRequest{
		OrderID:      orderID,
		PaymentID:    paymentID,
		Signature:    signature.Sign(orderID, paymentID, Secret),
		OrderDetails: NewOrderDetails(amount),
		UserID:       userID,
	}
}

func NewFailedRequest(orderID, userID, reason string) model.FailedPaymentRequest {
	details := NewOrderDetails("250")
	return model.FailedPaymentRequest{
		OrderID:       orderID,
		OrderDetails:  &details,
		FailureReason: reason,
		UserID:        userID,
	}
}
