package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Order is the payment gateway's order object. Amounts are minor units.
type Order struct {
	ID         string            `json:"id"`
	Entity     string            `json:"entity"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	Notes      map[string]string `json:"notes"`
	CreatedAt  int64             `json:"created_at"`
}

type CreateOrderRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
	UserID   string            `json:"user_id,omitempty"`
}

func (r CreateOrderRequest) Validate() error {
	if err := ValidateAmount(r.Amount); err != nil {
		return errors.New("invalid amount: " + err.Error())
	}
	return nil
}

type CreateOrderResult struct {
	Order *Order `json:"order"`
	KeyID string `json:"key_id"`
}
