package repository

import (
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID                string          `db:"id"                 gorm:"primaryKey;column:id;size:64"`
	Amount            decimal.Decimal `db:"amount"             gorm:"column:amount;type:numeric(14,2);not null"`
	Currency          string          `db:"currency"           gorm:"column:currency;size:8;not null"`
	Receiver          string          `db:"receiver"           gorm:"column:receiver;not null"`
	Description       string          `db:"description"        gorm:"column:description"`
	Status            string          `db:"status"             gorm:"column:status;size:16;not null;index"`
	GatewayOrderID    *string         `db:"gateway_order_id"   gorm:"column:gateway_order_id;index"`
	GatewayPaymentID  *string         `db:"gateway_payment_id" gorm:"column:gateway_payment_id"`
	GatewaySignature  *string         `db:"gateway_signature"  gorm:"column:gateway_signature"`
	SignatureVerified bool            `db:"signature_verified" gorm:"column:signature_verified;not null;default:false"`
	FailureReason     string          `db:"failure_reason"     gorm:"column:failure_reason"`
	UserID            string          `db:"user_id"            gorm:"column:user_id;size:128;not null;index"`
	CreatedAt         time.Time       `db:"created_at"         gorm:"column:created_at"`
	UpdatedAt         time.Time       `db:"updated_at"         gorm:"column:updated_at"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:                m.ID,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Receiver:          m.Receiver,
		Description:       m.Description,
		Status:            string(m.Status),
		GatewayOrderID:    m.GatewayOrderID,
		GatewayPaymentID:  m.GatewayPaymentID,
		GatewaySignature:  m.GatewaySignature,
		SignatureVerified: m.SignatureVerified,
		FailureReason:     m.FailureReason,
		UserID:            m.UserID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	status, err := model.ParseStatus(e.Status)
	if err != nil {
		status = model.Status(e.Status)
	}
	return &model.Transaction{
		ID:                e.ID,
		Amount:            e.Amount,
		Currency:          e.Currency,
		Receiver:          e.Receiver,
		Description:       e.Description,
		Status:            status,
		GatewayOrderID:    e.GatewayOrderID,
		GatewayPaymentID:  e.GatewayPaymentID,
		GatewaySignature:  e.GatewaySignature,
		SignatureVerified: e.SignatureVerified,
		FailureReason:     e.FailureReason,
		UserID:            e.UserID,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
