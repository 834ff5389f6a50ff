package repository

import (
	"context"
	"errors"

	"github.com/kryos/kryos-api/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a record with the same id already exists.
	ErrDuplicate = errors.New("record already exists")
)

// TransactionStore is the persistence contract shared by the per-record
// Postgres repository and the snapshot ledger.
type TransactionStore interface {
	Put(ctx context.Context, txn *model.Transaction) error
	Get(ctx context.Context, id string) (*model.Transaction, error)
	// ListByUser returns the user's transactions in storage order.
	ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error)
}
