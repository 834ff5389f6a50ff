package repository

import (
	"context"
	"errors"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	*pg.DB
}

var _ TransactionStore = (*TransactionRepository)(nil)

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Put inserts a new transaction. Records are immutable once written, so an
// existing id is reported as ErrDuplicate rather than overwritten.
func (r *TransactionRepository) Put(ctx context.Context, txn *model.Transaction) error {
	entity := toTransactionEntity(txn)

	res := r.Write(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// ListByUser does not ask the database to order rows; callers sort.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	err := r.Read(ctx).
		Where("user_id = ?", userID).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}
