package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/pkg/redis"
)

const DefaultSnapshotKey = "ledger:transactions"

// SnapshotRepository keeps the approval ledger as one JSON document. Every
// write replaces the whole collection and the last writer wins; there is no
// compare-and-set.
type SnapshotRepository struct {
	rdb redis.RedisAdapter
	key string
}

var _ TransactionStore = (*SnapshotRepository)(nil)

func NewSnapshotRepository(rdb redis.RedisAdapter, key string) *SnapshotRepository {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotRepository{rdb: rdb, key: key}
}

// Load returns the snapshot in stored order (newest first). A missing
// snapshot is an empty ledger.
func (r *SnapshotRepository) Load(ctx context.Context) ([]*model.Transaction, error) {
	raw, err := r.rdb.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return []*model.Transaction{}, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var txns []*model.Transaction
	if err := json.Unmarshal(raw, &txns); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if txns == nil {
		txns = []*model.Transaction{}
	}
	return txns, nil
}

// Save overwrites the snapshot with txns.
func (r *SnapshotRepository) Save(ctx context.Context, txns []*model.Transaction) error {
	if txns == nil {
		txns = []*model.Transaction{}
	}
	raw, err := json.Marshal(txns)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, raw, 0); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Put prepends txn and rewrites the snapshot.
func (r *SnapshotRepository) Put(ctx context.Context, txn *model.Transaction) error {
	txns, err := r.Load(ctx)
	if err != nil {
		return err
	}
	for _, t := range txns {
		if t.ID == txn.ID {
			return ErrDuplicate
		}
	}
	return r.Save(ctx, append([]*model.Transaction{txn}, txns...))
}

func (r *SnapshotRepository) Get(ctx context.Context, id string) (*model.Transaction, error) {
	txns, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range txns {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

func (r *SnapshotRepository) ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error) {
	txns, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Transaction, 0)
	for _, t := range txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}
