package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/pkg/pg"
	"gorm.io/gorm"
)

type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	entity := toUserEntity(user)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toUserModel(entity), nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

// UpdateIdentity refreshes the fields mirrored from the identity provider.
func (r *UserRepository) UpdateIdentity(ctx context.Context, id, email, displayName string, role model.Role) error {
	res := r.Write(ctx).
		Model(&UserEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email":        email,
			"display_name": displayName,
			"role":         string(role),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id, displayName string, at time.Time) error {
	res := r.Write(ctx).
		Model(&UserEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"display_name":        displayName,
			"last_profile_update": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.Read(ctx).Model(&UserEntity{}).Count(&total).Error
	return total, err
}

func (r *UserRepository) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	var entities []*UserEntity
	err := r.Read(ctx).
		Where("role = ?", string(role)).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	users := make([]*model.User, len(entities))
	for i, e := range entities {
		users[i] = toUserModel(e)
	}
	return users, nil
}
