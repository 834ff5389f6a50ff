package repository

import (
	"time"

	"github.com/kryos/kryos-api/internal/model"
)

type UserEntity struct {
	ID                string     `db:"id"                  gorm:"primaryKey;column:id;size:128"`
	Email             string     `db:"email"               gorm:"column:email;not null;index"`
	DisplayName       string     `db:"display_name"        gorm:"column:display_name"`
	Role              string     `db:"role"                gorm:"column:role;size:16;not null;default:user"`
	LastProfileUpdate *time.Time `db:"last_profile_update" gorm:"column:last_profile_update"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserEntity(m *model.User) *UserEntity {
	if m == nil {
		return nil
	}
	return &UserEntity{
		ID:                m.ID,
		Email:             m.Email,
		DisplayName:       m.DisplayName,
		Role:              string(m.Role),
		LastProfileUpdate: m.LastProfileUpdate,
		CreatedAt:         m.CreatedAt,
	}
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:                e.ID,
		Email:             e.Email,
		DisplayName:       e.DisplayName,
		Role:              model.Role(e.Role),
		LastProfileUpdate: e.LastProfileUpdate,
		CreatedAt:         e.CreatedAt,
	}
}
