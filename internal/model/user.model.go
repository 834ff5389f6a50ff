package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// User mirrors an identity-provider account. ID is the provider's uid.
type User struct {
	ID                string     `json:"uid"`
	Email             string     `json:"email"`
	DisplayName       string     `json:"display_name"`
	Role              Role       `json:"role"`
	LastProfileUpdate *time.Time `json:"last_profile_update,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserUpsertRequest is the sign-in mirror body. It carries no role: roles
// are only granted through UserService.SetRole.
type UserUpsertRequest struct {
	ID          string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (r UserUpsertRequest) Validate() error {
	if r.ID == "" {
		return errors.New("uid is required")
	}
	if !strings.Contains(r.Email, "@") {
		return errors.New("a valid email is required")
	}
	return nil
}

type ProfileUpdateRequest struct {
	DisplayName string `json:"display_name"`
}

func (r ProfileUpdateRequest) Validate() error {
	if strings.TrimSpace(r.DisplayName) == "" {
		return errors.New("display_name is required")
	}
	return nil
}
