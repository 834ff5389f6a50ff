package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/pkg/logger"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	UpdateIdentity(ctx context.Context, id, email, displayName string, role model.Role) error
	UpdateProfile(ctx context.Context, id, displayName string, at time.Time) error
	Count(ctx context.Context) (int64, error)
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)
}

// UserService mirrors identity-provider accounts and their roles.
type UserService struct {
	repo UserRepository
	now  func() time.Time
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, now: time.Now}
}

// Upsert creates the user on first sign-in with the "user" role and
// refreshes the mirrored identity afterwards. The stored role is never
// changed here.
func (s *UserService) Upsert(ctx context.Context, req model.UserUpsertRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	existing, err := s.repo.Get(ctx, req.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrUserStore, err)
	}

	if existing == nil {
		user, err := s.repo.Create(ctx, &model.User{
			ID:          req.ID,
			Email:       strings.TrimSpace(req.Email),
			DisplayName: strings.TrimSpace(req.DisplayName),
			Role:        model.RoleUser,
			CreatedAt:   s.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUserStore, err)
		}
		logger.Info("[users] created", "uid", user.ID)
		return user, nil
	}

	existing.Email = strings.TrimSpace(req.Email)
	existing.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.repo.UpdateIdentity(ctx, existing.ID, existing.Email, existing.DisplayName, existing.Role); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	return existing, nil
}

// SetRole grants or revokes admin rights. It is not exposed over HTTP; the
// cli calls it.
func (s *UserService) SetRole(ctx context.Context, id, role string) (*model.User, error) {
	r, err := model.ParseRole(role)
	if err != nil {
		return nil, validationError(err)
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == r {
		return user, nil
	}
	if err := s.repo.UpdateIdentity(ctx, user.ID, user.Email, user.DisplayName, r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	logger.Info("[users] role changed", "uid", user.ID, "from", string(user.Role), "to", string(r))
	user.Role = r
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, validationError(errors.New("uid is required"))
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, req model.ProfileUpdateRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	at := s.now().UTC()
	if err := s.repo.UpdateProfile(ctx, id, strings.TrimSpace(req.DisplayName), at); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	return s.Get(ctx, id)
}

func (s *UserService) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	return n, nil
}

// Admins lists accounts allowed to approve transactions.
func (s *UserService) Admins(ctx context.Context) ([]*model.User, error) {
	users, err := s.repo.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserStore, err)
	}
	return users, nil
}
