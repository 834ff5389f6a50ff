package services

import (
	"context"
	"sync"
	"time"

	"github.com/kryos/kryos-api/internal/gateway"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockOrderGateway struct {
	mock.Mock
}

func (m *MockOrderGateway) CreateOrder(ctx context.Context, p gateway.OrderParams) (*model.Order, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderGateway) KeyID() string {
	return m.Called().String(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishTransaction(ctx context.Context, eventType string, txn *model.Transaction) (string, error) {
	args := m.Called(ctx, eventType, txn)
	return args.String(0), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdateIdentity(ctx context.Context, id, email, displayName string, role model.Role) error {
	return m.Called(ctx, id, email, displayName, role).Error(0)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id, displayName string, at time.Time) error {
	return m.Called(ctx, id, displayName, at).Error(0)
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.User), args.Error(1)
}

type MockMediaGateway struct {
	mock.Mock
}

func (m *MockMediaGateway) Configured() bool {
	return m.Called().Bool(0)
}

func (m *MockMediaGateway) Upload(ctx context.Context, p gateway.UploadParams) (*gateway.Resource, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Resource), args.Error(1)
}

func (m *MockMediaGateway) Destroy(ctx context.Context, publicID, resourceType string) (string, error) {
	args := m.Called(ctx, publicID, resourceType)
	return args.String(0), args.Error(1)
}

func (m *MockMediaGateway) Search(ctx context.Context, expression string, maxResults int) ([]gateway.Resource, error) {
	args := m.Called(ctx, expression, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gateway.Resource), args.Error(1)
}

// memStore is an in-memory TransactionStore and LedgerStore.
type memStore struct {
	mu    sync.Mutex
	txns  []*model.Transaction
	saves int
	err   error
}

func (s *memStore) Put(_ context.Context, txn *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, t := range s.txns {
		if t.ID == txn.ID {
			return repository.ErrDuplicate
		}
	}
	s.txns = append([]*model.Transaction{txn}, s.txns...)
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*model.Transaction
	for _, t := range s.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) Load(_ context.Context) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*model.Transaction, len(s.txns))
	for i, t := range s.txns {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, txns []*model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.txns = txns
	return nil
}

func (s *memStore) all() []*model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Transaction(nil), s.txns...)
}
