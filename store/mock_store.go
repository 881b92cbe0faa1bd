package store

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCollectionStore implements CollectionStore for testing.
type MockCollectionStore struct {
	mock.Mock
}

func (m *MockCollectionStore) Get(ctx context.Context, path string) (*Collection, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Collection), args.Error(1)
}

func (m *MockCollectionStore) Children(ctx context.Context, parentPath string) ([]*Collection, error) {
	args := m.Called(ctx, parentPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Collection), args.Error(1)
}

func (m *MockCollectionStore) Exists(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

func (m *MockCollectionStore) Disable(ctx context.Context, path string, status RefreshStatus) error {
	args := m.Called(ctx, path, status)
	return args.Error(0)
}

func (m *MockCollectionStore) FindAliases(ctx context.Context, targetPath string) ([]*Collection, error) {
	args := m.Called(ctx, targetPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Collection), args.Error(1)
}

// MockEventStore implements EventStore for testing.
type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) ChangedSince(ctx context.Context, collectionPath, token string) ([]*Event, error) {
	args := m.Called(ctx, collectionPath, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Event), args.Error(1)
}

func (m *MockEventStore) IsVisible(ctx context.Context, col *Collection, entityName string) (bool, error) {
	args := m.Called(ctx, col, entityName)
	return args.Bool(0), args.Error(1)
}

// MockResourceStore implements ResourceStore for testing.
type MockResourceStore struct {
	mock.Mock
}

func (m *MockResourceStore) ChangedSince(ctx context.Context, collectionPath, token string) ([]*Resource, error) {
	args := m.Called(ctx, collectionPath, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Resource), args.Error(1)
}

// MockAccessEvaluator implements AccessEvaluator for testing.
type MockAccessEvaluator struct {
	mock.Mock
}

func (m *MockAccessEvaluator) CheckAccess(ctx context.Context, sess *Session, col *Collection, priv Privilege) (bool, error) {
	args := m.Called(ctx, sess, col, priv)
	return args.Bool(0), args.Error(1)
}

// MockInviteStore implements InviteStore for testing.
type MockInviteStore struct {
	mock.Mock
}

func (m *MockInviteStore) InviteStatus(ctx context.Context, col *Collection) ([]Invitee, error) {
	args := m.Called(ctx, col)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Invitee), args.Error(1)
}

// MockDirectory implements Directory for testing.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) CaladdrToPrincipal(ctx context.Context, href string) (*Principal, error) {
	args := m.Called(ctx, href)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Principal), args.Error(1)
}
