package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func newTestManager() (*Manager, *mockStore) {
	store := newMockStore()
	return &Manager{store: store, keyer: store, ttl: time.Hour}, store
}

func TestManagerGenerateAndRotate(t *testing.T) {
	manager, store := newTestManager()
	ctx := context.Background()
	userID := uuid.New()

	token, err := manager.Generate(ctx, "access-123", userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := manager.HasSession(ctx, "access-123")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = manager.Rotate(ctx, "access-123", userID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	newAccessID, newToken, err := manager.Rotate(ctx, "access-123", userID, token)
	require.NoError(t, err)
	assert.NotEqual(t, token, newToken)

	_, exists := store.data[store.AccessSessionKey("access-123")]
	assert.False(t, exists, "old access key left behind")

	ok, err = manager.HasSession(ctx, newAccessID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRotateRejectsForeignUser(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-1", uuid.New())
	require.NoError(t, err)

	_, _, err = manager.Rotate(ctx, "access-1", uuid.New(), token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateUnknownSession(t *testing.T) {
	manager, _ := newTestManager()
	_, _, err := manager.Rotate(context.Background(), "missing", uuid.New(), "token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevokeRemovesSession(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	_, err := manager.Generate(ctx, "access-9", uuid.New())
	require.NoError(t, err)
	require.NoError(t, manager.Revoke(ctx, "access-9"))

	ok, err := manager.HasSession(ctx, "access-9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateValidatesInput(t *testing.T) {
	manager, _ := newTestManager()
	_, err := manager.Generate(context.Background(), " ", uuid.New())
	require.Error(t, err)
	_, err = manager.Generate(context.Background(), "access", uuid.Nil)
	require.Error(t, err)
}
