package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type memoryIdempotencyStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

type countingHandler struct {
	calls  int
	status int
}

func (c *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.calls++
	_, _ = io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.status)
	_, _ = w.Write([]byte(`{"data":{"clientSecret":"pi_1_secret"}}`))
}

func checkoutRequest(userID uuid.UUID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/payment/intent", strings.NewReader(body))
	req = req.WithContext(WithIdentity(req.Context(), userID, enums.UserRoleCustomer))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	next := &countingHandler{status: http.StatusCreated}
	handler := Idempotency(store, 7*24*time.Hour, nil)(next)
	userID := uuid.New()
	body := `{"orderId":"o-1","amount":"49.98"}`

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest(userID, "key-1", body))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest(userID, "key-1", body))

	assert.Equal(t, 1, next.calls)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	for _, ttl := range store.ttls {
		assert.Equal(t, 7*24*time.Hour, ttl)
	}
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	handler := Idempotency(newMemoryIdempotencyStore(), time.Hour, nil)(&countingHandler{status: http.StatusCreated})
	userID := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(userID, "key-1", `{"amount":"49.98"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(userID, "key-1", `{"amount":"1.00"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	handler := Idempotency(newMemoryIdempotencyStore(), time.Hour, nil)(next)

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(uuid.New(), "shared", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(uuid.New(), "shared", `{}`))

	assert.Equal(t, 2, next.calls)
}

func TestIdempotencyPassesThroughWithoutKeyAndSkipsServerErrors(t *testing.T) {
	store := newMemoryIdempotencyStore()
	next := &countingHandler{status: http.StatusServiceUnavailable}
	handler := Idempotency(store, time.Hour, nil)(next)
	userID := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(userID, "", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(userID, "key-1", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(userID, "key-1", `{}`))

	assert.Equal(t, 3, next.calls)
	assert.Empty(t, store.values)
}

func TestIdempotencyStoreOutageIsDependencyError(t *testing.T) {
	store := newMemoryIdempotencyStore()
	store.getErr = errors.New("redis down")
	next := &countingHandler{status: http.StatusCreated}

	rec := httptest.NewRecorder()
	Idempotency(store, time.Hour, nil)(next).ServeHTTP(rec, checkoutRequest(uuid.New(), "key-1", `{}`))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, next.calls)
}
