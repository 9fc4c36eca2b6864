package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mariposavintage/mariposa-backend/pkg/logger"
)

type memoryIdempotencyStore struct {
	data map[string]string
}

func (m *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	if m.data == nil {
		return "", redis.Nil
	}
	value, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.data == nil {
		m.data = map[string]string{}
	}
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "mariposa:idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func checkoutRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	r.Header.Set("Idempotency-Key", "key-1")
	return r
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "middleware-test"})
	store := &memoryIdempotencyStore{}

	calls := 0
	handler := Idempotency(store, 0, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"order_id":"abc"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest(`{"items":[]}`))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest(`{"items":[]}`))
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, calls)
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "middleware-test"})
	store := &memoryIdempotencyStore{}

	handler := Idempotency(store, 0, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest(`{"items":[1]}`))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest(`{"items":[2]}`))
	require.Equal(t, http.StatusConflict, second.Code)
}

func TestIdempotencyRequiresHeaderOnCheckout(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "middleware-test"})
	store := &memoryIdempotencyStore{}

	handler := Idempotency(store, 0, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotencyIgnoresUnmatchedRoutes(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "middleware-test"})
	store := &memoryIdempotencyStore{}

	calls := 0
	handler := Idempotency(store, 0, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, 2, calls)
}
