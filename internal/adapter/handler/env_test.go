package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/bookstore-orders/internal/adapter/storage"
	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/core/service"
)

type testEnv struct {
	store    *storage.SQLStore
	auth     *Authenticator
	orders   *service.OrderService
	handler  *HTTPHandler
	router   http.Handler
	admin    int64
	customer int64
	other    int64
	book     int64
}

func newTestEnv(t *testing.T, opts ...service.OrderServiceOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.SQLite, filepath.Join(t.TempDir(), "handler.db"), storage.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.EnsureRoles(ctx, domain.DefaultRoles))

	env := &testEnv{store: store, auth: NewAuthenticator([]byte("test-secret"))}
	env.admin, err = store.CreateUser(ctx, "admin", "admin@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	env.customer, err = store.CreateUser(ctx, "alice", "alice@example.com", domain.RoleCustomer)
	require.NoError(t, err)
	env.other, err = store.CreateUser(ctx, "bob", "bob@example.com", domain.RoleCustomer)
	require.NoError(t, err)
	env.book, err = store.InsertBook(ctx, domain.Book{Title: "Dune", Price: decimal.RequireFromString("10.00"), StockQuantity: 5})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	env.orders = service.NewOrderService(store, append([]service.OrderServiceOption{service.WithLogger(logger)}, opts...)...)
	env.handler = NewHTTPHandler(env.orders, service.NewInventoryService(store, logger), logger, store)
	env.router = NewRouter(env.handler, env.auth, NewRateLimiter(600, 100))
	return env
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := e.auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, router http.Handler, method, path string, userID int64, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// memoryCache is an in-process stand-in for the Redis idempotency adapter.
type memoryCache struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{keys: make(map[string]string)}
}

func (c *memoryCache) ClaimIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.keys[key]
	if !ok {
		c.keys[key] = ""
		return "", true, nil
	}
	return v, false, nil
}

func (c *memoryCache) CompleteIdempotencyKey(_ context.Context, key, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = orderID
	return nil
}

func (c *memoryCache) ReleaseIdempotencyKey(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}
