package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/bookstore-orders/internal/core/service"
)

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, env.router, http.MethodGet, "/health", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, env.router, http.MethodGet, "/api/orders", 0, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[errorResponse](t, rec.Body.Bytes()).Code)

	rec = env.do(t, env.router, http.MethodGet, "/api/orders", 0, "", "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := NewAuthenticator([]byte("other-secret")).IssueToken(env.customer, time.Hour)
	require.NoError(t, err)
	rec = env.do(t, env.router, http.MethodGet, "/api/orders", 0, "", "Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := env.auth.IssueToken(env.customer, -time.Minute)
	require.NoError(t, err)
	rec = env.do(t, env.router, http.MethodGet, "/api/orders", 0, "", "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrder_HTTP(t *testing.T) {
	env := newTestEnv(t)
	body := fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":3}]}`, env.book)

	rec := env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[OrderHTTPResponse](t, rec.Body.Bytes())
	assert.Equal(t, "30.00", order.TotalAmount)
	assert.Equal(t, "Pending", order.Status)
	assert.Equal(t, env.customer, order.UserID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "10.00", order.Items[0].PriceAtPurchase)
	assert.Equal(t, "Dune", order.Items[0].Title)
	assert.Equal(t, "/api/orders/"+order.ID, rec.Header().Get("Location"))

	rec = env.do(t, env.router, http.MethodPost, "/api/orders", env.other, body)
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[errorResponse](t, rec.Body.Bytes())
	assert.Equal(t, "insufficient_stock", errResp.Code)
	assert.Equal(t, env.book, errResp.BookID)
	require.NotNil(t, errResp.Available)
	require.NotNil(t, errResp.Requested)
	assert.Equal(t, 2, *errResp.Available)
	assert.Equal(t, 3, *errResp.Requested)
}

func TestPlaceOrder_HTTPMissingQuantityDefaultsToOne(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, fmt.Sprintf(`{"items":[{"book_id":%d}]}`, env.book))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[OrderHTTPResponse](t, rec.Body.Bytes())
	require.Len(t, order.Items, 1)
	assert.Equal(t, 1, order.Items[0].Quantity)
	assert.Equal(t, "10.00", order.TotalAmount)

	rec = env.do(t, env.router, http.MethodGet, fmt.Sprintf("/api/books/%d", env.book), env.customer, "")
	assert.Equal(t, 4, decode[BookHTTPResponse](t, rec.Body.Bytes()).StockQuantity)
}

func TestPlaceOrder_HTTPRejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed body", body: `{"items":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "empty cart", body: `{"items":[]}`, status: http.StatusBadRequest, code: "empty_cart"},
		{name: "zero quantity", body: fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":0}]}`, env.book), status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "unknown book", body: `{"items":[{"book_id":424242,"quantity":1}]}`, status: http.StatusNotFound, code: "book_not_found"},
		{name: "quantity above column range", body: fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":2147483648}]}`, env.book), status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "merged quantity overflows", body: fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":9223372036854775807},{"book_id":%d,"quantity":9223372036854775807}]}`, env.book, env.book), status: http.StatusBadRequest, code: "invalid_quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[errorResponse](t, rec.Body.Bytes()).Code)
		})
	}

	rec := env.do(t, env.router, http.MethodGet, fmt.Sprintf("/api/books/%d", env.book), env.customer, "")
	assert.Equal(t, 5, decode[BookHTTPResponse](t, rec.Body.Bytes()).StockQuantity)
}

func TestPlaceOrder_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t, service.WithIdempotencyCache(newMemoryCache()))
	body := fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":1}]}`, env.book)

	first := env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, body, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, body, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t,
		decode[OrderHTTPResponse](t, first.Body.Bytes()).ID,
		decode[OrderHTTPResponse](t, second.Body.Bytes()).ID)

	rec := env.do(t, env.router, http.MethodGet, fmt.Sprintf("/api/books/%d", env.book), env.customer, "")
	assert.Equal(t, 4, decode[BookHTTPResponse](t, rec.Body.Bytes()).StockQuantity)
}

func TestPlaceOrder_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handler, env.auth, NewRateLimiter(1, 1))
	body := fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":1}]}`, env.book)

	rec := env.do(t, router, http.MethodPost, "/api/orders", env.customer, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, router, http.MethodPost, "/api/orders", env.customer, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode[errorResponse](t, rec.Body.Bytes()).Code)

	// Buckets are per user.
	rec = env.do(t, router, http.MethodPost, "/api/orders", env.other, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetOrder_HTTPAccess(t *testing.T) {
	env := newTestEnv(t)
	body := fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":1}]}`, env.book)
	rec := env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[OrderHTTPResponse](t, rec.Body.Bytes()).ID

	assert.Equal(t, http.StatusOK, env.do(t, env.router, http.MethodGet, "/api/orders/"+id, env.customer, "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, env.router, http.MethodGet, "/api/orders/"+id, env.admin, "").Code)

	rec = env.do(t, env.router, http.MethodGet, "/api/orders/"+id, env.other, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[errorResponse](t, rec.Body.Bytes()).Code)

	rec = env.do(t, env.router, http.MethodGet, "/api/orders/missing", env.customer, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order_not_found", decode[errorResponse](t, rec.Body.Bytes()).Code)
}

func TestListOrders_HTTP(t *testing.T) {
	env := newTestEnv(t)
	body := fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":1}]}`, env.book)
	require.Equal(t, http.StatusCreated, env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, body).Code)
	require.Equal(t, http.StatusCreated, env.do(t, env.router, http.MethodPost, "/api/orders", env.other, body).Code)

	rec := env.do(t, env.router, http.MethodGet, "/api/orders", env.customer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]OrderHTTPResponse](t, rec.Body.Bytes())
	require.Len(t, mine, 1)
	assert.Equal(t, env.customer, mine[0].UserID)

	rec = env.do(t, env.router, http.MethodGet, "/api/orders", env.admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, env.do(t, env.router, http.MethodGet, "/api/orders/admin/all", env.customer, "").Code)

	rec = env.do(t, env.router, http.MethodGet, "/api/orders/admin/all", env.admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]OrderHTTPResponse](t, rec.Body.Bytes()), 2)
}

func TestSetOrderStatus_HTTP(t *testing.T) {
	env := newTestEnv(t)
	body := fmt.Sprintf(`{"items":[{"book_id":%d,"quantity":2}]}`, env.book)
	rec := env.do(t, env.router, http.MethodPost, "/api/orders", env.customer, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[OrderHTTPResponse](t, rec.Body.Bytes()).ID
	path := "/api/orders/admin/status/" + id

	rec = env.do(t, env.router, http.MethodPut, path, env.customer, `{"status":"Completed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, env.router, http.MethodPut, path, env.admin, `{"status":"Shipped"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decode[errorResponse](t, rec.Body.Bytes()).Code)

	rec = env.do(t, env.router, http.MethodPut, path, env.admin, `{"status":"Completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[OrderHTTPResponse](t, rec.Body.Bytes())
	assert.Equal(t, "Completed", order.Status)
	assert.Equal(t, "20.00", order.TotalAmount)

	rec = env.do(t, env.router, http.MethodPut, path, env.admin, `{"status":"Cancelled"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[errorResponse](t, rec.Body.Bytes()).Code)

	rec = env.do(t, env.router, http.MethodPut, "/api/orders/admin/status/missing", env.admin, `{"status":"Completed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.router, http.MethodGet, fmt.Sprintf("/api/books/%d", env.book), env.admin, "")
	assert.Equal(t, 3, decode[BookHTTPResponse](t, rec.Body.Bytes()).StockQuantity)
}

func TestBooks_HTTP(t *testing.T) {
	env := newTestEnv(t)
	bookPath := fmt.Sprintf("/api/books/%d", env.book)

	rec := env.do(t, env.router, http.MethodGet, bookPath, env.customer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	book := decode[BookHTTPResponse](t, rec.Body.Bytes())
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, "10.00", book.Price)

	assert.Equal(t, http.StatusNotFound, env.do(t, env.router, http.MethodGet, "/api/books/abc", env.customer, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, env.router, http.MethodGet, "/api/books/999999", env.customer, "").Code)

	assert.Equal(t, http.StatusForbidden, env.do(t, env.router, http.MethodPut, bookPath+"/stock", env.customer, `{"delta":5}`).Code)

	rec = env.do(t, env.router, http.MethodPut, bookPath+"/stock", env.admin, `{"delta":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"book_id":%d,"stock_quantity":10}`, env.book), rec.Body.String())

	rec = env.do(t, env.router, http.MethodPut, bookPath+"/stock", env.admin, `{"delta":-11}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_stock_adjustment", decode[errorResponse](t, rec.Body.Bytes()).Code)

	rec = env.do(t, env.router, http.MethodPut, bookPath+"/stock", env.admin, `{"delta":9223372036854775807}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_stock_adjustment", decode[errorResponse](t, rec.Body.Bytes()).Code)

	rec = env.do(t, env.router, http.MethodGet, bookPath, env.customer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, decode[BookHTTPResponse](t, rec.Body.Bytes()).StockQuantity)
}

func TestStorageFailure_LoggedThroughHandlerLogger(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := NewHTTPHandler(env.orders, service.NewInventoryService(env.store, logger), logger, env.store)
	router := NewRouter(h, env.auth, NewRateLimiter(600, 100))
	require.NoError(t, env.store.Close())

	rec := env.do(t, router, http.MethodGet, fmt.Sprintf("/api/books/%d", env.book), env.customer, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[errorResponse](t, rec.Body.Bytes())
	assert.Equal(t, "storage_failure", resp.Code)
	assert.Equal(t, "internal error", resp.Error)

	assert.Contains(t, buf.String(), `"msg":"request failed"`)
	assert.Contains(t, buf.String(), "database is closed")
}
