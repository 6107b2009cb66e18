package service

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/port"
)

type fakeTxKey struct{}

// fakeStore serializes transactions on one mutex and restores a snapshot
// when the transaction function fails.
type fakeStore struct {
	mu     sync.Mutex
	books  map[int64]domain.Book
	orders map[string]domain.Order
	admins map[int64]bool

	createErr  error
	decrements int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:  make(map[int64]domain.Book),
		orders: make(map[string]domain.Order),
		admins: make(map[int64]bool),
	}
}

func (f *fakeStore) addBook(id int64, title string, price string, stock int) {
	f.books[id] = domain.Book{ID: id, Title: title, Price: decimal.RequireFromString(price), StockQuantity: stock}
}

func (f *fakeStore) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[id].StockQuantity
}

func (f *fakeStore) setPrice(id int64, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.books[id]
	b.Price = decimal.RequireFromString(price)
	f.books[id] = b
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeStore) lock(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	books := make(map[int64]domain.Book, len(f.books))
	for k, v := range f.books {
		books[k] = v
	}
	orders := make(map[string]domain.Order, len(f.orders))
	for k, v := range f.orders {
		orders[k] = v
	}

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		f.books = books
		f.orders = orders
		return err
	}
	return nil
}

func (f *fakeStore) GetBookForUpdate(ctx context.Context, bookID int64) (domain.Book, error) {
	return f.GetBook(ctx, bookID)
}

func (f *fakeStore) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	defer f.lock(ctx)()
	b, ok := f.books[bookID]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return b, nil
}

func (f *fakeStore) DecrementStock(ctx context.Context, bookID int64, quantity int) (bool, error) {
	defer f.lock(ctx)()
	b, ok := f.books[bookID]
	if !ok || b.StockQuantity < quantity {
		return false, nil
	}
	b.StockQuantity -= quantity
	f.books[bookID] = b
	f.decrements++
	return true, nil
}

func (f *fakeStore) AdjustStock(ctx context.Context, bookID int64, delta int) (int, error) {
	defer f.lock(ctx)()
	b, ok := f.books[bookID]
	if !ok {
		return 0, domain.ErrBookNotFound
	}
	if delta < -b.StockQuantity || delta > domain.MaxStockQuantity-b.StockQuantity {
		return 0, domain.ErrInvalidStockAdjustment
	}
	b.StockQuantity += delta
	f.books[bookID] = b
	return b.StockQuantity, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, order domain.Order) error {
	defer f.lock(ctx)()
	if f.createErr != nil {
		return f.createErr
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	defer f.lock(ctx)()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return f.GetOrder(ctx, orderID)
}

func (f *fakeStore) ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	defer f.lock(ctx)()
	out := make([]domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		if filter.UserID != 0 && o.UserID != filter.UserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	defer f.lock(ctx)()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	f.orders[orderID] = o
	return nil
}

func (f *fakeStore) EnsureRoles(context.Context, []domain.Role) error {
	return nil
}

func (f *fakeStore) HasRole(ctx context.Context, userID int64, role domain.Role) (bool, error) {
	defer f.lock(ctx)()
	return role == domain.RoleAdmin && f.admins[userID], nil
}

// unlockedStore runs transaction functions without serializing them, so reads
// go stale between the availability check and the decrement. Only the
// conditional decrement stands between concurrent buyers. Nothing rolls back,
// so use it with single-line carts.
type unlockedStore struct {
	*fakeStore
}

func (u unlockedStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (u unlockedStore) GetBookForUpdate(ctx context.Context, bookID int64) (domain.Book, error) {
	b, err := u.fakeStore.GetBook(ctx, bookID)
	runtime.Gosched()
	return b, err
}

// fakeCache mirrors the Redis adapter's claim/complete/release protocol.
type fakeCache struct {
	mu   sync.Mutex
	keys map[string]string
}

const pendingMarker = "pending"

func newFakeCache() *fakeCache {
	return &fakeCache{keys: make(map[string]string)}
}

func (c *fakeCache) ClaimIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.keys[key]
	if !ok {
		c.keys[key] = pendingMarker
		return "", true, nil
	}
	if v == pendingMarker {
		return "", false, nil
	}
	return v, false, nil
}

func (c *fakeCache) CompleteIdempotencyKey(_ context.Context, key, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = orderID
	return nil
}

func (c *fakeCache) ReleaseIdempotencyKey(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

// steppingClock advances one second per call so orders sort deterministically.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
