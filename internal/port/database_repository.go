package port

import (
	"context"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
)

// Transactor runs fn in one storage transaction. Repository calls made with
// the context passed to fn join that transaction; fn returning an error rolls
// everything back.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CatalogRepository interface {
	// GetBookForUpdate reads a book and holds its row lock until the surrounding transaction ends
	GetBookForUpdate(ctx context.Context, bookID int64) (domain.Book, error)

	// GetBook reads a book without locking
	GetBook(ctx context.Context, bookID int64) (domain.Book, error)

	// DecrementStock subtracts quantity only if enough stock remains, returns false otherwise
	DecrementStock(ctx context.Context, bookID int64, quantity int) (bool, error)

	// AdjustStock adds delta (may be negative) without letting stock go below zero, returns the new quantity
	AdjustStock(ctx context.Context, bookID int64, delta int) (int, error)
}

// OrderFilter narrows ListOrders; a zero UserID lists every user's orders.
type OrderFilter struct {
	UserID int64
}

type OrderRepository interface {
	// CreateOrder persists the order together with its lines
	CreateOrder(ctx context.Context, order domain.Order) error

	GetOrder(ctx context.Context, orderID string) (domain.Order, error)

	// GetOrderForUpdate reads an order and locks its row for a status change
	GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error)

	// ListOrders returns orders most recent first
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)

	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}

type RoleRepository interface {
	// EnsureRoles inserts missing roles, leaves existing ones untouched
	EnsureRoles(ctx context.Context, roles []domain.Role) error

	HasRole(ctx context.Context, userID int64, role domain.Role) (bool, error)
}

// DatabaseRepository is everything the SQL store provides.
type DatabaseRepository interface {
	Transactor
	CatalogRepository
	OrderRepository
	RoleRepository
}
