package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// ParseOrderStatus accepts exactly the three recognized status names.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", ErrInvalidStatus
}

// Terminal reports whether no transition may leave the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransition reports whether an order in s may move to target.
// Re-applying the current status is allowed and changes nothing.
func (s OrderStatus) CanTransition(target OrderStatus) bool {
	if s == target {
		return true
	}
	return !s.Terminal()
}

// LineRequest is one cart entry as submitted by the client.
type LineRequest struct {
	BookID   int64
	Quantity int
}

// OrderLine is immutable once the order is committed.
type OrderLine struct {
	LineNo          int
	BookID          int64
	BookTitle       string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// Subtotal is price_at_purchase x quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID          string
	UserID      int64
	CreatedAt   time.Time
	TotalAmount decimal.Decimal
	Status      OrderStatus
	Lines       []OrderLine
}

// NewOrder builds a Pending order whose total is derived from its lines.
func NewOrder(id string, userID int64, createdAt time.Time, lines []OrderLine) Order {
	return Order{
		ID:          id,
		UserID:      userID,
		CreatedAt:   createdAt,
		TotalAmount: OrderTotal(lines),
		Status:      OrderStatusPending,
		Lines:       lines,
	}
}

// OrderTotal sums the line subtotals.
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
