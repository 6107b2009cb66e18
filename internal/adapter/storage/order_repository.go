package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/port"
)

type orderRow struct {
	ID          string          `db:"id"`
	UserID      int64           `db:"user_id"`
	CreatedAt   time.Time       `db:"created_at"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	Status      string          `db:"status"`
}

type orderItemRow struct {
	OrderID         string          `db:"order_id"`
	LineNo          int             `db:"line_no"`
	BookID          int64           `db:"book_id"`
	BookTitle       string          `db:"book_title"`
	Quantity        int             `db:"quantity"`
	PriceAtPurchase decimal.Decimal `db:"price_at_purchase"`
}

func (r orderRow) toDomain(items []orderItemRow) domain.Order {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.OrderLine{
			LineNo:          it.LineNo,
			BookID:          it.BookID,
			BookTitle:       it.BookTitle,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase,
		})
	}
	return domain.Order{
		ID:          r.ID,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt.UTC(),
		TotalAmount: r.TotalAmount,
		Status:      domain.OrderStatus(r.Status),
		Lines:       lines,
	}
}

const (
	selectOrder      = `SELECT id, user_id, created_at, total_amount, status FROM orders`
	selectOrderItems = `SELECT order_id, line_no, book_id, book_title, quantity, price_at_purchase FROM order_items`
)

func (s *SQLStore) CreateOrder(ctx context.Context, order domain.Order) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.ext(ctx)
		_, err := q.ExecContext(ctx, s.rebind(`
			INSERT INTO orders (id, user_id, created_at, total_amount, status)
			VALUES (?, ?, ?, ?, ?)`),
			order.ID, order.UserID, order.CreatedAt.UTC(), order.TotalAmount, string(order.Status),
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, l := range order.Lines {
			_, err := q.ExecContext(ctx, s.rebind(`
				INSERT INTO order_items (order_id, line_no, book_id, book_title, quantity, price_at_purchase)
				VALUES (?, ?, ?, ?, ?, ?)`),
				order.ID, l.LineNo, l.BookID, l.BookTitle, l.Quantity, l.PriceAtPurchase,
			)
			if err != nil {
				return fmt.Errorf("insert order item %d: %w", l.LineNo, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.getOrder(ctx, s.rebind(selectOrder+" WHERE id = ?"), orderID)
}

func (s *SQLStore) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return s.getOrder(ctx, s.rebind(selectOrder+" WHERE id = ?"+s.dialect.forUpdate()), orderID)
}

func (s *SQLStore) getOrder(ctx context.Context, query, orderID string) (domain.Order, error) {
	q := s.ext(ctx)

	var row orderRow
	err := sqlx.GetContext(ctx, q, &row, query, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	var items []orderItemRow
	err = sqlx.SelectContext(ctx, q, &items, s.rebind(selectOrderItems+" WHERE order_id = ? ORDER BY line_no"), orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order items: %w", err)
	}
	return row.toDomain(items), nil
}

func (s *SQLStore) ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	q := s.ext(ctx)

	query := selectOrder
	var args []any
	if filter.UserID != 0 {
		query += " WHERE user_id = ?"
		args = append(args, filter.UserID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	var rows []orderRow
	if err := sqlx.SelectContext(ctx, q, &rows, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Order{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	inQuery, inArgs, err := sqlx.In(selectOrderItems+" WHERE order_id IN (?) ORDER BY order_id, line_no", ids)
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}

	var items []orderItemRow
	if err := sqlx.SelectContext(ctx, q, &items, s.rebind(inQuery), inArgs...); err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	byOrder := make(map[string][]orderItemRow, len(rows))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toDomain(byOrder[r.ID]))
	}
	return orders, nil
}

func (s *SQLStore) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	res, err := s.ext(ctx).ExecContext(ctx, s.rebind(`UPDATE orders SET status = ? WHERE id = ?`), string(status), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if rows == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
