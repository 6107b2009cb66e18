package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
)

type bookRow struct {
	ID              int64           `db:"id"`
	Title           string          `db:"title"`
	Price           decimal.Decimal `db:"price"`
	StockQuantity   int             `db:"stock_quantity"`
	PublicationDate sql.NullTime    `db:"publication_date"`
}

func (r bookRow) toDomain() domain.Book {
	b := domain.Book{
		ID:            r.ID,
		Title:         r.Title,
		Price:         r.Price,
		StockQuantity: r.StockQuantity,
	}
	if r.PublicationDate.Valid {
		t := r.PublicationDate.Time
		b.PublicationDate = &t
	}
	return b
}

const selectBook = `SELECT id, title, price, stock_quantity, publication_date FROM books WHERE id = ?`

func (s *SQLStore) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	return s.getBook(ctx, s.rebind(selectBook), bookID)
}

func (s *SQLStore) GetBookForUpdate(ctx context.Context, bookID int64) (domain.Book, error) {
	return s.getBook(ctx, s.rebind(selectBook+s.dialect.forUpdate()), bookID)
}

func (s *SQLStore) getBook(ctx context.Context, query string, bookID int64) (domain.Book, error) {
	var row bookRow
	err := sqlx.GetContext(ctx, s.ext(ctx), &row, query, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, domain.ErrBookNotFound
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("query book %d: %w", bookID, err)
	}
	return row.toDomain(), nil
}

func (s *SQLStore) DecrementStock(ctx context.Context, bookID int64, quantity int) (bool, error) {
	res, err := s.ext(ctx).ExecContext(ctx, s.rebind(`
		UPDATE books
		SET stock_quantity = stock_quantity - ?
		WHERE id = ? AND stock_quantity >= ?`),
		quantity, bookID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return rows == 1, nil
}

func (s *SQLStore) AdjustStock(ctx context.Context, bookID int64, delta int) (int, error) {
	var qty int
	err := s.WithTx(ctx, func(ctx context.Context) error {
		book, err := s.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if delta < -book.StockQuantity || delta > domain.MaxStockQuantity-book.StockQuantity {
			return fmt.Errorf("%w: book %d has %d, delta %d", domain.ErrInvalidStockAdjustment, bookID, book.StockQuantity, delta)
		}
		// MySQL reports zero affected rows for a no-op update.
		if delta == 0 {
			qty = book.StockQuantity
			return nil
		}

		res, err := s.ext(ctx).ExecContext(ctx, s.rebind(`
			UPDATE books
			SET stock_quantity = stock_quantity + ?
			WHERE id = ? AND stock_quantity + ? >= 0`),
			delta, bookID, delta,
		)
		if err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: book %d has %d, delta %d", domain.ErrInvalidStockAdjustment, bookID, book.StockQuantity, delta)
		}
		qty = book.StockQuantity + delta
		return nil
	})
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// InsertBook adds a catalog entry and returns its id. Catalog maintenance
// lives outside this service; seeding and tests use this.
func (s *SQLStore) InsertBook(ctx context.Context, book domain.Book) (int64, error) {
	var pub sql.NullTime
	if book.PublicationDate != nil {
		pub = sql.NullTime{Time: *book.PublicationDate, Valid: true}
	}

	const insert = `INSERT INTO books (title, price, stock_quantity, publication_date) VALUES (?, ?, ?, ?)`
	if s.dialect.returningID() {
		var id int64
		err := sqlx.GetContext(ctx, s.ext(ctx), &id, s.rebind(insert+" RETURNING id"),
			book.Title, book.Price, book.StockQuantity, pub)
		if err != nil {
			return 0, fmt.Errorf("insert book: %w", err)
		}
		return id, nil
	}

	res, err := s.ext(ctx).ExecContext(ctx, s.rebind(insert), book.Title, book.Price, book.StockQuantity, pub)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return id, nil
}
