package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/port"
)

// InventoryReserver checks and decrements stock for every line of one order.
// Reserve must run inside a transaction opened by a port.Transactor so that a
// failure on any line rolls back the decrements of the others.
type InventoryReserver struct {
	catalog port.CatalogRepository
}

func NewInventoryReserver(catalog port.CatalogRepository) *InventoryReserver {
	return &InventoryReserver{catalog: catalog}
}

// Reserve locks the books named by lines, validates availability for all of
// them, then decrements stock and returns priced order lines. Nothing is
// decremented unless every line passes.
func (r *InventoryReserver) Reserve(ctx context.Context, lines []domain.LineRequest) ([]domain.OrderLine, error) {
	lines, err := normalizeLines(lines)
	if err != nil {
		return nil, err
	}

	// Ascending id order so two carts sharing books cannot deadlock.
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.BookID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	books := make(map[int64]domain.Book, len(ids))
	for _, id := range ids {
		book, err := r.catalog.GetBookForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		books[id] = book
	}

	for _, l := range lines {
		book, ok := books[l.BookID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", domain.ErrBookNotFound, l.BookID)
		}
		if book.StockQuantity < l.Quantity {
			return nil, insufficient(book, l.Quantity)
		}
	}

	reserved := make([]domain.OrderLine, 0, len(lines))
	for i, l := range lines {
		book := books[l.BookID]
		ok, err := r.catalog.DecrementStock(ctx, l.BookID, l.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement stock for book %d: %w", l.BookID, err)
		}
		if !ok {
			return nil, insufficient(book, l.Quantity)
		}
		reserved = append(reserved, domain.OrderLine{
			LineNo:          i + 1,
			BookID:          book.ID,
			BookTitle:       book.Title,
			Quantity:        l.Quantity,
			PriceAtPurchase: domain.PriceSnapshot(book, l.Quantity),
		})
	}
	return reserved, nil
}

// normalizeLines rejects quantities outside (0, MaxStockQuantity] and merges
// repeated books into their first position. Merged sums obey the same bound.
func normalizeLines(lines []domain.LineRequest) ([]domain.LineRequest, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	merged := make([]domain.LineRequest, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 || l.Quantity > domain.MaxStockQuantity {
			return nil, fmt.Errorf("%w: book %d quantity %d", domain.ErrInvalidQuantity, l.BookID, l.Quantity)
		}
		if i, ok := index[l.BookID]; ok {
			if merged[i].Quantity > domain.MaxStockQuantity-l.Quantity {
				return nil, fmt.Errorf("%w: book %d combined quantity exceeds %d", domain.ErrInvalidQuantity, l.BookID, domain.MaxStockQuantity)
			}
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.BookID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

func insufficient(book domain.Book, requested int) error {
	return &domain.InsufficientStockError{
		BookID:    book.ID,
		Title:     book.Title,
		Available: book.StockQuantity,
		Requested: requested,
	}
}
