package service

import (
	"context"
	"log/slog"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/port"
)

// InventoryService is the restock path for the stock counter. It writes
// through the same conditional update discipline as order reservation.
type InventoryService struct {
	catalog port.CatalogRepository
	logger  *slog.Logger
}

func NewInventoryService(catalog port.CatalogRepository, logger *slog.Logger) *InventoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryService{catalog: catalog, logger: logger}
}

func (s *InventoryService) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return domain.Book{}, domain.AsStorageFailure("get book", err)
	}
	return book, nil
}

// AdjustStock applies delta to a book's stock and returns the new quantity.
// A delta that would leave stock negative fails with ErrInvalidStockAdjustment.
func (s *InventoryService) AdjustStock(ctx context.Context, bookID int64, delta int) (int, error) {
	qty, err := s.catalog.AdjustStock(ctx, bookID, delta)
	if err != nil {
		return 0, domain.AsStorageFailure("adjust stock", err)
	}
	s.logger.InfoContext(ctx, "stock adjusted",
		slog.Int64("book_id", bookID),
		slog.Int("delta", delta),
		slog.Int("stock_quantity", qty),
	)
	return qty, nil
}
