package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/bookstore-orders/internal/adapter/storage"
	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	concurrency   = 16
)

// DB_DRIVER and DATABASE_URL select the store; a throwaway SQLite file is
// used when they are unset.
func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, cleanup, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	bookID, err := store.InsertBook(ctx, domain.Book{
		Title:         "Stress " + uuid.NewString()[:8],
		Price:         decimal.RequireFromString("9.99"),
		StockQuantity: initialStock,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed book: %v\n", err)
		os.Exit(1)
	}

	orderService := service.NewOrderService(store, service.WithLogger(logger))

	var successCount, soldOutCount, errorCount atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		userID := int64(i + 1)
		g.Go(func() error {
			_, err := orderService.PlaceOrder(gctx, service.PlaceOrderInput{
				UserID: userID,
				Lines:  []domain.LineRequest{{BookID: bookID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				fmt.Fprintf(os.Stderr, "user %d: %v\n", userID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", store.Dialect())
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
		failed = true
	}

	book, err := store.GetBook(ctx, bookID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read final stock: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Final Stock:      %d\n", book.StockQuantity)
	if book.StockQuantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", book.StockQuantity)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*storage.SQLStore, func(), error) {
	driver, dsn := os.Getenv("DB_DRIVER"), os.Getenv("DATABASE_URL")
	if driver == "" {
		dir, err := os.MkdirTemp("", "bookstore-stress-")
		if err != nil {
			return nil, nil, err
		}
		store, err := storage.Open(ctx, storage.SQLite, filepath.Join(dir, "stress.db"), storage.PoolConfig{})
		if err != nil {
			os.RemoveAll(dir)
			return nil, nil, err
		}
		return store, func() {
			store.Close()
			os.RemoveAll(dir)
		}, nil
	}

	dialect, err := storage.ParseDialect(driver)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(ctx, dialect, dsn, storage.PoolConfig{MaxOpenConns: concurrency * 2, MaxIdleConns: concurrency})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
