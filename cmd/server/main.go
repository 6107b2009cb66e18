package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/bookstore-orders/internal/adapter/handler"
	"github.com/rl1809/bookstore-orders/internal/adapter/storage"
	"github.com/rl1809/bookstore-orders/internal/config"
	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/core/service"
	"github.com/rl1809/bookstore-orders/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	if path, err := config.FindEnvFile(); err == nil && path != "" {
		if err := config.LoadEnvFile(path); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	// Database
	dialect, err := storage.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, dialect, cfg.DatabaseURL, storage.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("connected to database", slog.String("driver", string(dialect)))

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if err := store.EnsureRoles(ctx, domain.DefaultRoles); err != nil {
		return err
	}
	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	logger.Info("schema ready", slog.String("version", version.String()))

	opts := []service.OrderServiceOption{service.WithLogger(logger)}
	health := []handler.Pinger{store}

	// Redis is optional; without it Idempotency-Key headers are ignored.
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		defer rdb.Close()

		cache := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		if err := cache.Ping(ctx); err != nil {
			return err
		}
		opts = append(opts, service.WithIdempotencyCache(cache))
		health = append(health, cache)
		logger.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
	}

	orderService := service.NewOrderService(store, opts...)
	inventoryService := service.NewInventoryService(store, logger)

	auth := handler.NewAuthenticator([]byte(cfg.JWTSecret))
	limiter := handler.NewRateLimiter(cfg.OrderRatePerMinute, cfg.OrderRateBurst)

	// gRPC server
	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(orderService), auth, limiter, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(orderService, inventoryService, logger, health...)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, auth, limiter),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", slog.Any("error", err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
