package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/bookstore-orders/internal/clock"
	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/port"
)

const instrumentationName = "github.com/rl1809/bookstore-orders/internal/core/service"

type OrderService struct {
	tx       port.Transactor
	orders   port.OrderRepository
	roles    port.RoleRepository
	reserver *InventoryReserver
	cache    port.CacheRepository
	clock    clock.Clock
	logger   *slog.Logger
	newID    func() string

	tracer   trace.Tracer
	placed   metric.Int64Counter
	rejected metric.Int64Counter
}

type OrderServiceOption func(*OrderService)

// WithIdempotencyCache enables Idempotency-Key handling on PlaceOrder.
func WithIdempotencyCache(cache port.CacheRepository) OrderServiceOption {
	return func(s *OrderService) {
		s.cache = cache
	}
}

func WithClock(clk clock.Clock) OrderServiceOption {
	return func(s *OrderService) {
		if clk != nil {
			s.clock = clk
		}
	}
}

func WithLogger(logger *slog.Logger) OrderServiceOption {
	return func(s *OrderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) OrderServiceOption {
	return func(s *OrderService) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithIDGenerator overrides uuid order ids.
func WithIDGenerator(fn func() string) OrderServiceOption {
	return func(s *OrderService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewOrderService(repo port.DatabaseRepository, opts ...OrderServiceOption) *OrderService {
	s := &OrderService{
		tx:       repo,
		orders:   repo,
		roles:    repo,
		reserver: NewInventoryReserver(repo),
		clock:    clock.NewSystem(),
		logger:   slog.Default(),
		newID:    uuid.NewString,
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter(instrumentationName)
	s.placed = int64Counter(meter, "bookstore.orders.placed", "Orders committed")
	s.rejected = int64Counter(meter, "bookstore.orders.rejected", "Order placements that failed")
	return s
}

type PlaceOrderInput struct {
	UserID         int64
	Lines          []domain.LineRequest
	IdempotencyKey string
}

type PlaceOrderResult struct {
	Order domain.Order
	// Created is false when an idempotency key replayed an earlier order.
	Created bool
}

// PlaceOrder reserves stock for every line and persists a Pending order in a
// single transaction. Business errors are returned unchanged; anything else
// comes back as a *domain.StorageError.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.Int64("user.id", in.UserID),
		attribute.Int("order.lines", len(in.Lines)),
	))
	defer span.End()

	res, err := s.placeOrder(ctx, in)
	if err != nil {
		s.recordFailure(ctx, span, "place order", err,
			slog.Int64("user_id", in.UserID),
			slog.Int("lines", len(in.Lines)),
		)
		return PlaceOrderResult{}, err
	}

	span.SetAttributes(attribute.String("order.id", res.Order.ID), attribute.Bool("order.created", res.Created))
	if res.Created {
		s.placed.Add(ctx, 1)
		s.logger.InfoContext(ctx, "order placed",
			slog.String("order_id", res.Order.ID),
			slog.Int64("user_id", res.Order.UserID),
			slog.Int("lines", len(res.Order.Lines)),
			slog.String("total", res.Order.TotalAmount.StringFixed(2)),
		)
	}
	return res, nil
}

func (s *OrderService) placeOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	if len(in.Lines) == 0 {
		return PlaceOrderResult{}, domain.ErrEmptyCart
	}
	if _, err := normalizeLines(in.Lines); err != nil {
		return PlaceOrderResult{}, err
	}

	if in.IdempotencyKey == "" || s.cache == nil {
		order, err := s.commitOrder(ctx, in.UserID, in.Lines)
		if err != nil {
			return PlaceOrderResult{}, err
		}
		return PlaceOrderResult{Order: order, Created: true}, nil
	}

	key := idempotencyKey(in.UserID, in.IdempotencyKey)
	existingID, claimed, err := s.cache.ClaimIdempotencyKey(ctx, key)
	if err != nil {
		return PlaceOrderResult{}, domain.AsStorageFailure("claim idempotency key", err)
	}
	if !claimed {
		if existingID == "" {
			return PlaceOrderResult{}, domain.ErrDuplicateRequest
		}
		order, err := s.orders.GetOrder(ctx, existingID)
		if err != nil {
			return PlaceOrderResult{}, domain.AsStorageFailure("load replayed order", err)
		}
		return PlaceOrderResult{Order: order, Created: false}, nil
	}

	order, err := s.commitOrder(ctx, in.UserID, in.Lines)
	if err != nil {
		if releaseErr := s.cache.ReleaseIdempotencyKey(ctx, key); releaseErr != nil {
			s.logger.WarnContext(ctx, "release idempotency key failed",
				slog.String("key", key),
				slog.Any("error", releaseErr),
			)
		}
		return PlaceOrderResult{}, err
	}
	if err := s.cache.CompleteIdempotencyKey(ctx, key, order.ID); err != nil {
		// The order is committed; a lost binding only weakens replay detection.
		s.logger.WarnContext(ctx, "bind idempotency key failed",
			slog.String("key", key),
			slog.String("order_id", order.ID),
			slog.Any("error", err),
		)
	}
	return PlaceOrderResult{Order: order, Created: true}, nil
}

func (s *OrderService) commitOrder(ctx context.Context, userID int64, lines []domain.LineRequest) (domain.Order, error) {
	var order domain.Order
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		reserved, err := s.reserver.Reserve(txCtx, lines)
		if err != nil {
			return err
		}
		order = domain.NewOrder(s.newID(), userID, s.clock.Now(), reserved)
		return s.orders.CreateOrder(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, domain.AsStorageFailure("place order", err)
	}
	return order, nil
}

// GetOrder returns the order if userID owns it or holds the admin role.
func (s *OrderService) GetOrder(ctx context.Context, userID int64, orderID string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, domain.AsStorageFailure("get order", err)
	}
	if order.UserID == userID {
		return order, nil
	}

	admin, err := s.roles.HasRole(ctx, userID, domain.RoleAdmin)
	if err != nil {
		return domain.Order{}, domain.AsStorageFailure("check role", err)
	}
	if !admin {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

// ListUserOrders returns the caller's own orders, most recent first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.orders.ListOrders(ctx, port.OrderFilter{UserID: userID})
	if err != nil {
		return nil, domain.AsStorageFailure("list orders", err)
	}
	return orders, nil
}

// ListAllOrders returns every order, most recent first. Callers must have
// authorized the admin role.
func (s *OrderService) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.ListOrders(ctx, port.OrderFilter{})
	if err != nil {
		return nil, domain.AsStorageFailure("list orders", err)
	}
	return orders, nil
}

// IsAdmin answers the has_role check for transports.
func (s *OrderService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.roles.HasRole(ctx, userID, domain.RoleAdmin)
	if err != nil {
		return false, domain.AsStorageFailure("check role", err)
	}
	return ok, nil
}

func (s *OrderService) recordFailure(ctx context.Context, span trace.Span, op string, err error, attrs ...slog.Attr) {
	reason := failureReason(err)
	span.SetAttributes(attribute.String("error.reason", reason))
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("reason", reason),
	))

	args := make([]any, 0, len(attrs)+2)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.String("reason", reason), slog.Any("error", err))

	if domain.IsBusinessError(err) {
		s.logger.WarnContext(ctx, op+" rejected", args...)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.ErrorContext(ctx, op+" failed", args...)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrBookNotFound):
		return "book_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, domain.ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, domain.ErrInvalidStockAdjustment):
		return "invalid_stock_adjustment"
	default:
		return "storage_failure"
	}
}

func idempotencyKey(userID int64, key string) string {
	return fmt.Sprintf("idempotency:order:%d:%s", userID, key)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrBookNotFound)
}

func int64Counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
