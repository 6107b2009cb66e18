package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bookstore-orders/internal/adapter/handler/pb"
	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/core/service"
)

type GRPCHandler struct {
	pb.UnimplementedOrderServiceServer
	orders *service.OrderService
}

func NewGRPCHandler(orders *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orders: orders}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *pb.PlaceOrderRequest) (*pb.PlaceOrderResponse, error) {
	userID, _ := UserIDFromContext(ctx)

	lines := make([]domain.LineRequest, 0, len(req.GetItems()))
	for _, it := range req.GetItems() {
		if it == nil {
			continue
		}
		lines = append(lines, domain.LineRequest{BookID: it.BookID, Quantity: int(it.Quantity)})
	}

	res, err := h.orders.PlaceOrder(ctx, service.PlaceOrderInput{
		UserID:         userID,
		Lines:          lines,
		IdempotencyKey: req.GetIdempotencyKey(),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.PlaceOrderResponse{Order: toPBOrder(res.Order), Created: res.Created}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *pb.GetOrderRequest) (*pb.Order, error) {
	userID, _ := UserIDFromContext(ctx)

	order, err := h.orders.GetOrder(ctx, userID, req.GetOrderID())
	if err != nil {
		return nil, toStatus(err)
	}
	return toPBOrder(order), nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *pb.ListOrdersRequest) (*pb.ListOrdersResponse, error) {
	userID, _ := UserIDFromContext(ctx)

	var (
		orders []domain.Order
		err    error
	)
	if req.GetAll() {
		if err := h.requireAdmin(ctx, userID); err != nil {
			return nil, err
		}
		orders, err = h.orders.ListAllOrders(ctx)
	} else {
		orders, err = h.orders.ListUserOrders(ctx, userID)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &pb.ListOrdersResponse{Orders: make([]*pb.Order, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toPBOrder(o))
	}
	return resp, nil
}

func (h *GRPCHandler) SetOrderStatus(ctx context.Context, req *pb.SetOrderStatusRequest) (*pb.Order, error) {
	userID, _ := UserIDFromContext(ctx)
	if err := h.requireAdmin(ctx, userID); err != nil {
		return nil, err
	}

	order, err := h.orders.SetOrderStatus(ctx, req.GetOrderID(), req.GetStatus())
	if err != nil {
		return nil, toStatus(err)
	}
	return toPBOrder(order), nil
}

func (h *GRPCHandler) requireAdmin(ctx context.Context, userID int64) error {
	ok, err := h.orders.IsAdmin(ctx, userID)
	if err != nil {
		return toStatus(err)
	}
	if !ok {
		return toStatus(domain.ErrForbidden)
	}
	return nil
}

func toPBOrder(o domain.Order) *pb.Order {
	lines := make([]*pb.OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, &pb.OrderLine{
			LineNo:          int32(l.LineNo),
			BookID:          l.BookID,
			Title:           l.BookTitle,
			Quantity:        int32(l.Quantity),
			PriceAtPurchase: l.PriceAtPurchase.StringFixed(2),
		})
	}
	return &pb.Order{
		ID:          o.ID,
		UserID:      o.UserID,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339Nano),
		TotalAmount: o.TotalAmount.StringFixed(2),
		Status:      string(o.Status),
		Lines:       lines,
	}
}

func toStatus(err error) error {
	if s, ok := status.FromError(err); ok {
		return s.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidStatus):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrUnauthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, domain.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrBookNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidStockAdjustment):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrDuplicateRequest):
		code = codes.AlreadyExists
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

// AuthInterceptor reads a bearer token from the authorization metadata and
// puts the user id on the context.
func AuthInterceptor(auth *Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				header = vals[0]
			}
		}
		userID, err := auth.Authenticate(header)
		if err != nil {
			return nil, toStatus(err)
		}
		return handler(WithUserID(ctx, userID), req)
	}
}

// RateLimitInterceptor throttles PlaceOrder per user. It must run after
// AuthInterceptor.
func RateLimitInterceptor(limiter *RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == pb.OrderService_PlaceOrder_FullMethodName {
			userID, _ := UserIDFromContext(ctx)
			if !limiter.Allow(userID) {
				return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
			}
		}
		return handler(ctx, req)
	}
}

func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// NewGRPCServer wires the interceptor chain: logging, auth, rate limit.
func NewGRPCServer(h *GRPCHandler, auth *Authenticator, limiter *RateLimiter, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		AuthInterceptor(auth),
		RateLimitInterceptor(limiter),
	))
	srv := grpc.NewServer(opts...)
	pb.RegisterOrderServiceServer(srv, h)
	return srv
}
