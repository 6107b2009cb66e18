package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
)

// SetOrderStatus moves an order to status. Completed and Cancelled are
// terminal; asking for the status an order already has is a no-op. Stock
// and total are never touched. Callers must have authorized the admin role.
func (s *OrderService) SetOrderStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.SetOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", status),
	))
	defer span.End()

	order, from, err := s.setOrderStatus(ctx, orderID, status)
	if err != nil {
		s.recordFailure(ctx, span, "set order status", err,
			slog.String("order_id", orderID),
			slog.String("status", status),
		)
		return domain.Order{}, err
	}

	if from != order.Status {
		s.logger.InfoContext(ctx, "order status changed",
			slog.String("order_id", order.ID),
			slog.String("from", string(from)),
			slog.String("to", string(order.Status)),
		)
	}
	return order, nil
}

func (s *OrderService) setOrderStatus(ctx context.Context, orderID, status string) (domain.Order, domain.OrderStatus, error) {
	target, err := domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, "", err
	}

	var (
		updated domain.Order
		from    domain.OrderStatus
	)
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if !from.CanTransition(target) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, target)
		}
		if from != target {
			if err := s.orders.UpdateOrderStatus(txCtx, orderID, target); err != nil {
				return err
			}
		}
		order.Status = target
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, "", domain.AsStorageFailure("set order status", err)
	}
	return updated, from, nil
}
