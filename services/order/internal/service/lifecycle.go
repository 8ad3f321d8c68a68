package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Skotchmaster/checkout/pkg/logging"
	"github.com/Skotchmaster/checkout/services/order/internal/events"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
)

// adminEdges are the order_status moves an admin may make directly.
// Cancellation has its own path because it can return stock.
var adminEdges = map[models.OrderStatus]models.OrderStatus{
	models.StatusCreated:    models.StatusProcessing,
	models.StatusPending:    models.StatusProcessing,
	models.StatusProcessing: models.StatusShipped,
	models.StatusShipped:    models.StatusDelivered,
}

func validOrderStatus(s models.OrderStatus) bool {
	switch s {
	case models.StatusCreated, models.StatusPending, models.StatusProcessing,
		models.StatusShipped, models.StatusDelivered, models.StatusCancelled:
		return true
	}
	return false
}

// CancelOrder cancels the order and, when its stock was taken at payment,
// puts the stock back.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	ctx = context.WithoutCancel(ctx)
	var order *models.Order

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		order, err = s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !actor.Admin && order.UserID != actor.ID {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}

		switch order.OrderStatus {
		case models.StatusCancelled:
			return fmt.Errorf("%w: order %s", ErrAlreadyCancelled, orderID)
		case models.StatusDelivered:
			return fmt.Errorf("%w: delivered orders cannot be cancelled", ErrInvalidTransition)
		}

		items, err := tx.OrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		order.Items = items

		if order.PaymentStatus == models.PaymentPaid {
			if err := s.moveStock(ctx, tx, order.ID, items, 1, models.ReasonOrderCancelled); err != nil {
				return err
			}
		}

		now := s.now()
		if err := tx.UpdateOrder(ctx, order.ID, map[string]any{
			"order_status": string(models.StatusCancelled),
			"cancelled_at": now,
		}); err != nil {
			return err
		}
		order.OrderStatus = models.StatusCancelled
		order.CancelledAt = &now

		return s.emit(ctx, tx, events.OrderCancelled, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdatePaymentStatusAfterCancel moves the refund state of a cancelled order
// forward. Any payment status may enter refund_initiated or refund_completed;
// a completed refund cannot go back to initiated.
func (s *OrderService) UpdatePaymentStatusAfterCancel(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) (*models.Order, error) {
	if status != models.PaymentRefundInitiated && status != models.PaymentRefundCompleted {
		return nil, fmt.Errorf("%w: payment_status must be refund_initiated or refund_completed", ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)
	var order *models.Order

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		order, err = s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.OrderStatus != models.StatusCancelled {
			return fmt.Errorf("%w: refunds require a cancelled order", ErrInvalidTransition)
		}

		if order.PaymentStatus == status {
			return nil
		}
		if order.PaymentStatus == models.PaymentRefundCompleted {
			return fmt.Errorf("%w: refund already completed", ErrInvalidTransition)
		}

		if err := tx.UpdateOrder(ctx, order.ID, map[string]any{"payment_status": string(status)}); err != nil {
			return err
		}
		order.PaymentStatus = status

		return s.emit(ctx, tx, events.OrderRefundUpdated, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus applies an admin status change along adminEdges. The
// audit row is written after commit and its failure only logged.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, adminID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	if !validOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	ctx = context.WithoutCancel(ctx)
	var (
		order *models.Order
		from  models.OrderStatus
	)

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		order, err = s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = order.OrderStatus

		if next, ok := adminEdges[from]; !ok || next != status {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
		}

		if err := tx.UpdateOrder(ctx, order.ID, map[string]any{"order_status": string(status)}); err != nil {
			return err
		}
		order.OrderStatus = status

		snap, err := s.snapshot(ctx, tx, order)
		if err != nil {
			return err
		}
		snap.PreviousStatus = from
		return s.notifier().Enqueue(ctx, tx.DB, events.OrderStatusChanged, order.ID, snap)
	})
	if err != nil {
		return nil, err
	}

	entry := &models.OrderStatusLog{OrderID: order.ID, ActorID: adminID, FromStatus: from, ToStatus: status}
	if err := s.Repo.AppendStatusLog(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("status_log_failed", "order_id", order.ID, "error", err)
	}
	return order, nil
}
