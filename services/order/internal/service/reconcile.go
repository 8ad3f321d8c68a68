package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/catalog"
	"github.com/Skotchmaster/checkout/pkg/logging"
	"github.com/Skotchmaster/checkout/services/order/internal/events"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
)

type FinalizeResult struct {
	Order            *models.Order
	AlreadyProcessed bool
}

func (s *OrderService) lockOrder(ctx context.Context, tx *repo.GormRepo, orderID uuid.UUID) (*models.Order, error) {
	order, err := tx.LockOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, err
}

// FinalizePaidOrder marks the order paid and takes its stock. Repeated calls
// for a paid order change nothing and report AlreadyProcessed. The work runs
// to completion even if the caller goes away.
func (s *OrderService) FinalizePaidOrder(ctx context.Context, orderID uuid.UUID, paymentReference string) (*FinalizeResult, error) {
	ctx = context.WithoutCancel(ctx)
	res := &FinalizeResult{}

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		res.Order = order

		if order.PaymentStatus == models.PaymentPaid {
			res.AlreadyProcessed = true
			return nil
		}
		if order.OrderStatus == models.StatusCancelled {
			return fmt.Errorf("%w: order %s is cancelled", ErrInvalidTransition, orderID)
		}

		items, err := tx.OrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.moveStock(ctx, tx, order.ID, items, -1, models.ReasonOrderPaid); err != nil {
			return err
		}

		now := s.now()
		ref := paymentReference
		if err := tx.UpdateOrder(ctx, order.ID, map[string]any{
			"payment_status":    string(models.PaymentPaid),
			"order_status":      string(models.StatusProcessing),
			"payment_reference": ref,
			"paid_at":           now,
			"deleted_at":        nil,
		}); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentPaid
		order.OrderStatus = models.StatusProcessing
		order.PaymentReference = &ref
		order.PaidAt = &now
		order.DeletedAt = gorm.DeletedAt{}
		order.Items = items

		return s.emit(ctx, tx, events.OrderPaid, order)
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyProcessed {
		if err := s.Repo.ClearCart(ctx, res.Order.UserID); err != nil {
			logging.FromContext(ctx).Warn("clear_cart_failed", "order_id", res.Order.ID, "error", err)
		}
	}
	return res, nil
}

// emit writes kind to the outbox with the full order snapshot, loading the
// items when the caller has not.
func (s *OrderService) emit(ctx context.Context, tx *repo.GormRepo, kind string, order *models.Order) error {
	snap, err := s.snapshot(ctx, tx, order)
	if err != nil {
		return err
	}
	return s.notifier().Enqueue(ctx, tx.DB, kind, order.ID, snap)
}

func (s *OrderService) snapshot(ctx context.Context, tx *repo.GormRepo, order *models.Order) (events.OrderSnapshot, error) {
	if order.Items == nil {
		items, err := tx.OrderItems(ctx, order.ID)
		if err != nil {
			return events.OrderSnapshot{}, err
		}
		order.Items = items
	}
	return events.Snapshot(order), nil
}

// moveStock locks the variants in ascending id order and applies sign*qty to
// every tracked counter, never going below zero. Each line gets a ledger row
// whether or not its variant tracks stock.
func (s *OrderService) moveStock(ctx context.Context, tx *repo.GormRepo, orderID uuid.UUID, items []models.OrderItem, sign int, reason string) error {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.VariantID)
	}
	locked, err := catalog.LockVariantsSorted(ctx, tx.DB, ids)
	if err != nil {
		return err
	}

	ledger := make([]models.InventoryTransaction, 0, len(items))
	for _, it := range items {
		if v, ok := locked[it.VariantID]; ok && v.Tracked() {
			stock := max(*v.Stock+sign*it.Quantity, 0)
			if err := catalog.SetStock(ctx, tx.DB, v.ID, stock); err != nil {
				return err
			}
			*v.Stock = stock
		}
		ledger = append(ledger, models.InventoryTransaction{
			VariantID: it.VariantID,
			OrderID:   orderID,
			Delta:     sign * it.Quantity,
			Reason:    reason,
		})
	}
	return tx.AppendInventory(ctx, ledger)
}

// MarkPaymentFailed records a declined payment on a pending order. Orders
// that are already paid or failed are left alone.
func (s *OrderService) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, paymentReference string) (*FinalizeResult, error) {
	ctx = context.WithoutCancel(ctx)
	res := &FinalizeResult{}

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		res.Order = order

		switch order.PaymentStatus {
		case models.PaymentPaid, models.PaymentFailed:
			res.AlreadyProcessed = true
			return nil
		case models.PaymentPending:
		default:
			return fmt.Errorf("%w: payment is %s", ErrInvalidTransition, order.PaymentStatus)
		}

		fields := map[string]any{"payment_status": string(models.PaymentFailed)}
		if paymentReference != "" {
			fields["payment_reference"] = paymentReference
			order.PaymentReference = &paymentReference
		}
		if err := tx.UpdateOrder(ctx, order.ID, fields); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentFailed

		return s.emit(ctx, tx, events.OrderPaymentFailed, order)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
