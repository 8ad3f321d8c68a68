package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if !actor.Admin && order.UserID != actor.ID {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, int64, error) {
	return s.Repo.ListOrders(ctx, userID, limit, offset)
}

func (s *OrderService) ListByStatus(ctx context.Context, status models.OrderStatus, limit, offset int) ([]models.Order, int64, error) {
	if status != "" && !validOrderStatus(status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.Repo.ListByStatus(ctx, status, limit, offset)
}
