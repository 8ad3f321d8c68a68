package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

func activeCartIDs(userID uuid.UUID) (string, []any) {
	return "cart_id IN (SELECT id FROM carts WHERE user_id = ? AND deleted_at IS NULL)", []any{userID}
}

func (r *GormRepo) CartLines(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	cond, args := activeCartIDs(userID)
	var lines []models.CartItem
	if err := r.DB.WithContext(ctx).Where(cond, args...).Order("variant_id ASC").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *GormRepo) ClearCart(ctx context.Context, userID uuid.UUID) error {
	cond, args := activeCartIDs(userID)
	return r.DB.WithContext(ctx).Where(cond, args...).Delete(&models.CartItem{}).Error
}
