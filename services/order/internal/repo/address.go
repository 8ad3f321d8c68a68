package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

func (r *GormRepo) FindAddress(ctx context.Context, userID, id uuid.UUID) (*models.Address, error) {
	var addr models.Address
	if err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}
