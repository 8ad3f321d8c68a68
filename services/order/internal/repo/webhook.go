package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

func (r *GormRepo) WebhookProcessed(ctx context.Context, eventID string) (bool, error) {
	var ev models.WebhookEvent
	err := r.DB.WithContext(ctx).Where("event_id = ?", eventID).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *GormRepo) RecordWebhook(ctx context.Context, ev *models.WebhookEvent) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ev).Error
}
