package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/outbox"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

// Transaction runs fn with a repo bound to a single database transaction.
func (r *GormRepo) Transaction(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

// Migrate creates the tables the order service owns. Catalog and cart tables
// belong to other services.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func Models() []any {
	return []any{
		&models.Order{},
		&models.OrderItem{},
		&models.InventoryTransaction{},
		&models.Address{},
		&models.OrderStatusLog{},
		&models.WebhookEvent{},
		&outbox.Event{},
	}
}
