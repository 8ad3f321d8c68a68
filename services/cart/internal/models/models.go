package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Cart struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"                                                        json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_carts_user_active,where:deleted_at IS NULL" json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                                                                       json:"-"`
}

// CartItem.UnitPrice is the discounted sale price captured the last time the
// line was touched. Reads always reprice.
type CartItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"                                                              json:"id"`
	CartID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cart_items_cart_variant,where:deleted_at IS NULL" json:"cart_id"`
	VariantID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cart_items_cart_variant,where:deleted_at IS NULL" json:"variant_id"`
	Quantity  int             `gorm:"not null;check:quantity > 0"                                                      json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"                                                      json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index"                                                                            json:"-"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *CartItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (Cart) TableName() string {
	return "carts"
}

func (CartItem) TableName() string {
	return "cart_items"
}
