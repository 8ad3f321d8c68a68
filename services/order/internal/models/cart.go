package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart and CartItem are read models over the cart service tables. Checkout
// reads the lines and clears them once an order is paid.

type Cart struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

type CartItem struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	CartID    uuid.UUID      `gorm:"type:uuid;not null"`
	VariantID uuid.UUID      `gorm:"type:uuid;not null"`
	Quantity  int            `gorm:"not null"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }
