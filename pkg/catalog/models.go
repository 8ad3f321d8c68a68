package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The catalog tables are owned by the catalog admin surface. Checkout only
// reads them and mutates ProductVariant.Stock under a row lock.

type Category struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey"        json:"id"`
	ParentID *uuid.UUID `gorm:"type:uuid;index"             json:"parent_id,omitempty"`
	Slug     string     `gorm:"size:128;not null"           json:"slug"`
	Name     string     `gorm:"size:255;not null"           json:"name"`
}

type Product struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"   json:"id"`
	CategoryID *uuid.UUID     `gorm:"type:uuid;index"        json:"category_id,omitempty"`
	Name       string         `gorm:"size:255;not null"      json:"name"`
	Slug       string         `gorm:"size:255;not null"      json:"slug"`
	ImageURL   string         `gorm:"size:512"               json:"image_url,omitempty"`
	DeletedAt  gorm.DeletedAt `gorm:"index"                  json:"-"`
}

type ProductVariant struct {
	ID        uuid.UUID           `gorm:"type:uuid;primaryKey"           json:"id"`
	ProductID uuid.UUID           `gorm:"type:uuid;index;not null"       json:"product_id"`
	SKU       string              `gorm:"column:sku;size:64;not null"    json:"sku"`
	Size      string              `gorm:"size:32"                        json:"size,omitempty"`
	Color     string              `gorm:"size:32"                        json:"color,omitempty"`
	Price     decimal.Decimal     `gorm:"type:numeric(12,2);not null"    json:"price"`
	SalePrice decimal.NullDecimal `gorm:"type:numeric(12,2)"             json:"sale_price"`
	Stock     *int                `gorm:"check:stock >= 0"               json:"stock"`
	DeletedAt gorm.DeletedAt      `gorm:"index"                          json:"-"`
}

// Tracked reports whether the variant keeps a stock counter.
func (v *ProductVariant) Tracked() bool {
	return v.Stock != nil
}

// Allows reports whether qty units fit into the tracked stock.
func (v *ProductVariant) Allows(qty int) bool {
	return v.Stock == nil || qty <= *v.Stock
}

type Sale struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"          json:"id"`
	ProductID       uuid.UUID       `gorm:"type:uuid;index;not null"      json:"product_id"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric(5,2);not null"    json:"discount_percent"`
	StartAt         *time.Time      `json:"start_at,omitempty"`
	EndAt           *time.Time      `json:"end_at,omitempty"`
	Active          bool            `gorm:"not null"                      json:"active"`
	DeletedAt       gorm.DeletedAt  `gorm:"index"                         json:"-"`
}

func (Category) TableName() string       { return "categories" }
func (Product) TableName() string        { return "products" }
func (ProductVariant) TableName() string { return "product_variants" }
func (Sale) TableName() string           { return "sales" }

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (v *ProductVariant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Models lists the catalog tables for migrations in tests and local setups.
func Models() []any {
	return []any{&Category{}, &Product{}, &ProductVariant{}, &Sale{}}
}
