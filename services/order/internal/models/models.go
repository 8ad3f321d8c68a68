package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentPaid            PaymentStatus = "paid"
	PaymentFailed          PaymentStatus = "failed"
	PaymentRefundInitiated PaymentStatus = "refund_initiated"
	PaymentRefundCompleted PaymentStatus = "refund_completed"
)

type OrderStatus string

const (
	StatusCreated    OrderStatus = "created"
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

const (
	ReasonOrderPaid      = "order_paid"
	ReasonOrderCancelled = "order_cancelled"
)

type Order struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"              json:"id"`
	OrderNumber      string          `gorm:"size:32;not null;uniqueIndex"      json:"order_number"`
	UserID           uuid.UUID       `gorm:"type:uuid;not null;index"          json:"user_id"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null"       json:"total_amount"`
	DiscountAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null"       json:"discount_amount"`
	ShippingAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null"       json:"shipping_amount"`
	AmountDue        decimal.Decimal `gorm:"type:numeric(12,2);not null"       json:"amount_due"`
	PaymentStatus    PaymentStatus   `gorm:"size:32;not null;index"            json:"payment_status"`
	OrderStatus      OrderStatus     `gorm:"size:32;not null;index"            json:"order_status"`
	ShippingAddress  AddressSnapshot `gorm:"type:jsonb;not null"               json:"shipping_address"`
	BillingAddress   AddressSnapshot `gorm:"type:jsonb;not null"               json:"billing_address"`
	CouponID         *uuid.UUID      `gorm:"type:uuid"                         json:"coupon_id,omitempty"`
	CouponCode       *string         `gorm:"size:64"                           json:"coupon_code,omitempty"`
	PaymentReference *string         `gorm:"size:128;index"                    json:"payment_reference,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index"                             json:"-"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID"                json:"items,omitempty"`
}

// OrderItem is a price snapshot taken at checkout and never repriced.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"           json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"       json:"order_id"`
	VariantID   uuid.UUID       `gorm:"type:uuid;not null"             json:"variant_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null"             json:"product_id"`
	ProductName string          `gorm:"size:255;not null"              json:"product_name"`
	SKU         string          `gorm:"column:sku;size:64;not null"    json:"sku"`
	ProductLink string          `gorm:"size:512"                       json:"product_link"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null"    json:"price"`
	Quantity    int             `gorm:"not null;check:quantity > 0"    json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index"                          json:"-"`
}

// InventoryTransaction is an append-only stock ledger row.
type InventoryTransaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"         json:"id"`
	VariantID uuid.UUID `gorm:"type:uuid;not null;index"     json:"variant_id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index"     json:"order_id"`
	Delta     int       `gorm:"not null"                     json:"delta"`
	Reason    string    `gorm:"size:32;not null"             json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type Address struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"       json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index"   json:"user_id"`
	Street     string         `gorm:"size:255;not null"          json:"street"`
	City       string         `gorm:"size:128;not null"          json:"city"`
	State      string         `gorm:"size:128"                   json:"state"`
	PostalCode string         `gorm:"size:32"                    json:"postal_code"`
	Country    string         `gorm:"size:64;not null"           json:"country"`
	Lat        *float64       `json:"lat,omitempty"`
	Lon        *float64       `json:"lon,omitempty"`
	Mobile     string         `gorm:"size:32"                    json:"mobile"`
	DeletedAt  gorm.DeletedAt `gorm:"index"                      json:"-"`
}

func (a *Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Lat:        a.Lat,
		Lon:        a.Lon,
		Mobile:     a.Mobile,
	}
}

type OrderStatusLog struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey"     json:"id"`
	OrderID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"order_id"`
	ActorID    uuid.UUID   `gorm:"type:uuid;not null"       json:"actor_id"`
	FromStatus OrderStatus `gorm:"size:32;not null"         json:"from_status"`
	ToStatus   OrderStatus `gorm:"size:32;not null"         json:"to_status"`
	CreatedAt  time.Time   `json:"created_at"`
}

type WebhookEvent struct {
	EventID     string    `gorm:"size:128;primaryKey" json:"event_id"`
	EventType   string    `gorm:"size:64;not null"    json:"event_type"`
	ProcessedAt time.Time `gorm:"not null"            json:"processed_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (t *InventoryTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (l *OrderStatusLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (Order) TableName() string                { return "orders" }
func (OrderItem) TableName() string            { return "order_items" }
func (InventoryTransaction) TableName() string { return "inventory_transactions" }
func (Address) TableName() string              { return "addresses" }
func (OrderStatusLog) TableName() string       { return "order_status_logs" }
func (WebhookEvent) TableName() string         { return "webhook_events" }
