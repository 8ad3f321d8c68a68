package indexer

import (
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/checkout/services/order/internal/events"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

// Document is the searchable view of an order. Amounts stay fixed-point
// strings, the same as the API.
type Document struct {
	OrderID        uuid.UUID            `json:"order_id"`
	OrderNumber    string               `json:"order_number"`
	UserID         uuid.UUID            `json:"user_id"`
	PaymentStatus  models.PaymentStatus `json:"payment_status"`
	OrderStatus    models.OrderStatus   `json:"order_status"`
	TotalAmount    string               `json:"total_amount"`
	DiscountAmount string               `json:"discount_amount"`
	ShippingAmount string               `json:"shipping_amount"`
	AmountDue      string               `json:"amount_due"`
	CouponCode     string               `json:"coupon_code,omitempty"`
	SKUs           []string             `json:"skus"`
	ProductNames   []string             `json:"product_names"`
	City           string               `json:"city,omitempty"`
	Country        string               `json:"country,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	CancelledAt    *time.Time           `json:"cancelled_at,omitempty"`
	LastEvent      string               `json:"last_event"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func documentFrom(kind string, occurredAt time.Time, s events.OrderSnapshot) Document {
	doc := Document{
		OrderID:        s.OrderID,
		OrderNumber:    s.OrderNumber,
		UserID:         s.UserID,
		PaymentStatus:  s.PaymentStatus,
		OrderStatus:    s.OrderStatus,
		TotalAmount:    s.TotalAmount,
		DiscountAmount: s.DiscountAmount,
		ShippingAmount: s.ShippingAmount,
		AmountDue:      s.AmountDue,
		CouponCode:     s.CouponCode,
		SKUs:           make([]string, 0, len(s.Items)),
		ProductNames:   make([]string, 0, len(s.Items)),
		City:           s.ShippingAddress.City,
		Country:        s.ShippingAddress.Country,
		CreatedAt:      s.CreatedAt,
		PaidAt:         s.PaidAt,
		CancelledAt:    s.CancelledAt,
		LastEvent:      kind,
		UpdatedAt:      occurredAt,
	}
	for _, it := range s.Items {
		doc.SKUs = append(doc.SKUs, it.SKU)
		doc.ProductNames = append(doc.ProductNames, it.ProductName)
	}
	return doc
}
