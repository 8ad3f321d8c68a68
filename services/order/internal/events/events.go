// Package events defines the order notifications written to the outbox and
// the snapshot every one of them carries.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/checkout/pkg/money"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

const Topic = "order_events"

const (
	OrderPaid          = "order.paid"
	OrderPaymentFailed = "order.payment_failed"
	OrderCancelled     = "order.cancelled"
	OrderRefundUpdated = "order.refund_updated"
	OrderStatusChanged = "order.status_changed"
)

type Item struct {
	VariantID   uuid.UUID `json:"variant_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	ProductLink string    `json:"product_link"`
	Price       string    `json:"price"`
	Quantity    int       `json:"quantity"`
}

type OrderSnapshot struct {
	OrderID          uuid.UUID              `json:"order_id"`
	OrderNumber      string                 `json:"order_number"`
	UserID           uuid.UUID              `json:"user_id"`
	PaymentStatus    models.PaymentStatus   `json:"payment_status"`
	OrderStatus      models.OrderStatus     `json:"order_status"`
	PreviousStatus   models.OrderStatus     `json:"previous_status,omitempty"`
	TotalAmount      string                 `json:"total_amount"`
	DiscountAmount   string                 `json:"discount_amount"`
	ShippingAmount   string                 `json:"shipping_amount"`
	AmountDue        string                 `json:"amount_due"`
	CouponCode       string                 `json:"coupon_code,omitempty"`
	PaymentReference string                 `json:"payment_reference,omitempty"`
	ShippingAddress  models.AddressSnapshot `json:"shipping_address"`
	BillingAddress   models.AddressSnapshot `json:"billing_address"`
	Items            []Item                 `json:"items"`
	CreatedAt        time.Time              `json:"created_at"`
	PaidAt           *time.Time             `json:"paid_at,omitempty"`
	CancelledAt      *time.Time             `json:"cancelled_at,omitempty"`
}

func Snapshot(o *models.Order) OrderSnapshot {
	s := OrderSnapshot{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		PaymentStatus:   o.PaymentStatus,
		OrderStatus:     o.OrderStatus,
		TotalAmount:     money.Fixed(o.TotalAmount),
		DiscountAmount:  money.Fixed(o.DiscountAmount),
		ShippingAmount:  money.Fixed(o.ShippingAmount),
		AmountDue:       money.Fixed(o.AmountDue),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Items:           make([]Item, 0, len(o.Items)),
		CreatedAt:       o.CreatedAt,
		PaidAt:          o.PaidAt,
		CancelledAt:     o.CancelledAt,
	}
	if o.CouponCode != nil {
		s.CouponCode = *o.CouponCode
	}
	if o.PaymentReference != nil {
		s.PaymentReference = *o.PaymentReference
	}
	for _, it := range o.Items {
		s.Items = append(s.Items, Item{
			VariantID:   it.VariantID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			ProductLink: it.ProductLink,
			Price:       money.Fixed(it.Price),
			Quantity:    it.Quantity,
		})
	}
	return s
}
