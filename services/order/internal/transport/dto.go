package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/checkout/services/order/internal/indexer"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
)

type BuyNowItem struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

// CheckoutRequest takes items from the cart unless BuyNow is set. Each
// address is either a saved address id or an inline address.
type CheckoutRequest struct {
	BuyNow            *BuyNowItem             `json:"buy_now,omitempty"`
	ShippingAddressID *uuid.UUID              `json:"shipping_address_id,omitempty"`
	ShippingAddress   *models.AddressSnapshot `json:"shipping_address,omitempty"`
	BillingAddressID  *uuid.UUID              `json:"billing_address_id,omitempty"`
	BillingAddress    *models.AddressSnapshot `json:"billing_address,omitempty"`
	CouponCode        *string                 `json:"coupon_code,omitempty"`
	CouponID          *uuid.UUID              `json:"coupon_id,omitempty"`
}

type PaymentLine struct {
	Label     string     `json:"label"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity"`
	Amount    string     `json:"amount"`
}

type OrderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	VariantID   uuid.UUID `json:"variant_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	ProductLink string    `json:"product_link"`
	Price       string    `json:"price"`
	Quantity    int       `json:"quantity"`
}

type OrderResponse struct {
	ID               uuid.UUID              `json:"id"`
	OrderNumber      string                 `json:"order_number"`
	UserID           uuid.UUID              `json:"user_id"`
	TotalAmount      string                 `json:"total_amount"`
	DiscountAmount   string                 `json:"discount_amount"`
	ShippingAmount   string                 `json:"shipping_amount"`
	AmountDue        string                 `json:"amount_due"`
	PaymentStatus    models.PaymentStatus   `json:"payment_status"`
	OrderStatus      models.OrderStatus     `json:"order_status"`
	ShippingAddress  models.AddressSnapshot `json:"shipping_address"`
	BillingAddress   models.AddressSnapshot `json:"billing_address"`
	CouponCode       *string                `json:"coupon_code,omitempty"`
	PaymentReference *string                `json:"payment_reference,omitempty"`
	PaidAt           *time.Time             `json:"paid_at,omitempty"`
	CancelledAt      *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	Items            []OrderItemResponse    `json:"items,omitempty"`
}

type CheckoutResponse struct {
	Order        OrderResponse `json:"order"`
	PaymentLines []PaymentLine `json:"payment_lines"`
}

type OrderListResponse struct {
	Items []OrderResponse `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

type VerifyPaymentRequest struct {
	PaymentReference string `json:"payment_reference"`
}

type FinalizeResponse struct {
	Order            OrderResponse `json:"order"`
	AlreadyProcessed bool          `json:"already_processed"`
}

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

type WebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		OrderID          string `json:"order_id"`
		PaymentReference string `json:"payment_reference"`
	} `json:"data"`
}

type WebhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
	Rejected  bool `json:"rejected,omitempty"`
}

type SearchResponse struct {
	Total  int64              `json:"total"`
	Orders []indexer.Document `json:"orders"`
	Page   int                `json:"page"`
	Size   int                `json:"size"`
}
