// Package coupon asks the promotions service whether a code applies to a
// checkout and how much it takes off.
package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/checkout/pkg/httpclient"
)

const ChannelWeb = "web"

type Item struct {
	VariantID uuid.UUID       `json:"variant_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Request struct {
	Code         string          `json:"code"`
	UserID       uuid.UUID       `json:"user_id"`
	Channel      string          `json:"channel"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Items        []Item          `json:"items"`
}

type Result struct {
	Success      bool            `json:"success"`
	CouponID     uuid.UUID       `json:"coupon_id"`
	Code         string          `json:"code"`
	Discount     decimal.Decimal `json:"discount"`
	FreeShipping bool            `json:"free_shipping"`
	Message      string          `json:"message"`
}

type Verifier interface {
	Verify(ctx context.Context, req Request) (Result, error)
}

// HTTPVerifier posts to <COUPON_URL>/coupons/verify.
type HTTPVerifier struct {
	Client *httpclient.Client
}

func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{Client: httpclient.NewClient(baseURL, timeout)}
}

func (v *HTTPVerifier) Verify(ctx context.Context, req Request) (Result, error) {
	var res Result
	if err := v.Client.PostJSON(ctx, "/coupons/verify", req, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// RejectAll is used when no promotions service is configured.
type RejectAll struct{}

func (RejectAll) Verify(_ context.Context, req Request) (Result, error) {
	return Result{Success: false, Code: req.Code, Message: "coupons are not available"}, nil
}
