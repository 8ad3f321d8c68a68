package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/catalog"
	"github.com/Skotchmaster/checkout/pkg/money"
	"github.com/Skotchmaster/checkout/services/order/internal/coupon"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
	"github.com/Skotchmaster/checkout/services/order/internal/transport"
)

const ShippingLabel = "Shipping"

type PaymentLine struct {
	Label     string
	VariantID *uuid.UUID
	Quantity  int
	Amount    decimal.Decimal
}

type CheckoutResult struct {
	Order *models.Order
	Lines []PaymentLine
}

type wantedLine struct {
	variantID uuid.UUID
	qty       int
}

func (s *OrderService) Checkout(ctx context.Context, userID uuid.UUID, req transport.CheckoutRequest) (*CheckoutResult, error) {
	wanted, err := s.checkoutLines(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	items, err := s.priceLines(ctx, wanted)
	if err != nil {
		return nil, err
	}

	shipping, err := s.resolveAddress(ctx, userID, req.ShippingAddressID, req.ShippingAddress)
	if err != nil {
		return nil, err
	}
	if shipping == nil {
		return nil, fmt.Errorf("%w: shipping address required", ErrValidation)
	}
	billing, err := s.resolveAddress(ctx, userID, req.BillingAddressID, req.BillingAddress)
	if err != nil {
		return nil, err
	}

	lineTotals := make([]decimal.Decimal, len(items))
	for i, it := range items {
		lineTotals[i] = it.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity)))
	}
	subtotal := money.Sum(lineTotals...)
	shippingCost := money.Round(s.ShippingCost)

	draft := OrderDraft{
		UserID:       userID,
		Items:        items,
		Shipping:     shipping,
		Billing:      billing,
		ShippingCost: shippingCost,
	}

	discount := decimal.Zero
	if req.CouponCode != nil && strings.TrimSpace(*req.CouponCode) != "" {
		code := strings.TrimSpace(*req.CouponCode)
		res, err := s.coupons().Verify(ctx, couponRequest(code, userID, subtotal, shippingCost, items))
		if err != nil {
			return nil, fmt.Errorf("verify coupon: %w", err)
		}
		if !res.Success {
			msg := res.Message
			if msg == "" {
				msg = "coupon " + code + " does not apply"
			}
			return nil, fmt.Errorf("%w: %s", ErrCouponRejected, msg)
		}
		if req.CouponID != nil && *req.CouponID != res.CouponID {
			return nil, fmt.Errorf("%w: coupon %s does not match code %s", ErrConflict, *req.CouponID, code)
		}

		discount = res.Discount
		if res.FreeShipping {
			draft.ShippingCost = decimal.Zero
		}
		if res.CouponID != uuid.Nil {
			id := res.CouponID
			draft.CouponID = &id
		}
		if res.Code != "" {
			code = res.Code
		}
		draft.CouponCode = &code
	}

	adjusted := Prorate(lineTotals, discount)
	draft.Discount = subtotal.Sub(money.Sum(adjusted...))

	var order *models.Order
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		order, err = s.CreateOrder(ctx, tx, draft)
		return err
	})
	if err != nil {
		return nil, err
	}

	lines := make([]PaymentLine, 0, len(items)+1)
	for i, it := range items {
		variantID := it.VariantID
		lines = append(lines, PaymentLine{
			Label:     it.ProductName + " (" + it.SKU + ")",
			VariantID: &variantID,
			Quantity:  it.Quantity,
			Amount:    adjusted[i],
		})
	}
	if order.ShippingAmount.IsPositive() {
		lines = append(lines, PaymentLine{Label: ShippingLabel, Quantity: 1, Amount: order.ShippingAmount})
	}

	return &CheckoutResult{Order: order, Lines: lines}, nil
}

func (s *OrderService) checkoutLines(ctx context.Context, userID uuid.UUID, req transport.CheckoutRequest) ([]wantedLine, error) {
	if req.BuyNow != nil {
		if req.BuyNow.VariantID == uuid.Nil {
			return nil, fmt.Errorf("%w: variant_id required", ErrValidation)
		}
		if req.BuyNow.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
		}
		return []wantedLine{{variantID: req.BuyNow.VariantID, qty: req.BuyNow.Quantity}}, nil
	}

	cart, err := s.Repo.CartLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	out := make([]wantedLine, 0, len(cart))
	for _, l := range cart {
		out = append(out, wantedLine{variantID: l.VariantID, qty: l.Quantity})
	}
	return out, nil
}

// priceLines snapshots the live catalog price of every line. Stock is only
// checked here; it is taken when the payment is confirmed.
func (s *OrderService) priceLines(ctx context.Context, wanted []wantedLine) ([]LineItem, error) {
	db := s.Repo.DB
	variants := make([]*catalog.ProductVariant, 0, len(wanted))
	productIDs := make([]uuid.UUID, 0, len(wanted))
	for _, w := range wanted {
		v, err := catalog.FindVariant(ctx, db, w.variantID)
		if err != nil {
			if errors.Is(err, catalog.ErrVariantNotFound) {
				return nil, fmt.Errorf("%w: variant %s", ErrNotFound, w.variantID)
			}
			return nil, err
		}
		if !v.Allows(w.qty) {
			return nil, fmt.Errorf("%w: %s requested %d, available %d", ErrInsufficientStock, v.SKU, w.qty, *v.Stock)
		}
		variants = append(variants, v)
		productIDs = append(productIDs, v.ProductID)
	}

	products, err := catalog.FindProducts(ctx, db, productIDs)
	if err != nil {
		return nil, err
	}
	discounts, err := catalog.ActiveDiscounts(ctx, db, productIDs, s.now())
	if err != nil {
		return nil, err
	}

	items := make([]LineItem, 0, len(wanted))
	for i, v := range variants {
		items = append(items, LineItem{
			VariantID:   v.ID,
			ProductID:   v.ProductID,
			ProductName: products[v.ProductID].Name,
			SKU:         v.SKU,
			Price:       v.Price,
			SalePrice:   decimal.NewNullDecimal(catalog.Discounted(catalog.ListPrice(v), discounts[v.ProductID])),
			Quantity:    wanted[i].qty,
		})
	}
	return items, nil
}

func (s *OrderService) resolveAddress(ctx context.Context, userID uuid.UUID, id *uuid.UUID, inline *models.AddressSnapshot) (*models.AddressSnapshot, error) {
	if id != nil {
		addr, err := s.Repo.FindAddress(ctx, userID, *id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: address %s", ErrNotFound, *id)
		}
		if err != nil {
			return nil, err
		}
		snap := addr.Snapshot()
		return &snap, nil
	}
	if inline != nil {
		snap := inline.Copy()
		return &snap, nil
	}
	return nil, nil
}

func couponRequest(code string, userID uuid.UUID, subtotal, shipping decimal.Decimal, items []LineItem) coupon.Request {
	req := coupon.Request{
		Code:         code,
		UserID:       userID,
		Channel:      coupon.ChannelWeb,
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Items:        make([]coupon.Item, 0, len(items)),
	}
	for _, it := range items {
		req.Items = append(req.Items, coupon.Item{
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice(),
		})
	}
	return req
}
