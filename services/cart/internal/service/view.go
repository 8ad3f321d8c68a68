package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/checkout/pkg/catalog"
	"github.com/Skotchmaster/checkout/pkg/money"
)

type LineView struct {
	ItemID          uuid.UUID
	Variant         catalog.ProductVariant
	Product         catalog.Product
	BasePrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	SalePrice       decimal.Decimal
	Quantity        int
	LineTotal       decimal.Decimal
}

type CartView struct {
	CartID        uuid.UUID
	Items         []LineView
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TotalPayable  decimal.Decimal
}

// GetCart prices every line against the catalog as of now. Lines whose
// variant or product has since been deleted are left out of the view and the
// totals.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	cart, err := s.Repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.Repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	variantIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		variantIDs = append(variantIDs, it.VariantID)
	}
	variants, err := catalog.FindVariants(ctx, s.Repo.DB, variantIDs)
	if err != nil {
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(variants))
	for _, v := range variants {
		productIDs = append(productIDs, v.ProductID)
	}
	products, err := catalog.FindProducts(ctx, s.Repo.DB, productIDs)
	if err != nil {
		return nil, err
	}
	discounts, err := catalog.ActiveDiscounts(ctx, s.Repo.DB, productIDs, s.now())
	if err != nil {
		return nil, err
	}

	view := &CartView{CartID: cart.ID, Items: []LineView{}}
	subtotal := decimal.Zero
	payable := decimal.Zero
	for _, it := range items {
		v, ok := variants[it.VariantID]
		if !ok {
			continue
		}
		base := money.Round(catalog.ListPrice(&v))
		pct := discounts[v.ProductID]
		sale := catalog.Discounted(base, pct)
		qty := decimal.NewFromInt(int64(it.Quantity))
		line := money.Round(sale.Mul(qty))

		view.Items = append(view.Items, LineView{
			ItemID:          it.ID,
			Variant:         v,
			Product:         products[v.ProductID],
			BasePrice:       base,
			DiscountPercent: pct,
			SalePrice:       sale,
			Quantity:        it.Quantity,
			LineTotal:       line,
		})
		subtotal = subtotal.Add(base.Mul(qty))
		payable = payable.Add(line)
	}

	view.Subtotal = money.Round(subtotal)
	view.TotalPayable = money.Round(payable)
	view.DiscountTotal = view.Subtotal.Sub(view.TotalPayable)
	return view, nil
}
