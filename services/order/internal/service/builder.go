package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/catalog"
	"github.com/Skotchmaster/checkout/pkg/db"
	"github.com/Skotchmaster/checkout/pkg/money"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
)

// numberRetries is how many fresh order numbers are tried after a collision.
const numberRetries = 3

type LineItem struct {
	VariantID   uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	SKU         string
	Price       decimal.Decimal
	SalePrice   decimal.NullDecimal
	Quantity    int
}

// UnitPrice is what one unit costs on this order, in cents. Item snapshots
// store exactly this value, so totals are sums of stored prices.
func (l LineItem) UnitPrice() decimal.Decimal {
	if l.SalePrice.Valid {
		return money.Round(l.SalePrice.Decimal)
	}
	return money.Round(l.Price)
}

type OrderDraft struct {
	UserID   uuid.UUID
	Items    []LineItem
	Shipping *models.AddressSnapshot
	Billing  *models.AddressSnapshot

	CouponID   *uuid.UUID
	CouponCode *string

	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
}

// CreateOrder inserts the order and its item snapshots using tx. The caller
// owns the transaction.
func (s *OrderService) CreateOrder(ctx context.Context, tx *repo.GormRepo, d OrderDraft) (*models.Order, error) {
	if len(d.Items) == 0 {
		return nil, fmt.Errorf("%w: items required", ErrValidation)
	}
	if d.Shipping == nil {
		return nil, fmt.Errorf("%w: shipping address required", ErrValidation)
	}

	total := decimal.Zero
	for i, it := range d.Items {
		if it.VariantID == uuid.Nil {
			return nil, fmt.Errorf("%w: item %d: variant_id required", ErrValidation, i)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be > 0", ErrValidation, i)
		}
		if it.UnitPrice().IsNegative() {
			return nil, fmt.Errorf("%w: item %d: price must be >= 0", ErrValidation, i)
		}
		total = total.Add(it.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	discount := money.Round(d.Discount)
	shipping := money.Round(d.ShippingCost)

	billing := d.Shipping
	if d.Billing != nil {
		billing = d.Billing
	}

	order := &models.Order{
		UserID:          d.UserID,
		TotalAmount:     total,
		DiscountAmount:  discount,
		ShippingAmount:  shipping,
		AmountDue:       total.Sub(discount).Add(shipping),
		PaymentStatus:   models.PaymentPending,
		OrderStatus:     models.StatusCreated,
		ShippingAddress: d.Shipping.Copy(),
		BillingAddress:  billing.Copy(),
		CouponID:        d.CouponID,
		CouponCode:      d.CouponCode,
	}

	if err := s.insertWithNumber(ctx, tx, order); err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		link, err := catalog.ProductLink(ctx, tx.DB, it.ProductID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		items = append(items, models.OrderItem{
			OrderID:     order.ID,
			VariantID:   it.VariantID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			ProductLink: link,
			Price:       it.UnitPrice(),
			Quantity:    it.Quantity,
		})
	}
	if err := tx.CreateItems(ctx, items); err != nil {
		return nil, err
	}

	order.Items = items
	return order, nil
}

// insertWithNumber retries the insert under a savepoint so a duplicate
// order number does not abort the surrounding transaction.
func (s *OrderService) insertWithNumber(ctx context.Context, tx *repo.GormRepo, order *models.Order) error {
	gen := s.NewNumber
	if gen == nil {
		gen = NewOrderNumber
	}
	prefix := s.NumberPrefix
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}

	for attempt := 0; ; attempt++ {
		number, err := gen(prefix, s.now())
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if err := tx.DB.SavePoint("order_number").Error; err != nil {
			return err
		}
		err = tx.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsDuplicate(err) || attempt == numberRetries {
			return err
		}
		if err := tx.DB.RollbackTo("order_number").Error; err != nil {
			return err
		}
	}
}
