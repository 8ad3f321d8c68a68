package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/catalog"
	"github.com/Skotchmaster/checkout/services/cart/internal/models"
	"github.com/Skotchmaster/checkout/services/cart/internal/repo"
	"github.com/Skotchmaster/checkout/services/cart/internal/transport"
)

var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

const (
	SkipInvalidQuantity   = "invalid_quantity"
	SkipVariantNotFound   = "variant_not_found"
	SkipInsufficientStock = "insufficient_stock"
)

type CartService struct {
	Repo *repo.GormRepo
	Now  func() time.Time
}

func (s *CartService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CartService) AddItem(ctx context.Context, userID, variantID uuid.UUID, qty int) (*models.CartItem, error) {
	if variantID == uuid.Nil {
		return nil, fmt.Errorf("%w: variant_id required", ErrValidation)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}

	var item *models.CartItem
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		cart, err := tx.GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		item, err = s.addLine(ctx, tx, cart.ID, variantID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// addLine merges qty into the cart's line for the variant, holding the
// variant row lock until the surrounding transaction ends.
func (s *CartService) addLine(ctx context.Context, tx *repo.GormRepo, cartID, variantID uuid.UUID, qty int) (*models.CartItem, error) {
	v, err := catalog.LockVariant(ctx, tx.DB, variantID)
	if err != nil {
		if errors.Is(err, catalog.ErrVariantNotFound) {
			return nil, fmt.Errorf("%w: variant %s", ErrNotFound, variantID)
		}
		return nil, err
	}

	item, err := tx.FindItemByVariant(ctx, cartID, variantID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	total := qty
	if item != nil {
		total += item.Quantity
	}
	if !v.Allows(total) {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, total, *v.Stock)
	}

	price, err := s.unitPrice(ctx, tx.DB, v)
	if err != nil {
		return nil, err
	}

	if item == nil {
		item = &models.CartItem{CartID: cartID, VariantID: variantID, Quantity: total, UnitPrice: price}
		if err := tx.CreateItem(ctx, item); err != nil {
			return nil, err
		}
		return item, nil
	}

	item.Quantity = total
	item.UnitPrice = price
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *CartService) unitPrice(ctx context.Context, db *gorm.DB, v *catalog.ProductVariant) (decimal.Decimal, error) {
	discounts, err := catalog.ActiveDiscounts(ctx, db, []uuid.UUID{v.ProductID}, s.now())
	if err != nil {
		return decimal.Zero, err
	}
	return catalog.Discounted(catalog.ListPrice(v), discounts[v.ProductID]), nil
}

// UpdateItem sets the line quantity. Zero removes the line; the returned
// bool reports that.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*models.CartItem, bool, error) {
	if qty < 0 {
		return nil, false, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	var (
		item    *models.CartItem
		deleted bool
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		cart, err := tx.ActiveCart(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
		}
		if err != nil {
			return err
		}

		item, err = tx.FindItem(ctx, cart.ID, itemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
		}
		if err != nil {
			return err
		}

		if qty == 0 {
			deleted = true
			_, err := tx.DeleteItem(ctx, cart.ID, itemID)
			return err
		}

		v, err := catalog.LockVariant(ctx, tx.DB, item.VariantID)
		if err != nil {
			if errors.Is(err, catalog.ErrVariantNotFound) {
				return fmt.Errorf("%w: variant %s", ErrNotFound, item.VariantID)
			}
			return err
		}
		if !v.Allows(qty) {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, qty, *v.Stock)
		}

		price, err := s.unitPrice(ctx, tx.DB, v)
		if err != nil {
			return err
		}
		item.Quantity = qty
		item.UnitPrice = price
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return nil, false, err
	}
	return item, deleted, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	return s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		cart, err := tx.ActiveCart(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.DeleteItem(ctx, cart.ID, itemID)
		return err
	})
}

func (s *CartService) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		cart, err := tx.ActiveCart(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.DeleteAllItems(ctx, cart.ID)
	})
}

type SyncResult struct {
	Merged  []uuid.UUID
	Skipped []transport.SkippedLine
}

// SyncGuestCart folds lines collected before login into the user's cart.
// Business rejections skip the line; any other error aborts the batch.
func (s *CartService) SyncGuestCart(ctx context.Context, userID uuid.UUID, lines []transport.GuestLine) (*SyncResult, error) {
	res := &SyncResult{Merged: []uuid.UUID{}, Skipped: []transport.SkippedLine{}}

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		cart, err := tx.GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}

		for _, line := range lines {
			if line.Quantity <= 0 || line.VariantID == uuid.Nil {
				res.Skipped = append(res.Skipped, transport.SkippedLine{VariantID: line.VariantID, Reason: SkipInvalidQuantity})
				continue
			}

			_, err := s.addLine(ctx, tx, cart.ID, line.VariantID, line.Quantity)
			switch {
			case err == nil:
				res.Merged = append(res.Merged, line.VariantID)
			case errors.Is(err, ErrNotFound):
				res.Skipped = append(res.Skipped, transport.SkippedLine{VariantID: line.VariantID, Reason: SkipVariantNotFound})
			case errors.Is(err, ErrInsufficientStock):
				res.Skipped = append(res.Skipped, transport.SkippedLine{VariantID: line.VariantID, Reason: SkipInsufficientStock})
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
