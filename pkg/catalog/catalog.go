package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/checkout/pkg/money"
)

var ErrVariantNotFound = errors.New("variant not found")

const maxCategoryDepth = 8

var hundred = decimal.NewFromInt(100)

// live restricts variants to rows whose product is not soft-deleted. The
// variant's own deleted_at is handled by the gorm scope.
func live(db *gorm.DB) *gorm.DB {
	return db.Model(&ProductVariant{}).
		Where("EXISTS (SELECT 1 FROM products WHERE products.id = product_variants.product_id AND products.deleted_at IS NULL)")
}

func FindVariant(ctx context.Context, db *gorm.DB, id uuid.UUID) (*ProductVariant, error) {
	var v ProductVariant
	if err := live(db.WithContext(ctx)).Where("product_variants.id = ?", id).Take(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("variant %s: %w", id, ErrVariantNotFound)
		}
		return nil, err
	}
	return &v, nil
}

// LockVariant reads the variant with SELECT ... FOR UPDATE. It must be
// called on a transaction handle.
func LockVariant(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*ProductVariant, error) {
	var v ProductVariant
	err := live(tx.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_variants.id = ?", id).
		Take(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("variant %s: %w", id, ErrVariantNotFound)
		}
		return nil, err
	}
	return &v, nil
}

// LockVariantsSorted locks every id in ascending order so that two
// transactions touching overlapping variants cannot deadlock. Soft-deleted
// variants are still locked: stock consumed by an order must be settled even
// if the SKU was retired since.
func LockVariantsSorted(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*ProductVariant, error) {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	sorted = slices.Compact(sorted)

	out := make(map[uuid.UUID]*ProductVariant, len(sorted))
	for _, id := range sorted {
		var v ProductVariant
		err := tx.WithContext(ctx).Unscoped().
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = &v
	}
	return out, nil
}

// SetStock writes the stock counter of a locked variant.
func SetStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, stock int) error {
	return tx.WithContext(ctx).Unscoped().Model(&ProductVariant{}).Where("id = ?", id).Update("stock", stock).Error
}

func FindVariants(ctx context.Context, db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]ProductVariant, error) {
	out := make(map[uuid.UUID]ProductVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []ProductVariant
	if err := live(db.WithContext(ctx)).Where("product_variants.id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, v := range rows {
		out[v.ID] = v
	}
	return out, nil
}

func FindProducts(ctx context.Context, db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	out := make(map[uuid.UUID]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []Product
	if err := db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// ActiveDiscounts returns, per product, the largest discount percent among
// sales that are active, not deleted and whose window contains now. A nil
// bound is open. Sales never stack.
func ActiveDiscounts(ctx context.Context, db *gorm.DB, productIDs []uuid.UUID, now time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ProductID       uuid.UUID
		DiscountPercent decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&Sale{}).
		Select("product_id, MAX(discount_percent) AS discount_percent").
		Where("product_id IN ?", productIDs).
		Where("active = ?", true).
		Where("(start_at IS NULL OR start_at <= ?)", now).
		Where("(end_at IS NULL OR end_at >= ?)", now).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ProductID] = r.DiscountPercent
	}
	return out, nil
}

// ListPrice is the price a discount applies to: the variant's sale price
// when set, its base price otherwise.
func ListPrice(v *ProductVariant) decimal.Decimal {
	if v.SalePrice.Valid {
		return v.SalePrice.Decimal
	}
	return v.Price
}

func Discounted(list, percent decimal.Decimal) decimal.Decimal {
	if percent.LessThanOrEqual(decimal.Zero) {
		return money.Round(list)
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	return money.Round(list.Mul(hundred.Sub(percent)).Div(hundred))
}

// ProductLink builds the storefront path of a product from its category
// chain, e.g. /men/shoes/trail-runner.
func ProductLink(ctx context.Context, db *gorm.DB, productID uuid.UUID) (string, error) {
	var p Product
	if err := db.WithContext(ctx).Unscoped().Where("id = ?", productID).Take(&p).Error; err != nil {
		return "", err
	}

	slugs := []string{p.Slug}
	next := p.CategoryID
	for depth := 0; next != nil && depth < maxCategoryDepth; depth++ {
		var c Category
		err := db.WithContext(ctx).Where("id = ?", *next).Take(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return "", err
		}
		slugs = append(slugs, c.Slug)
		next = c.ParentID
	}

	if len(slugs) == 1 {
		return "/products/" + p.Slug, nil
	}
	slices.Reverse(slugs)
	return "/" + strings.Join(slugs, "/"), nil
}
