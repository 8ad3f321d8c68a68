// Package money holds the rounding and minor-unit conversions shared by
// pricing and checkout. Amounts are two-decimal currency values.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to cents, which is half-up for the
// non-negative amounts used here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func Fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}
