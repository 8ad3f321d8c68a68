package service

import (
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/checkout/pkg/money"
)

// Prorate spreads discount over lines in proportion to each line's share of
// their sum. Work happens in cents: every line but the last takes the floor
// of its share and the last takes the remainder, so the adjusted lines add up
// to sum(lines) - discount exactly. The discount is capped at the sum. A
// remainder larger than the last line spills backwards.
func Prorate(lines []decimal.Decimal, discount decimal.Decimal) []decimal.Decimal {
	cents := make([]int64, len(lines))
	var subtotal int64
	for i, l := range lines {
		cents[i] = money.ToCents(l)
		subtotal += cents[i]
	}

	off := money.ToCents(discount)
	if off < 0 {
		off = 0
	}
	if off > subtotal {
		off = subtotal
	}

	out := make([]decimal.Decimal, len(lines))
	if len(lines) == 0 {
		return out
	}
	if off == 0 || subtotal == 0 {
		for i, c := range cents {
			out[i] = money.FromCents(c)
		}
		return out
	}

	shares := make([]int64, len(lines))
	var allocated int64
	last := len(lines) - 1
	for i := 0; i < last; i++ {
		shares[i] = cents[i] * off / subtotal
		allocated += shares[i]
	}
	shares[last] = off - allocated

	for i := last; i > 0 && shares[i] > cents[i]; i-- {
		excess := shares[i] - cents[i]
		shares[i] = cents[i]
		shares[i-1] += excess
	}

	for i, c := range cents {
		out[i] = money.FromCents(c - shares[i])
	}
	return out
}
