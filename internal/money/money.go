package money

import (
	"github.com/shopspring/decimal"
)

// Round2 rounds a monetary amount to 2 decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundUpCent rounds a monetary amount up to the next cent.
func RoundUpCent(d decimal.Decimal) decimal.Decimal {
	return d.RoundUp(2)
}

// Cents converts an amount to integer cents, rounding half away from zero.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// AllocateCents splits total cents across len(weights) parts proportionally to
// each weight. Every part except the last gets the floor of its proportional
// share; the last part absorbs the remainder. The sum of the parts always
// equals total exactly. Assigning the rounding slack to the last element is a
// deliberate tie-break that downstream reconciliation depends on; do not
// change it.
//
// When all weights are zero, parts are allocated with equal weighting.
func AllocateCents(total int64, weights []decimal.Decimal) []int64 {
	n := len(weights)
	if n == 0 {
		return nil
	}
	parts := make([]int64, n)
	if n == 1 {
		parts[0] = total
		return parts
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		equal := make([]decimal.Decimal, n)
		one := decimal.NewFromInt(1)
		for i := range equal {
			equal[i] = one
		}
		weights = equal
		sum = decimal.NewFromInt(int64(n))
	}

	totalDec := decimal.NewFromInt(total)
	var allocated int64
	for i := 0; i < n-1; i++ {
		share := totalDec.Mul(weights[i]).Div(sum).Floor().IntPart()
		parts[i] = share
		allocated += share
	}
	parts[n-1] = total - allocated
	return parts
}

// Allocate splits a decimal total across parts by weight, operating in integer
// cents so the parts reconstruct the total exactly.
func Allocate(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	cents := AllocateCents(Cents(total), weights)
	out := make([]decimal.Decimal, len(cents))
	for i, c := range cents {
		out[i] = FromCents(c)
	}
	return out
}
