// Package money centralises two-decimal amount arithmetic for the ledger.
// Amounts travel as float64 and are normalised with banker's rounding
// (round half to even) before any comparison, so every component applies
// the same flat 0.01 tolerance regardless of magnitude.
package money

import "github.com/shopspring/decimal"

// Tolerance is the flat absolute tolerance applied to balance and match
// comparisons.
const Tolerance = 0.01

var tolerance = decimal.NewFromFloat(Tolerance)

// Round2 applies banker's rounding to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).RoundBank(2).InexactFloat64()
}

// Difference returns |a - b| rounded to two decimals.
func Difference(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().Round(2).InexactFloat64()
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(tolerance)
}

// Sum adds amounts without accumulating float drift.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}
