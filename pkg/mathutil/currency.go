// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(constants.PercentageMultiplier)

// Roundup rounds a value to two decimals, i.e. to represent real currency.
// Ties round away from zero (ROUND_HALF_UP), never to even.
func Roundup(val decimal.Decimal) decimal.Decimal {
	return val.Round(constants.CurrencyDecimals)
}

// RoundupPtr is Roundup for optional values; nil passes through.
func RoundupPtr(val *decimal.Decimal) *decimal.Decimal {
	if val == nil {
		return nil
	}
	rounded := Roundup(*val)
	return &rounded
}

// RoundToInteger rounds a value half-up to whole currency units.
func RoundToInteger(val decimal.Decimal) decimal.Decimal {
	return val.Round(0)
}

// Max returns the larger of the given values. The first of equal values wins.
func Max(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	result := first
	for _, v := range rest {
		if v.GreaterThan(result) {
			result = v
		}
	}
	return result
}

// NonNegative clamps negative values to zero.
func NonNegative(val decimal.Decimal) decimal.Decimal {
	if val.IsNegative() {
		return decimal.Zero
	}
	return val
}

// ApplyPercentage applies a percentage to a value
func ApplyPercentage(value, percentage decimal.Decimal) decimal.Decimal {
	return value.Mul(percentage).Div(hundred)
}

// IndexAdjust scales value by the ratio of two index values. A zero base
// index yields zero rather than a division panic; callers validate indices.
func IndexAdjust(value, targetIndex, baseIndex decimal.Decimal) decimal.Decimal {
	if baseIndex.IsZero() {
		return decimal.Zero
	}
	return value.Mul(targetIndex).Div(baseIndex)
}

// Share returns part/total, or zero for an empty total.
func Share(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total)
}
