package coupon

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// ValidPercentage reports whether p lies in [0, 100].
func ValidPercentage(p decimal.Decimal) bool {
	return !p.LessThan(zero) && !p.GreaterThan(hundred)
}

// DiscountAmount returns round(total * percentage / 100) in minor units,
// rounding half away from zero.
func DiscountAmount(totalMinor int64, percentage decimal.Decimal) int64 {
	return decimal.NewFromInt(totalMinor).
		Mul(percentage).
		Div(hundred).
		Round(0).
		IntPart()
}
