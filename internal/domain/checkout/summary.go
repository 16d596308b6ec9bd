package checkout

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// MaxAmountMinor is the largest purchase total, in minor units, the gateway
// accepts for a single checkout.
const MaxAmountMinor = 99_999_999

// ErrAmountTooLarge is returned when a purchase total exceeds MaxAmountMinor.
var ErrAmountTooLarge = errors.New("order total exceeds the maximum amount")

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(MaxAmountMinor)
)

// Summary is the gateway-ready form of a set of priced lines.
type Summary struct {
	LineItems []payment.LineItem
	// TotalMinor is the sum of per-line subtotals in minor units.
	TotalMinor int64
}

// ToMinor converts a major-unit amount to minor units, rounding half away
// from zero.
func ToMinor(major decimal.Decimal) int64 {
	return major.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts a minor-unit amount to major units.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Summarize converts each line's unit price to minor units before
// multiplying by quantity. The total is the sum of those line subtotals and
// never a rounding of the grand total, which matches how the gateway totals
// line items.
//
// Quantities must lie in [1, product.MaxQuantity] and the total must not
// exceed MaxAmountMinor; both bounds keep the int64 arithmetic exact.
func Summarize(lines []product.PricedLine) (Summary, error) {
	s := Summary{LineItems: make([]payment.LineItem, len(lines))}
	for i, l := range lines {
		if !product.ValidQuantity(l.Quantity) {
			return Summary{}, &product.InvalidQuantityError{ProductID: l.ID}
		}
		if l.Price.IsNegative() || l.Price.Mul(hundred).GreaterThan(maxAmount) {
			return Summary{}, errors.Wrapf(ErrAmountTooLarge, "price of product %s", l.ID)
		}
		unit := ToMinor(l.Price)
		s.LineItems[i] = payment.LineItem{
			Name:       l.Name,
			Image:      l.Image,
			UnitAmount: unit,
			Quantity:   int64(l.Quantity),
		}
		// unit <= 1e8 and quantity < 1e6, so the product fits in int64.
		s.TotalMinor += unit * int64(l.Quantity)
		if s.TotalMinor > MaxAmountMinor {
			return Summary{}, ErrAmountTooLarge
		}
	}
	return s, nil
}
