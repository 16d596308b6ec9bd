package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateSession is returned by stores when an order for the same
	// gateway session already exists.
	ErrDuplicateSession = errors.New("order for gateway session already exists")
	// ErrInvalidTransition is returned for status changes the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrUnknownStatus is returned when parsing a status name that does not exist.
	ErrUnknownStatus = errors.New("unknown order status")
)

// Order is a settled purchase. There is at most one order per gateway session.
type Order struct {
	ID     string
	UserID string
	Lines  []Line
	// Discount is the coupon discount in major units.
	Discount         decimal.Decimal
	CouponCode       string
	GatewaySessionID string
	Status           Status
	CreatedAt        time.Time
}

// Line is a purchased product with the catalog name and price captured at
// settlement time.
type Line struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal is the sum of quantity times unit price over all lines.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Total is the subtotal minus the discount, floored at zero and rounded to
// two decimal places. It is always derived from the lines and never stored.
func (o *Order) Total() decimal.Decimal {
	total := o.Subtotal().Sub(o.Discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

// Repository defines persistence operations for orders. Orders are created
// by the settlement store.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetBySessionID returns the order settled for the gateway session.
	GetBySessionID(ctx context.Context, sessionID string) (*Order, error)
	// UpdateStatus moves the order from one status to another. It returns
	// ErrInvalidTransition if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// TotalSales aggregates every order that is not canceled.
	TotalSales(ctx context.Context) (Sales, error)
	// DailySales aggregates orders that are not canceled and were created in
	// [from, to), grouped by UTC day in ascending order. Days without orders
	// are omitted.
	DailySales(ctx context.Context, from, to time.Time) ([]DailySales, error)
}
