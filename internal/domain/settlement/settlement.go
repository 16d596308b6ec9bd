// Package settlement turns a confirmed gateway payment into exactly one
// persisted order.
package settlement

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// GiftThreshold is the gateway total in minor units from which a settled
// purchase earns a gift coupon.
const GiftThreshold int64 = 10000

var (
	// ErrMissingSessionID is returned when settlement is requested without a
	// gateway session id.
	ErrMissingSessionID = errors.New("session id is required")
	// ErrPaymentIncomplete is returned when the gateway does not report the
	// session as paid.
	ErrPaymentIncomplete = errors.New("payment not completed")
	// ErrMalformedMetadata is returned when the session metadata cannot be
	// decoded into a purchase.
	ErrMalformedMetadata = checkout.ErrMalformedMetadata
)

// Settlement is everything written when a session is settled for the first
// time.
type Settlement struct {
	Order order.Order
	// SpentCouponID is the coupon to deactivate. Empty if none was used.
	SpentCouponID string
	// Gift is the gift coupon to issue, or nil.
	Gift *coupon.Coupon
}

// Store persists settlements.
type Store interface {
	// Commit writes the order, the coupon deactivation and the gift coupon in
	// one transaction. If an order for the same gateway session already
	// exists, nothing is written and order.ErrDuplicateSession is returned.
	Commit(ctx context.Context, s Settlement) error
}

// SessionRetriever fetches checkout sessions from the gateway.
type SessionRetriever interface {
	RetrieveSession(ctx context.Context, id string) (*payment.Session, error)
}

// CouponFinder looks up coupons regardless of their state.
type CouponFinder interface {
	FindByCode(ctx context.Context, code, ownerID string) (*coupon.Coupon, error)
}

// OrderFinder looks up previously settled orders.
type OrderFinder interface {
	GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error)
}

// Result is the outcome of a settlement.
type Result struct {
	OrderID string
	// Created is false when the session had already been settled.
	Created bool
	// Gift is the gift coupon issued by this settlement, if any.
	Gift *coupon.Coupon
}
