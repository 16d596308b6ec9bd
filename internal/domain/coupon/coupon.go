package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no coupon matches the lookup.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when an active coupon is past its expiration date.
	ErrExpired = errors.New("coupon expired")
	// ErrDuplicateCode is returned by stores when a coupon code is taken.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidPercentage is returned for discount percentages outside [0, 100].
	ErrInvalidPercentage = errors.New("discount percentage must be between 0 and 100")
)

const (
	// GiftPercentage is the discount granted by system-issued gift coupons.
	GiftPercentage = 10
	// GiftValidity is how long a gift coupon stays redeemable.
	GiftValidity = 30 * 24 * time.Hour

	giftPrefix = "GIFT"
)

// Coupon is a user-owned percent-off discount.
//
// Active only transitions from true to false. ExternalDiscountID is empty
// until the matching gateway discount object is materialized and is written
// at most once.
type Coupon struct {
	ID                 string
	Code               string
	OwnerID            string
	DiscountPercentage decimal.Decimal
	ExpiresAt          time.Time
	Active             bool
	ExternalDiscountID string
	CreatedAt          time.Time
}

// Expired reports whether the coupon is past its expiration date at now.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// Discount is the result of applying a coupon to an order total.
type Discount struct {
	ExternalDiscountID string
	Code               string
	Percentage         decimal.Decimal
	// Amount is the discount in minor currency units.
	Amount int64
}

// Repository provides lookup and the permitted mutations of coupons.
type Repository interface {
	// FindActive returns the active coupon with the given code owned by
	// ownerID, or ErrNotFound.
	FindActive(ctx context.Context, code, ownerID string) (*Coupon, error)
	// FindByCode returns the coupon with the given code owned by ownerID in
	// any state, or ErrNotFound.
	FindByCode(ctx context.Context, code, ownerID string) (*Coupon, error)
	// SetExternalDiscountID stores externalID only if the coupon has none yet.
	// It reports whether the write happened.
	SetExternalDiscountID(ctx context.Context, id, externalID string) (bool, error)
	// Deactivate marks the coupon inactive.
	Deactivate(ctx context.Context, id string) error
}

// NewGift builds a gift coupon for ownerID with a freshly generated code.
func NewGift(ownerID string, now time.Time) Coupon {
	return Coupon{
		ID:                 uuid.New().String(),
		Code:               GiftCode(uuid.New()),
		OwnerID:            ownerID,
		DiscountPercentage: decimal.NewFromInt(GiftPercentage),
		ExpiresAt:          now.Add(GiftValidity),
		Active:             true,
		CreatedAt:          now,
	}
}

// GiftCode derives a gift coupon code from the first group of a UUID,
// e.g. GIFT3F1A2B4C.
func GiftCode(id uuid.UUID) string {
	s := id.String()
	return giftPrefix + strings.ToUpper(s[:strings.IndexByte(s, '-')])
}
