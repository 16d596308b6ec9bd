// Package seed loads the demo catalog into a store.
package seed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Catalog is the seed file layout.
type Catalog struct {
	Products []ProductSeed `json:"products"`
	Coupons  []CouponSeed  `json:"coupons"`
}

// ProductSeed is one catalog entry.
type ProductSeed struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
}

// CouponSeed is a coupon valid for ValidDays from the time of seeding.
type CouponSeed struct {
	Code               string          `json:"code"`
	OwnerID            string          `json:"ownerId"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	ValidDays          int             `json:"validDays"`
}

// Parse decodes and validates a catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	for _, p := range c.Products {
		if p.ID == "" || p.Name == "" {
			return nil, errors.Errorf("product %q: id and name are required", p.ID)
		}
		if p.Price.IsNegative() {
			return nil, errors.Errorf("product %q: negative price", p.ID)
		}
	}
	for _, cp := range c.Coupons {
		if cp.Code == "" || cp.OwnerID == "" {
			return nil, errors.Errorf("coupon %q: code and owner are required", cp.Code)
		}
		if !coupon.ValidPercentage(cp.DiscountPercentage) {
			return nil, errors.Wrapf(coupon.ErrInvalidPercentage, "coupon %s", cp.Code)
		}
	}
	return &c, nil
}

// Target receives seeded records. Implementations must tolerate reseeding:
// products are upserted and existing coupon codes are reported with
// coupon.ErrDuplicateCode.
type Target interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	CreateCoupon(ctx context.Context, c coupon.Coupon) error
	CreateAPIKey(ctx context.Context, info auth.APIKeyInfo) error
}

// Stats counts what Apply wrote.
type Stats struct {
	Products       int
	Coupons        int
	SkippedCoupons int
}

// Apply writes the catalog to t. Coupons whose code already exists are
// skipped.
func Apply(ctx context.Context, t Target, c *Catalog, now time.Time) (Stats, error) {
	var st Stats
	for _, p := range c.Products {
		if err := t.UpsertProduct(ctx, product.Product{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Category: p.Category,
			Image:    p.Image,
		}); err != nil {
			return st, errors.Wrapf(err, "upsert product %s", p.ID)
		}
		st.Products++
	}

	for _, cp := range c.Coupons {
		err := t.CreateCoupon(ctx, coupon.Coupon{
			ID:                 uuid.New().String(),
			Code:               cp.Code,
			OwnerID:            cp.OwnerID,
			DiscountPercentage: cp.DiscountPercentage,
			ExpiresAt:          now.AddDate(0, 0, cp.ValidDays),
			Active:             true,
			CreatedAt:          now,
		})
		switch {
		case errors.Is(err, coupon.ErrDuplicateCode):
			st.SkippedCoupons++
		case err != nil:
			return st, errors.Wrapf(err, "create coupon %s", cp.Code)
		default:
			st.Coupons++
		}
	}
	return st, nil
}

// APIKey stores the pepper-hashed edge API key under id.
func APIKey(ctx context.Context, t Target, id, key string, pepper []byte) error {
	if key == "" {
		return errors.New("api key is empty")
	}
	return t.CreateAPIKey(ctx, auth.APIKeyInfo{
		ID:      id,
		KeyHash: auth.HashKey(key, pepper),
		Name:    id,
		Scopes:  []string{"checkout"},
	})
}
