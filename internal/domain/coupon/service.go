package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DiscountCreator creates percent-off discount objects on the payment gateway.
type DiscountCreator interface {
	CreateDiscount(ctx context.Context, percentOff float64) (string, error)
}

// Service applies user-owned coupons to checkout totals.
//
// It is the only writer of a coupon's external discount id.
type Service struct {
	repo    Repository
	gateway DiscountCreator
	group   singleflight.Group
	now     func() time.Time
}

// NewService creates a coupon Service.
func NewService(repo Repository, gateway DiscountCreator) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		now:     time.Now,
	}
}

// Apply looks up the active, unexpired coupon code owned by userID and
// computes its discount on totalMinor. A missing coupon is not an error: Apply
// returns nil and the checkout proceeds without a discount.
func (s *Service) Apply(ctx context.Context, code string, totalMinor int64, userID string) (*Discount, error) {
	if code == "" {
		return nil, nil
	}

	c, err := s.repo.FindActive(ctx, code, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if c.Expired(s.now()) {
		zctx.From(ctx).Info("Expired coupon ignored at checkout",
			zap.String("code", c.Code),
			zap.Time("expires_at", c.ExpiresAt),
		)
		return nil, nil
	}
	if !ValidPercentage(c.DiscountPercentage) {
		return nil, errors.Wrapf(ErrInvalidPercentage, "coupon %s", c.Code)
	}

	externalID, err := s.materialize(ctx, c)
	if err != nil {
		return nil, err
	}

	return &Discount{
		ExternalDiscountID: externalID,
		Code:               c.Code,
		Percentage:         c.DiscountPercentage,
		Amount:             DiscountAmount(totalMinor, c.DiscountPercentage),
	}, nil
}

// materialize returns the gateway discount id of c, creating it on first use.
// Concurrent callers in this process share one gateway call; callers in other
// processes are reconciled by the conditional write.
func (s *Service) materialize(ctx context.Context, c *Coupon) (string, error) {
	if c.ExternalDiscountID != "" {
		return c.ExternalDiscountID, nil
	}

	// Callers joining the flight share its result, so one caller's
	// cancellation must not fail the others.
	ctx = context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(c.ID, func() (any, error) {
		pct, _ := c.DiscountPercentage.Float64()
		created, err := s.gateway.CreateDiscount(ctx, pct)
		if err != nil {
			return "", errors.Wrap(err, "create gateway discount")
		}

		written, err := s.repo.SetExternalDiscountID(ctx, c.ID, created)
		if err != nil {
			return "", errors.Wrap(err, "store external discount id")
		}
		if written {
			return created, nil
		}

		// Another checkout stored its id first; reuse that one.
		current, err := s.repo.FindByCode(ctx, c.Code, c.OwnerID)
		if err != nil {
			return "", errors.Wrap(err, "reread coupon")
		}
		if current.ExternalDiscountID == "" {
			return "", errors.Errorf("coupon %s: external discount id lost after conflict", c.Code)
		}
		zctx.From(ctx).Warn("Discount materialized concurrently, discarding duplicate",
			zap.String("code", c.Code),
			zap.String("kept", current.ExternalDiscountID),
			zap.String("discarded", created),
		)
		return current.ExternalDiscountID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Validate checks that the active coupon code owned by userID has not expired.
// An expired coupon is retired on detection and ErrExpired is returned.
func (s *Service) Validate(ctx context.Context, code, userID string) (*Coupon, error) {
	c, err := s.repo.FindActive(ctx, code, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.Expired(s.now()) {
		if err := s.repo.Deactivate(ctx, c.ID); err != nil {
			return nil, errors.Wrap(err, "deactivate expired coupon")
		}
		return nil, ErrExpired
	}
	return c, nil
}
