package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

const (
	couponColumns = `id, code, owner_id, discount_percentage, expires_at, active,
		COALESCE(external_discount_id, ''), created_at`

	findActiveCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = $1 AND owner_id = $2 AND active = TRUE`

	findCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = $1 AND owner_id = $2`

	setExternalDiscountIDSQL = `UPDATE coupons SET external_discount_id = $2
		WHERE id = $1 AND external_discount_id IS NULL`

	deactivateCouponSQL = `UPDATE coupons SET active = FALSE WHERE id = $1`

	listCouponCodesSQL = `SELECT code FROM coupons`

	insertCouponSQL = `INSERT INTO coupons
		(id, code, owner_id, discount_percentage, expires_at, active, external_discount_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindActive looks up an active coupon by code and owner.
// Returns coupon.ErrNotFound when no matching active coupon exists.
func (r *CouponRepository) FindActive(ctx context.Context, code, ownerID string) (*coupon.Coupon, error) {
	return r.findOne(ctx, findActiveCouponSQL, code, ownerID)
}

// FindByCode looks up a coupon by code and owner regardless of its state.
func (r *CouponRepository) FindByCode(ctx context.Context, code, ownerID string) (*coupon.Coupon, error) {
	return r.findOne(ctx, findCouponByCodeSQL, code, ownerID)
}

func (r *CouponRepository) findOne(ctx context.Context, query, code, ownerID string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query, code, ownerID)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// SetExternalDiscountID stores externalID unless the coupon already has one.
func (r *CouponRepository) SetExternalDiscountID(ctx context.Context, id, externalID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, setExternalDiscountIDSQL, id, externalID)
	if err != nil {
		return false, fmt.Errorf("setting external discount id for coupon %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Deactivate marks the coupon inactive.
func (r *CouponRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deactivateCouponSQL, id); err != nil {
		return fmt.Errorf("deactivating coupon %q: %w", id, err)
	}
	return nil
}

// ForEachCode streams every coupon code, active or not, to fn.
func (r *CouponRepository) ForEachCode(ctx context.Context, fn func(code string) error) error {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}
	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		return fn(code)
	})
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}
	return nil
}

// Create inserts a new coupon.
func (r *CouponRepository) Create(ctx context.Context, c coupon.Coupon) error {
	return insertCoupon(ctx, r.pool, c)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertCoupon(ctx context.Context, q execer, c coupon.Coupon) error {
	_, err := q.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, c.OwnerID, c.DiscountPercentage, c.ExpiresAt, c.Active, c.ExternalDiscountID, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(coupon.ErrDuplicateCode, "%s", c.Code)
		}
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.OwnerID, &c.DiscountPercentage, &c.ExpiresAt, &c.Active,
		&c.ExternalDiscountID, &c.CreatedAt,
	)
	return c, err
}
