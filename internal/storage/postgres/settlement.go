package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/settlement"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, discount, coupon_code, gateway_session_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderLineSQL = `INSERT INTO order_lines
		(order_id, position, product_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ settlement.Store = (*SettlementStore)(nil)

// SettlementStore writes settlements in a single transaction.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore returns a SettlementStore that uses the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Commit inserts the order unconditionally and lets the unique constraint on
// gateway_session_id reject replays. The coupon deactivation and the gift
// coupon are written in the same transaction, so they happen exactly when
// the order insert wins.
func (s *SettlementStore) Commit(ctx context.Context, st settlement.Settlement) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		o := st.Order
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, o.Discount, o.CouponCode, o.GatewaySessionID, string(o.Status), o.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("session %q: %w", o.GatewaySessionID, order.ErrDuplicateSession)
			}
			return fmt.Errorf("inserting order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, l := range o.Lines {
			batch.Queue(insertOrderLineSQL, o.ID, i, l.ProductID, l.Name, l.Quantity, l.UnitPrice)
		}
		if st.SpentCouponID != "" {
			batch.Queue(deactivateCouponSQL, st.SpentCouponID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("writing order lines: %w", err)
		}

		if st.Gift != nil {
			if err := insertCoupon(ctx, tx, *st.Gift); err != nil {
				return fmt.Errorf("issuing gift coupon: %w", err)
			}
		}
		return nil
	})
}
