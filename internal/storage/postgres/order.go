package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	orderColumns = `id, user_id, discount, coupon_code, gateway_session_id, status, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderBySessionSQL = `SELECT ` + orderColumns + ` FROM orders WHERE gateway_session_id = $1`

	getOrderLinesSQL = `SELECT product_id, name, quantity, unit_price
		FROM order_lines WHERE order_id = $1 ORDER BY position`

	updateOrderStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	// orderTotalsSQL mirrors order.Order.Total for every order that is not
	// canceled. Callers append extra filters before GROUP BY.
	orderTotalsSQL = `SELECT o.created_at,
			ROUND(GREATEST(COALESCE(SUM(l.quantity * l.unit_price), 0) - o.discount, 0), 2) AS total
		FROM orders o
		LEFT JOIN order_lines l ON l.order_id = o.id
		WHERE o.status <> 'canceled'`

	totalSalesSQL = `WITH totals AS (` + orderTotalsSQL + ` GROUP BY o.id)
		SELECT COUNT(*), COALESCE(SUM(total), 0) FROM totals`

	dailySalesSQL = `WITH totals AS (` + orderTotalsSQL + `
			AND o.created_at >= $1 AND o.created_at < $2 GROUP BY o.id)
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COUNT(*), COALESCE(SUM(total), 0)
		FROM totals GROUP BY day ORDER BY day`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns the order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetBySessionID returns the order settled for the gateway session.
func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderBySessionSQL, sessionID)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	rows, err = r.pool.Query(ctx, getOrderLinesSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", o.ID, err)
	}
	o.Lines, err = pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", o.ID, err)
	}
	return &o, nil
}

// UpdateStatus changes the order status if it is still from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return errors.Wrapf(order.ErrInvalidTransition, "order %s is no longer %s", id, from)
}

// TotalSales counts orders that are not canceled and sums their totals.
func (r *OrderRepository) TotalSales(ctx context.Context) (order.Sales, error) {
	var s order.Sales
	if err := r.pool.QueryRow(ctx, totalSalesSQL).Scan(&s.Orders, &s.Revenue); err != nil {
		return order.Sales{}, fmt.Errorf("aggregating sales: %w", err)
	}
	return s, nil
}

// DailySales aggregates orders created in [from, to) per UTC day.
func (r *OrderRepository) DailySales(ctx context.Context, from, to time.Time) ([]order.DailySales, error) {
	rows, err := r.pool.Query(ctx, dailySalesSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily sales: %w", err)
	}
	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.DailySales, error) {
		var d order.DailySales
		err := row.Scan(&d.Day, &d.Orders, &d.Revenue)
		d.Day = order.Day(d.Day)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("aggregating daily sales: %w", err)
	}
	return days, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Discount, &o.CouponCode, &o.GatewaySessionID, &status, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l   order.Line
		qty int32
	)
	err := row.Scan(&l.ProductID, &l.Name, &qty, &l.UnitPrice)
	l.Quantity = int(qty)
	return l, err
}
