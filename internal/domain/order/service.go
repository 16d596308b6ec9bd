package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service exposes read access to settled orders and applies lifecycle
// transitions.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// UpdateStatus moves the order to the requested status if its lifecycle
// allows it. Concurrent updates are resolved by the store comparing the
// previous status.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if _, err := from.Transition(to); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, id, from, to); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update order status")
	}
	o.Status = to

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return o, nil
}
