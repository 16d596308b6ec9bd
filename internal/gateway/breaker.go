// Package gateway wraps payment gateways with call timeouts and a circuit
// breaker.
package gateway

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

var _ payment.Gateway = (*Breaker)(nil)

// BreakerConfig configures Breaker.
type BreakerConfig struct {
	// Timeout bounds each gateway call.
	Timeout time.Duration
	// Failures is the number of consecutive failures that opens the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open before a trial request is let through.
	Cooldown time.Duration
}

// Breaker is a payment.Gateway decorator that bounds every call with a
// timeout and stops calling the gateway while it keeps failing.
type Breaker struct {
	next    payment.Gateway
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps next.
func NewBreaker(next payment.Gateway, cfg BreakerConfig, lg *zap.Logger) *Breaker {
	failures := cfg.Failures
	if failures == 0 {
		failures = 5
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		IsSuccessful: func(err error) bool {
			// Answers the gateway gave on purpose do not indicate an outage.
			return err == nil ||
				errors.Is(err, payment.ErrSessionNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{next: next, timeout: cfg.Timeout, cb: cb}
}

// Open reports whether calls are currently refused.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) CreateDiscount(ctx context.Context, percentOff float64) (string, error) {
	v, err := b.execute(ctx, "create discount", func(ctx context.Context) (any, error) {
		return b.next.CreateDiscount(ctx, percentOff)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *Breaker) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	v, err := b.execute(ctx, "create session", func(ctx context.Context) (any, error) {
		return b.next.CreateCheckoutSession(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*payment.Session), nil
}

func (b *Breaker) RetrieveSession(ctx context.Context, id string) (*payment.Session, error) {
	v, err := b.execute(ctx, "retrieve session", func(ctx context.Context) (any, error) {
		return b.next.RetrieveSession(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*payment.Session), nil
}

func (b *Breaker) execute(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	v, err := b.cb.Execute(func() (any, error) {
		callCtx := ctx
		if b.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err == nil {
		return v, nil
	}

	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &payment.GatewayError{Op: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &gwErr):
		return nil, &payment.GatewayError{Op: op, Err: err}
	default:
		return nil, err
	}
}
