// Package checkout turns a product selection into a gateway checkout session.
package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// ErrEmptyProducts is returned when a checkout request lists no products.
var ErrEmptyProducts = errors.New("invalid or no products")

// Request holds the input for starting a checkout.
type Request struct {
	UserID     string
	Products   []product.Request
	CouponCode string
}

// Result describes a created checkout session.
type Result struct {
	SessionID string
	URL       string
	// AmountTotal is the gateway's total in minor units, for display only.
	AmountTotal int64
	// SubtotalMinor is the locally computed total before discount.
	SubtotalMinor int64
	Discount      *coupon.Discount
}

// CouponApplier computes a coupon discount for a checkout total.
type CouponApplier interface {
	Apply(ctx context.Context, code string, totalMinor int64, userID string) (*coupon.Discount, error)
}

// Service runs the checkout pipeline: product validation, order summary,
// coupon application and session creation.
type Service struct {
	products *product.Validator
	coupons  CouponApplier
	sessions *SessionFactory

	tracer   trace.Tracer
	sessionC metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(
	products *product.Validator,
	coupons CouponApplier,
	sessions *SessionFactory,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	sessionC, err := mp.Meter("checkout").Int64Counter("checkout.sessions",
		metric.WithDescription("Checkout sessions created"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	return &Service{
		products: products,
		coupons:  coupons,
		sessions: sessions,
		tracer:   tp.Tracer("checkout"),
		sessionC: sessionC,
	}, nil
}

// Start validates the requested products against the catalog, applies the
// optional coupon and creates a gateway checkout session.
func (s *Service) Start(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Start",
		trace.WithAttributes(attribute.Int("checkout.products", len(req.Products))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if len(req.Products) == 0 {
		return nil, ErrEmptyProducts
	}

	lines, err := s.products.Resolve(ctx, req.Products)
	if err != nil {
		return nil, err
	}

	summary, err := Summarize(lines)
	if err != nil {
		return nil, err
	}

	discount, err := s.coupons.Apply(ctx, req.CouponCode, summary.TotalMinor, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "apply coupon")
	}

	session, err := s.sessions.Create(ctx, req.UserID, summary.LineItems, discount, lines)
	if err != nil {
		return nil, err
	}

	s.sessionC.Add(ctx, 1, metric.WithAttributes(attribute.Bool("discounted", discount != nil)))
	zctx.From(ctx).Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", req.UserID),
		zap.Int64("subtotal_minor", summary.TotalMinor),
		zap.Int64("amount_total", session.AmountTotal),
	)

	return &Result{
		SessionID:     session.ID,
		URL:           session.URL,
		AmountTotal:   session.AmountTotal,
		SubtotalMinor: summary.TotalMinor,
		Discount:      discount,
	}, nil
}
