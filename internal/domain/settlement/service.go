package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Outcome attribute values of the settlement.outcomes counter.
const (
	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// Service settles paid checkout sessions.
//
// Settle is safe to call any number of times for the same session, from any
// number of goroutines or processes: the store's unique constraint on the
// gateway session id decides which call creates the order, and only that
// call spends the coupon and issues a gift.
type Service struct {
	gateway  SessionRetriever
	products *product.Validator
	coupons  CouponFinder
	orders   OrderFinder
	store    Store
	now      func() time.Time

	tracer   trace.Tracer
	outcomes metric.Int64Counter
	gifts    metric.Int64Counter
}

// NewService creates a settlement Service.
func NewService(
	gateway SessionRetriever,
	products *product.Validator,
	coupons CouponFinder,
	orders OrderFinder,
	store Store,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter("settlement")
	outcomes, err := meter.Int64Counter("settlement.outcomes",
		metric.WithDescription("Settlement attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create outcomes counter")
	}
	gifts, err := meter.Int64Counter("coupon.gifts_issued",
		metric.WithDescription("Gift coupons issued on settlement"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create gifts counter")
	}
	return &Service{
		gateway:  gateway,
		products: products,
		coupons:  coupons,
		orders:   orders,
		store:    store,
		now:      time.Now,
		tracer:   tp.Tracer("settlement"),
		outcomes: outcomes,
		gifts:    gifts,
	}, nil
}

// Settle records the order for a paid gateway session and returns its id.
// Replays of an already settled session return the existing order id
// without further writes.
func (s *Service) Settle(ctx context.Context, sessionID string) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Settle",
		trace.WithAttributes(attribute.String("payment.session_id", sessionID)),
	)
	outcome := outcomeFailed
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.SetAttributes(attribute.String("settlement.outcome", outcome))
		span.End()
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	if sessionID == "" {
		outcome = outcomeRejected
		return nil, ErrMissingSessionID
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			outcome = outcomeRejected
		}
		return nil, errors.Wrap(err, "retrieve session")
	}
	if session.PaymentStatus != payment.StatusPaid {
		outcome = outcomeRejected
		return nil, errors.Wrapf(ErrPaymentIncomplete, "session %s is %s", sessionID, session.PaymentStatus)
	}

	// Replays skip catalog resolution, so a product retired after payment
	// does not turn a settled session into an error.
	if existing, err := s.orders.GetBySessionID(ctx, sessionID); err == nil {
		outcome = outcomeDuplicate
		return &Result{OrderID: existing.ID}, nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return nil, errors.Wrap(err, "lookup settled order")
	}

	meta, err := checkout.DecodeMetadata(session.Metadata)
	if err != nil {
		outcome = outcomeRejected
		return nil, err
	}

	lines, err := s.products.Resolve(ctx, meta.Lines)
	if err != nil {
		var (
			unavailable *product.UnavailableError
			quantity    *product.InvalidQuantityError
		)
		if errors.As(err, &unavailable) || errors.As(err, &quantity) {
			outcome = outcomeRejected
		}
		return nil, errors.Wrap(err, "resolve products")
	}

	st, err := s.prepare(ctx, session, meta, lines)
	if err != nil {
		if errors.Is(err, checkout.ErrAmountTooLarge) {
			outcome = outcomeRejected
		}
		return nil, err
	}

	if err := s.store.Commit(ctx, st); err != nil {
		if !errors.Is(err, order.ErrDuplicateSession) {
			return nil, errors.Wrap(err, "commit settlement")
		}
		existing, err := s.orders.GetBySessionID(ctx, sessionID)
		if err != nil {
			return nil, errors.Wrap(err, "lookup settled order")
		}
		outcome = outcomeDuplicate
		zctx.From(ctx).Info("Session settled concurrently, reusing order",
			zap.String("session_id", sessionID),
			zap.String("order_id", existing.ID),
		)
		return &Result{OrderID: existing.ID}, nil
	}

	outcome = outcomeCreated
	lg := zctx.From(ctx).With(
		zap.String("session_id", sessionID),
		zap.String("order_id", st.Order.ID),
		zap.String("user_id", meta.UserID),
	)
	lg.Info("Order settled",
		zap.String("total", st.Order.Total().StringFixed(2)),
		zap.String("coupon", st.Order.CouponCode),
	)
	if st.Gift != nil {
		s.gifts.Add(ctx, 1)
		lg.Info("Gift coupon issued", zap.String("code", st.Gift.Code))
	}

	return &Result{OrderID: st.Order.ID, Created: true, Gift: st.Gift}, nil
}

// prepare builds the writes for a first-time settlement. Prices come from the
// catalog and the discount from the coupon ledger; the gateway only
// contributes the amount used for the gift threshold.
func (s *Service) prepare(
	ctx context.Context,
	session *payment.Session,
	meta checkout.Metadata,
	lines []product.PricedLine,
) (Settlement, error) {
	now := s.now()
	lg := zctx.From(ctx)
	summary, err := checkout.Summarize(lines)
	if err != nil {
		return Settlement{}, err
	}

	st := Settlement{
		Order: order.Order{
			ID:               uuid.New().String(),
			UserID:           meta.UserID,
			Lines:            make([]order.Line, len(lines)),
			GatewaySessionID: session.ID,
			Status:           order.StatusPaid,
			CreatedAt:        now,
		},
	}
	for i, l := range lines {
		st.Order.Lines[i] = order.Line{
			ProductID: l.ID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.Price,
		}
	}

	var discountMinor int64
	if meta.CouponCode != "" {
		c, err := s.coupons.FindByCode(ctx, meta.CouponCode, meta.UserID)
		switch {
		case errors.Is(err, coupon.ErrNotFound):
			lg.Warn("Coupon referenced by session no longer exists",
				zap.String("session_id", session.ID),
				zap.String("code", meta.CouponCode),
			)
		case err != nil:
			return Settlement{}, errors.Wrap(err, "lookup spent coupon")
		default:
			discountMinor = coupon.DiscountAmount(summary.TotalMinor, c.DiscountPercentage)
			st.Order.CouponCode = c.Code
			st.SpentCouponID = c.ID
		}
	}
	st.Order.Discount = checkout.FromMinor(discountMinor)

	if expected := summary.TotalMinor - discountMinor; expected != session.AmountTotal {
		lg.Warn("Gateway total differs from recomputed total",
			zap.String("session_id", session.ID),
			zap.Int64("gateway_total", session.AmountTotal),
			zap.Int64("recomputed_total", expected),
		)
	}

	if session.AmountTotal >= GiftThreshold {
		gift := coupon.NewGift(meta.UserID, now)
		st.Gift = &gift
	}
	return st, nil
}
