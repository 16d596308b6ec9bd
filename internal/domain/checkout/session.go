package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// SessionConfig holds the redirect targets of hosted checkout pages.
type SessionConfig struct {
	// SuccessURL must contain the gateway's session id placeholder so the
	// client can trigger settlement after the redirect.
	SuccessURL string
	CancelURL  string
}

// SessionFactory assembles and creates gateway checkout sessions.
type SessionFactory struct {
	gateway payment.Gateway
	cfg     SessionConfig
}

// NewSessionFactory creates a SessionFactory.
func NewSessionFactory(gateway payment.Gateway, cfg SessionConfig) *SessionFactory {
	return &SessionFactory{gateway: gateway, cfg: cfg}
}

// Create builds the session request from the line items, optional discount
// and a price-free metadata payload, and asks the gateway for a session.
func (f *SessionFactory) Create(
	ctx context.Context,
	userID string,
	items []payment.LineItem,
	discount *coupon.Discount,
	lines []product.PricedLine,
) (*payment.Session, error) {
	meta := Metadata{
		UserID: userID,
		Lines:  make([]product.Request, len(lines)),
	}
	for i, l := range lines {
		meta.Lines[i] = product.Request{ProductID: l.ID, Quantity: l.Quantity}
	}

	req := payment.SessionRequest{
		LineItems:  items,
		SuccessURL: f.cfg.SuccessURL,
		CancelURL:  f.cfg.CancelURL,
	}
	if discount != nil {
		req.DiscountID = discount.ExternalDiscountID
		meta.CouponCode = discount.Code
	}

	encoded, err := meta.Encode()
	if err != nil {
		return nil, err
	}
	req.Metadata = encoded

	session, err := f.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return session, nil
}
