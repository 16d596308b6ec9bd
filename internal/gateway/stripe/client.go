// Package stripe implements the payment gateway on top of Stripe Checkout.
package stripe

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

var (
	_ payment.Gateway         = (*Client)(nil)
	_ payment.WebhookVerifier = (*Client)(nil)
)

// Config holds Stripe credentials and request settings.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// Currency is the ISO currency code of all line items, e.g. "usd".
	Currency string
	// Timeout bounds each HTTP round trip to the Stripe API.
	Timeout time.Duration
	// BaseURL overrides the Stripe API endpoint. Empty means the default.
	BaseURL string
}

// Client is a payment.Gateway backed by the Stripe API.
type Client struct {
	api           *client.API
	currency      string
	webhookSecret string
}

// New creates a Stripe Client. Requests go through an otelhttp transport and
// the Stripe library's own retry logic, with every round trip bounded by
// cfg.Timeout.
func New(cfg Config, lg *zap.Logger) *Client {
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:    httpClient,
		LeveledLogger: lg.Named("stripe").Sugar(),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return &Client{
		api:           client.New(cfg.SecretKey, &stripe.Backends{API: backend}),
		currency:      cfg.Currency,
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateDiscount creates a single-use percent-off coupon.
func (c *Client) CreateDiscount(ctx context.Context, percentOff float64) (string, error) {
	params := &stripe.CouponParams{
		PercentOff: stripe.Float64(percentOff),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
	}
	params.Context = ctx

	cp, err := c.api.Coupons.New(params)
	if err != nil {
		return "", &payment.GatewayError{Op: "create discount", Err: err}
	}
	return cp.ID, nil
}

// CreateCheckoutSession creates a hosted card-payment checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems:          make([]*stripe.CheckoutSessionLineItemParams, len(req.LineItems)),
	}
	params.Context = ctx

	for i, li := range req.LineItems {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.Image != "" {
			productData.Images = stripe.StringSlice([]string{li.Image})
		}
		params.LineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(c.currency),
				ProductData: productData,
				UnitAmount:  stripe.Int64(li.UnitAmount),
			},
			Quantity: stripe.Int64(li.Quantity),
		}
	}
	if req.DiscountID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(req.DiscountID)},
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, &payment.GatewayError{Op: "create session", Err: err}
	}
	return toSession(s), nil
}

// RetrieveSession fetches a checkout session by id.
func (c *Client) RetrieveSession(ctx context.Context, id string) (*payment.Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(payment.ErrSessionNotFound, "session %s", id)
		}
		return nil, &payment.GatewayError{Op: "retrieve session", Err: err}
	}
	return toSession(s), nil
}

// VerifyWebhook checks the Stripe-Signature header of a webhook delivery and
// extracts the checkout session id from session events.
func (c *Client) VerifyWebhook(payload []byte, signature string) (*payment.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrInvalidSignature, "%v", err)
	}

	out := &payment.Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return out, nil
	}
	sessionID, err := objectID(ev.Data.Raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode event object")
	}
	out.SessionID = sessionID
	return out, nil
}

// objectID reads the top-level "id" of a Stripe object.
func objectID(raw []byte) (string, error) {
	var id string
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	return id, err
}

func toSession(s *stripe.CheckoutSession) *payment.Session {
	return &payment.Session{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: payment.Status(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}
}

func isNotFound(err error) bool {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.HTTPStatusCode == http.StatusNotFound || serr.Code == stripe.ErrorCodeResourceMissing
}
