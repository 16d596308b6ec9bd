// Package handler exposes the checkout, settlement, coupon and order
// operations over HTTP.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/settlement"
)

// CheckoutService starts checkout sessions.
type CheckoutService interface {
	Start(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// SettlementService turns paid gateway sessions into orders.
type SettlementService interface {
	Settle(ctx context.Context, sessionID string) (*settlement.Result, error)
}

// CouponService validates coupon codes for their owner.
type CouponService interface {
	Validate(ctx context.Context, code, userID string) (*coupon.Coupon, error)
}

// OrderService reads orders, changes their status and reports sales.
type OrderService interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
	Report(ctx context.Context) (*order.Report, error)
}

// KeyVerifier authenticates the calling edge service.
type KeyVerifier interface {
	Verify(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Handler serves the HTTP API on top of the domain services.
type Handler struct {
	checkout CheckoutService
	settle   SettlementService
	coupons  CouponService
	orders   OrderService
	webhooks payment.WebhookVerifier
	keys     KeyVerifier
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	checkout CheckoutService,
	settle SettlementService,
	coupons CouponService,
	orders OrderService,
	webhooks payment.WebhookVerifier,
	keys KeyVerifier,
) *Handler {
	return &Handler{
		checkout: checkout,
		settle:   settle,
		coupons:  coupons,
		orders:   orders,
		webhooks: webhooks,
		keys:     keys,
	}
}

// Routes registers the API on r. The webhook is authenticated by its
// signature; every other route requires the edge API key and a forwarded
// user identity.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/payment/webhook", h.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAPIKey, RequireIdentity)

		r.Post("/payment/create-checkout-session", h.CreateCheckoutSession)
		r.Post("/payment/purchase-success", h.PurchaseSuccess)
		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Get("/orders/{id}", h.GetOrder)
		r.With(RequireAdmin).Post("/orders/{id}/status", h.UpdateOrderStatus)
		r.With(RequireAdmin).Get("/analytics", h.Analytics)
	})
}
