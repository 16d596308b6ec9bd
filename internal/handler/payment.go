package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/settlement"
)

// maxWebhookSize bounds webhook payloads read before signature verification.
const maxWebhookSize = 64 << 10

// POST /payment/create-checkout-session
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	req := checkout.Request{UserID: id.UserID}

	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "products":
			// Anything but an array leaves the list empty and is rejected
			// by the checkout service.
			if d.Next() != jx.Array {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProductRequest(d)
				if err != nil {
					return err
				}
				req.Products = append(req.Products, p)
				return nil
			})
		case "couponCode":
			if d.Next() == jx.Null {
				return d.Null()
			}
			code, err := d.Str()
			req.CouponCode = code
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.checkout.Start(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeOK(w, "Checkout session created successfully!", func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Str(res.SessionID)
		e.FieldStart("url")
		e.Str(res.URL)
		encodeMoney(e, "totalAmount", checkout.FromMinor(res.AmountTotal))
	})
}

// decodeProductRequest reads {"id": ..., "quantity": ...}. The legacy "_id"
// key is accepted as an alias of "id".
func decodeProductRequest(d *jx.Decoder) (product.Request, error) {
	var p product.Request
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id", "_id":
			p.ProductID, err = d.Str()
		case "quantity":
			p.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

// POST /payment/purchase-success?session_id=
func (h *Handler) PurchaseSuccess(w http.ResponseWriter, r *http.Request) {
	res, err := h.settle.Settle(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeSettled(w, res)
}

// POST /payment/webhook
//
// Permanent rejections of a verified event are acknowledged with 200 so the
// gateway stops redelivering it. Transient failures return an error status
// and the gateway retries.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r, maxWebhookSize)
	if err != nil {
		fail(w, r, err)
		return
	}
	ev, err := h.webhooks.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if !errors.Is(err, payment.ErrInvalidSignature) {
			err = errors.Wrap(payment.ErrInvalidSignature, err.Error())
		}
		fail(w, r, err)
		return
	}

	lg := zctx.From(r.Context()).With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
	)
	if ev.Type != payment.EventCheckoutCompleted {
		lg.Debug("Webhook event ignored")
		writeOK(w, "Event ignored", nil)
		return
	}

	res, err := h.settle.Settle(r.Context(), ev.SessionID)
	if err != nil {
		if status := errorStatus(err); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			lg.Warn("Webhook settlement rejected", zap.Error(err))
			writeOK(w, "Event rejected", nil)
			return
		}
		fail(w, r, err)
		return
	}
	writeSettled(w, res)
}

func writeSettled(w http.ResponseWriter, res *settlement.Result) {
	msg := "Order already exists"
	if res.Created {
		msg = "Order created successfully!"
	}
	writeOK(w, msg, func(e *jx.Encoder) {
		e.FieldStart("orderId")
		e.Str(res.OrderID)
		if res.Gift != nil {
			e.FieldStart("giftCoupon")
			encodeCoupon(e, res.Gift)
		}
	})
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discountPercentage")
	e.Float64(c.DiscountPercentage.InexactFloat64())
	e.FieldStart("expirationDate")
	e.Str(c.ExpiresAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
