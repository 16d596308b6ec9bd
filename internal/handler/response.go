package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/settlement"
)

const maxBodySize = 1 << 20

var errMalformedBody = errors.New("malformed request body")

// errorStatus maps a domain error to its HTTP status.
func errorStatus(err error) int {
	var (
		unavailable *product.UnavailableError
		quantity    *product.InvalidQuantityError
		gateway     *payment.GatewayError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errMalformedBody),
		errors.Is(err, checkout.ErrEmptyProducts),
		errors.Is(err, checkout.ErrMetadataTooLarge),
		errors.Is(err, checkout.ErrAmountTooLarge),
		errors.Is(err, checkout.ErrMalformedMetadata),
		errors.Is(err, settlement.ErrMissingSessionID),
		errors.Is(err, settlement.ErrPaymentIncomplete),
		errors.Is(err, payment.ErrInvalidSignature),
		errors.Is(err, order.ErrUnknownStatus),
		errors.As(err, &unavailable),
		errors.As(err, &quantity):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrSessionNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coupon.ErrExpired):
		return http.StatusGone
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &gateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope for err. Server-side failures are logged and
// their details withheld from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	case http.StatusBadGateway:
		zctx.From(r.Context()).Warn("Payment gateway failure", zap.Error(err))
		msg = "payment gateway unavailable"
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	write(w, status, e.Bytes())
}

// writeOK writes {"success":true,"message":msg,...} where fields appends the
// remaining members.
func writeOK(w http.ResponseWriter, msg string, fields func(e *jx.Encoder)) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("message")
	e.Str(msg)
	if fields != nil {
		fields(&e)
	}
	e.ObjEnd()
	write(w, http.StatusOK, e.Bytes())
}

func write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, errors.Wrapf(errMalformedBody, "read: %v", err)
	}
	return data, nil
}

// decodeObject decodes a JSON object body, calling field for every member.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := readBody(w, r, maxBodySize)
	if err != nil {
		return err
	}
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		return errors.Wrapf(errMalformedBody, "%v", err)
	}
	return nil
}

func encodeMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Float64(v.InexactFloat64())
}
