package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/auth"
)

// POST /coupons/validate
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var code string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err == nil && code == "" {
		err = errors.Wrap(errMalformedBody, "code is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	id, _ := auth.IdentityFrom(r.Context())
	c, err := h.coupons.Validate(r.Context(), code, id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeOK(w, "Valid coupon!", func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Str(c.ID)
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("discountPercentage")
		e.Float64(c.DiscountPercentage.InexactFloat64())
	})
}
