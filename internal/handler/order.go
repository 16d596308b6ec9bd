package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// GET /orders/{id}
//
// Customers only see their own orders; other orders are reported as missing.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if id, _ := auth.IdentityFrom(r.Context()); !id.IsAdmin() && id.UserID != o.UserID {
		fail(w, r, order.ErrNotFound)
		return
	}

	writeOK(w, "Order retrieved successfully!", func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

// POST /orders/{id}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var raw string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	to, err := order.ParseStatus(raw)
	if err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), to)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeOK(w, "Order status updated successfully!", func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

// GET /analytics
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.orders.Report(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	writeOK(w, "Analytics data retrieved successfully!", func(e *jx.Encoder) {
		e.FieldStart("analyticsData")
		e.ObjStart()
		e.FieldStart("totalSales")
		e.Int64(report.Total.Orders)
		encodeMoney(e, "totalRevenue", report.Total.Revenue)
		e.ObjEnd()

		e.FieldStart("dailySalesData")
		e.ArrStart()
		for _, d := range report.Daily {
			e.ObjStart()
			e.FieldStart("date")
			e.Str(d.Day.Format(time.DateOnly))
			e.FieldStart("sales")
			e.Int64(d.Orders)
			encodeMoney(e, "revenue", d.Revenue)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("products")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		encodeMoney(e, "price", l.UnitPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	encodeMoney(e, "subtotal", o.Subtotal())
	encodeMoney(e, "discount", o.Discount)
	encodeMoney(e, "totalAmount", o.Total())
	e.FieldStart("sessionId")
	e.Str(o.GatewaySessionID)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
