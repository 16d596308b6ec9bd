// Package memory provides an in-process payment gateway for local runs and
// tests. Sessions are paid explicitly with Complete.
package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

var (
	_ payment.Gateway         = (*Gateway)(nil)
	_ payment.WebhookVerifier = (*Gateway)(nil)
)

// Gateway is a thread-safe in-memory payment gateway. Totals apply the
// referenced discount the same way a hosted gateway does: the sum of line
// amounts minus the percent-off rounded to the nearest minor unit.
type Gateway struct {
	mu        sync.Mutex
	baseURL   string
	secret    []byte
	discounts map[string]decimal.Decimal
	sessions  map[string]*payment.Session
	redirects map[string]string // session id -> success URL
}

// New creates a Gateway. baseURL prefixes hosted payment page links and
// secret signs webhook payloads.
func New(baseURL string, secret []byte) *Gateway {
	return &Gateway{
		baseURL:   baseURL,
		secret:    secret,
		discounts: make(map[string]decimal.Decimal),
		sessions:  make(map[string]*payment.Session),
		redirects: make(map[string]string),
	}
}

func (g *Gateway) CreateDiscount(ctx context.Context, percentOff float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &payment.GatewayError{Op: "create discount", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	id := "disc_" + uuid.NewString()
	g.discounts[id] = decimal.NewFromFloat(percentOff)
	return id, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &payment.GatewayError{Op: "create session", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var total int64
	for _, li := range req.LineItems {
		total += li.UnitAmount * li.Quantity
	}
	if req.DiscountID != "" {
		pct, ok := g.discounts[req.DiscountID]
		if !ok {
			return nil, &payment.GatewayError{Op: "create session", Err: errors.Errorf("no such discount %s", req.DiscountID)}
		}
		off := decimal.NewFromInt(total).Mul(pct).Div(decimal.NewFromInt(100)).Round(0).IntPart()
		total -= off
	}

	id := "cs_" + uuid.NewString()
	s := &payment.Session{
		ID:            id,
		URL:           g.baseURL + "/pay/" + id,
		PaymentStatus: payment.StatusUnpaid,
		AmountTotal:   total,
		Metadata:      maps.Clone(req.Metadata),
	}
	g.sessions[id] = s
	g.redirects[id] = strings.ReplaceAll(req.SuccessURL, "{CHECKOUT_SESSION_ID}", id)
	return copySession(s), nil
}

func (g *Gateway) RetrieveSession(ctx context.Context, id string) (*payment.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &payment.GatewayError{Op: "retrieve session", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[id]
	if !ok {
		return nil, errors.Wrapf(payment.ErrSessionNotFound, "session %s", id)
	}
	return copySession(s), nil
}

// Complete marks the session paid and returns a signed
// checkout.session.completed webhook payload for it.
func (g *Gateway) Complete(id string) (payload []byte, signature string, err error) {
	g.mu.Lock()
	s, ok := g.sessions[id]
	if ok {
		s.PaymentStatus = payment.StatusPaid
	}
	g.mu.Unlock()
	if !ok {
		return nil, "", errors.Wrapf(payment.ErrSessionNotFound, "session %s", id)
	}

	payload, signature = g.SignEvent(payment.EventCheckoutCompleted, id)
	return payload, signature, nil
}

// SignEvent builds a webhook payload of the given type for sessionID and
// signs it, without touching session state.
func (g *Gateway) SignEvent(eventType, sessionID string) (payload []byte, signature string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str("evt_" + uuid.NewString())
	e.FieldStart("type")
	e.Str(eventType)
	e.FieldStart("session_id")
	e.Str(sessionID)
	e.ObjEnd()

	payload = e.Bytes()
	return payload, g.sign(payload, time.Now())
}

// PayHandler stands in for the hosted payment page at {baseURL}/pay/{id}. It
// pays the session and redirects the buyer to its success URL.
func (g *Gateway) PayHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, err := g.Complete(id); err != nil {
		http.NotFound(w, r)
		return
	}

	g.mu.Lock()
	target := g.redirects[id]
	g.mu.Unlock()
	if target == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// VerifyWebhook accepts payloads produced by Complete and SignEvent. The
// signature header uses the hosted gateway's "t=<unix>,v1=<hex>" format.
func (g *Gateway) VerifyWebhook(payload []byte, signature string) (*payment.Event, error) {
	if err := webhook.ValidatePayload(payload, signature, string(g.secret)); err != nil {
		return nil, errors.Wrap(payment.ErrInvalidSignature, err.Error())
	}

	var ev payment.Event
	if err := jx.DecodeBytes(payload).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			ev.ID, err = d.Str()
		case "type":
			ev.Type, err = d.Str()
		case "session_id":
			ev.SessionID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	return &ev, nil
}

func (g *Gateway) sign(payload []byte, at time.Time) string {
	mac := webhook.ComputeSignature(at, payload, string(g.secret))
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac))
}

func copySession(s *payment.Session) *payment.Session {
	cp := *s
	cp.Metadata = maps.Clone(s.Metadata)
	return &cp
}
