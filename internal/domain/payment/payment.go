// Package payment defines the port to the external payment gateway.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrSessionNotFound is returned when the gateway has no session with the
	// requested id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSignature is returned for webhook payloads that fail
	// signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// EventCheckoutCompleted is the gateway event emitted once a checkout
// session's payment completes.
const EventCheckoutCompleted = "checkout.session.completed"

// Status is the gateway-reported payment status of a checkout session.
type Status string

const (
	StatusPaid              Status = "paid"
	StatusUnpaid            Status = "unpaid"
	StatusNoPaymentRequired Status = "no_payment_required"
)

// LineItem is a gateway-ready line with amounts in minor units.
type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
}

// SessionRequest describes a checkout session to create.
type SessionRequest struct {
	LineItems []LineItem
	// DiscountID references a gateway discount object. Empty means no discount.
	DiscountID string
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// Session is the gateway's view of a checkout session.
type Session struct {
	ID            string
	URL           string
	PaymentStatus Status
	// AmountTotal is the gateway's authoritative total in minor units.
	AmountTotal int64
	Metadata    map[string]string
}

// Gateway is the payment gateway consumed by checkout and settlement.
type Gateway interface {
	// CreateDiscount creates a percent-off discount object and returns its id.
	CreateDiscount(ctx context.Context, percentOff float64) (string, error)
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	// RetrieveSession returns ErrSessionNotFound for unknown ids.
	RetrieveSession(ctx context.Context, id string) (*Session, error)
}

// GatewayError wraps transport and API failures of the gateway.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Event is a verified gateway notification.
type Event struct {
	ID   string
	Type string
	// SessionID is set for checkout session events.
	SessionID string
}

// WebhookVerifier authenticates and parses gateway webhook deliveries.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}
