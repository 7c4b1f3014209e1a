package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookEvent is one verified provider delivery.  The concrete type is
// one of CheckoutCompleted, CheckoutFailed or Ignored.
type WebhookEvent interface {
	EventID() string
	webhookEvent()
}

// CheckoutCompleted confirms that a checkout's payment settled.
type CheckoutCompleted struct {
	ID        string
	Type      string
	SessionID string
	TxnID     string
	Amount    decimal.Decimal
	Metadata  CheckoutMetadata
}

// CheckoutFailed reports that an asynchronous payment did not settle.
type CheckoutFailed struct {
	ID        string
	Type      string
	SessionID string
	Metadata  CheckoutMetadata
	Reason    string
}

// Ignored is a verified event the ledger has no use for.
type Ignored struct {
	ID     string
	Type   string
	Reason string
}

func (e CheckoutCompleted) EventID() string { return e.ID }
func (e CheckoutFailed) EventID() string    { return e.ID }
func (e Ignored) EventID() string           { return e.ID }

func (CheckoutCompleted) webhookEvent() {}
func (CheckoutFailed) webhookEvent()    {}
func (Ignored) webhookEvent()           {}

// Stripe event types the ledger acts on.
const (
	stripeSessionCompleted    = "checkout.session.completed"
	stripeAsyncPaymentSuccess = "checkout.session.async_payment_succeeded"
	stripeAsyncPaymentFailed  = "checkout.session.async_payment_failed"
	stripeSessionExpired      = "checkout.session.expired"
)

// ParseStripeWebhook verifies the Stripe-Signature header against secret and
// decodes the event.  Metadata is validated here, so a CheckoutCompleted
// always carries usable buyer, party, amount and ticket values.
func ParseStripeWebhook(payload []byte, signature, secret string) (WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	typ := string(ev.Type)

	switch typ {
	case stripeSessionCompleted, stripeAsyncPaymentSuccess, stripeAsyncPaymentFailed, stripeSessionExpired:
	default:
		return Ignored{ID: ev.ID, Type: typ, Reason: "unhandled event type"}, nil
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data", ev.ID)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session in %s: %w", ev.ID, err)
	}
	meta, err := ParseCheckoutMetadata(sess.Metadata)
	if err != nil {
		return nil, fmt.Errorf("stripe event %s: %w", ev.ID, err)
	}

	switch typ {
	case stripeAsyncPaymentFailed, stripeSessionExpired:
		return CheckoutFailed{ID: ev.ID, Type: typ, SessionID: sess.ID, Metadata: meta, Reason: typ}, nil
	}
	// A completed session paid by a delayed method settles later through
	// async_payment_succeeded.
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return Ignored{ID: ev.ID, Type: typ, Reason: "payment status " + string(sess.PaymentStatus)}, nil
	}
	c := sessionCapture(&sess)
	return CheckoutCompleted{
		ID:        ev.ID,
		Type:      typ,
		SessionID: sess.ID,
		TxnID:     c.TxnID,
		Amount:    c.Amount,
		Metadata:  meta,
	}, nil
}
