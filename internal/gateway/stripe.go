package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// Stripe confirms Checkout Sessions and pays hosts and refunds through
// Connect transfers.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

// NewStripe builds an adapter.  backends may be nil to use Stripe's API.
func NewStripe(secretKey, webhookSecret string, backends *stripe.Backends) *Stripe {
	return &Stripe{api: client.New(secretKey, backends), webhookSecret: webhookSecret}
}

func (s *Stripe) Provider() model.Provider { return model.ProviderStripe }

// Capture reads a Checkout Session.  Stripe captures on its own; the
// session only counts once payment_status is paid.
func (s *Stripe) Capture(ctx context.Context, reference string) (Capture, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(reference, params)
	if err != nil {
		return Capture{}, fmt.Errorf("stripe session %s: %w", reference, err)
	}
	out := sessionCapture(sess)
	if !out.Completed {
		return out, fmt.Errorf("stripe session %s payment_status %s: %w", reference, sess.PaymentStatus, ErrPaymentNotCompleted)
	}
	return out, nil
}

func sessionCapture(sess *stripe.CheckoutSession) Capture {
	out := Capture{
		TxnID:     sess.ID,
		Amount:    fromMinorUnits(sess.AmountTotal),
		Completed: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		out.TxnID = sess.PaymentIntent.ID
	}
	if sess.Customer != nil {
		out.PayerID = sess.Customer.ID
	}
	if m, err := ParseCheckoutMetadata(sess.Metadata); err == nil {
		out.Metadata = &m
	}
	return out
}

// Payout transfers funds to a connected account.
func (s *Stripe) Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(toMinorUnits(req.Amount)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.Destination),
		Description: stripe.String(req.Note),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	tr, err := s.api.Transfers.New(params)
	if err != nil {
		return PayoutResult{}, payoutError(err, "stripe transfer to %s", req.Destination)
	}
	return PayoutResult{Reference: tr.ID}, nil
}

// CreateCheckout opens a hosted Checkout Session carrying the join
// metadata on both the session and its payment intent.
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if err := req.Metadata.Validate(); err != nil {
		return Checkout{}, err
	}
	m := req.Metadata
	values := m.Values()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(m.BuyerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(toMinorUnits(req.UnitPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.PartyName),
				},
			},
			Quantity: stripe.Int64(int64(m.Tickets)),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: values,
		},
	}
	params.Context = ctx
	for k, v := range values {
		params.AddMetadata(k, v)
	}
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe create session: %w", err)
	}
	return Checkout{Reference: sess.ID, RedirectURL: sess.URL}, nil
}

// ParseWebhook verifies and decodes a webhook delivery with the adapter's
// signing secret.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	return ParseStripeWebhook(payload, signature, s.webhookSecret)
}
