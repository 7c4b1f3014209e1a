// Package gateway adapts the PayPal and Stripe SDKs to one capability
// interface: capture a buyer's payment, push a payout, and open a hosted
// checkout.  Adapters hold no business rules and never retry; callers own
// timeouts and retry policy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/model"
)

var (
	// ErrPaymentNotCompleted is returned when the provider reports anything
	// other than a completed capture.
	ErrPaymentNotCompleted = model.ErrPaymentIncomplete
	// ErrPayoutFailed wraps every provider error raised by Payout.
	ErrPayoutFailed = model.ErrPayoutFailed
	// ErrProviderUnavailable means no adapter is configured for a provider.
	ErrProviderUnavailable = errors.New("payment provider not configured")
	// ErrInvalidSignature rejects webhook payloads that fail verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Capture is the provider's view of a finalized payment.
type Capture struct {
	TxnID     string
	PayerID   string
	Amount    decimal.Decimal
	Completed bool
	// Metadata is set when the provider echoed checkout metadata back.
	Metadata *CheckoutMetadata
}

type PayoutRequest struct {
	Destination    string // PayPal email or Stripe connected account id
	Amount         decimal.Decimal
	Currency       string
	Subject        string
	Note           string
	IdempotencyKey string
}

type PayoutResult struct {
	Reference string // PayPal payout batch id or Stripe transfer id
}

type CheckoutRequest struct {
	Metadata   CheckoutMetadata
	PartyName  string
	UnitPrice  decimal.Decimal
	Currency   string
	SuccessURL string
	CancelURL  string
}

// Checkout is a provider-hosted payment page.  Reference is what the
// client later confirms with: a PayPal order id or a Stripe session id.
type Checkout struct {
	Reference   string
	RedirectURL string
}

// Gateway is implemented once per payment rail.
type Gateway interface {
	Provider() model.Provider
	Capture(ctx context.Context, reference string) (Capture, error)
	Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
}

// Registry holds the adapters built at startup.
type Registry struct {
	gateways map[model.Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[model.Provider]Gateway, len(gateways))}
	for _, g := range gateways {
		if g != nil {
			r.gateways[g.Provider()] = g
		}
	}
	return r
}

// Get returns the adapter for p.
func (r *Registry) Get(p model.Provider) (Gateway, error) {
	if r != nil {
		if g, ok := r.gateways[p]; ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", p, ErrProviderUnavailable)
}

// Providers lists configured providers in a stable order.
func (r *Registry) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
