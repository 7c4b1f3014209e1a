package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
)

// CheckoutRequest opens a provider-hosted payment for tickets.  Amount is
// optional; when set it must equal fee times tickets.
type CheckoutRequest struct {
	UserID   string
	PartyID  string
	Provider model.Provider
	Tickets  int
	Amount   decimal.Decimal
}

type CheckoutResult struct {
	Provider    model.Provider  `json:"provider"`
	Reference   string          `json:"reference"`
	RedirectURL string          `json:"redirect_url"`
	Amount      decimal.Decimal `json:"amount"`
}

// Checkout creates the hosted payment the buyer completes before Join (or
// before the Stripe webhook) admits them.
func (s *LedgerService) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	provider, ok := model.ParseProvider(string(req.Provider))
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: unknown provider %q", model.ErrValidation, req.Provider)
	}
	if req.Tickets < 1 {
		return CheckoutResult{}, fmt.Errorf("%w: tickets must be at least 1", model.ErrValidation)
	}
	if _, err := s.Users.GetByID(ctx, req.UserID); err != nil {
		return CheckoutResult{}, err
	}
	party, err := s.Parties.GetByID(ctx, req.PartyID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := s.checkJoinable(ctx, party, req.UserID, req.Tickets); err != nil {
		return CheckoutResult{}, err
	}
	amount := party.Fee.Mul(decimal.NewFromInt(int64(req.Tickets)))
	if !req.Amount.IsZero() && !req.Amount.Equal(amount) {
		return CheckoutResult{}, fmt.Errorf("%w: amount %s does not match %s", model.ErrValidation, req.Amount.StringFixed(2), amount.StringFixed(2))
	}

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return CheckoutResult{}, err
	}
	cctx, cancel := contextWithTimeout(ctx, s.rules.ProviderTimeout)
	defer cancel()
	co, err := gw.CreateCheckout(cctx, gateway.CheckoutRequest{
		Metadata: gateway.CheckoutMetadata{
			BuyerID: req.UserID,
			PartyID: party.ID,
			Amount:  amount,
			Tickets: req.Tickets,
		},
		PartyName:  party.Name,
		UnitPrice:  party.Fee,
		Currency:   s.rules.Currency,
		SuccessURL: s.urls.Success,
		CancelURL:  s.urls.Cancel,
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", model.ErrPaymentIncomplete, err)
	}
	return CheckoutResult{Provider: provider, Reference: co.Reference, RedirectURL: co.RedirectURL, Amount: amount}, nil
}
