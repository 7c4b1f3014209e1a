package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// PayPal captures approved orders and pays out through PayPal Payouts.
type PayPal struct {
	client *paypal.Client

	mu       sync.Mutex
	hasToken bool
}

// NewPayPal builds an adapter against apiBase (paypal.APIBaseSandBox,
// paypal.APIBaseLive, or a test server).
func NewPayPal(clientID, secret, apiBase string) (*PayPal, error) {
	c, err := paypal.NewClient(clientID, secret, apiBase)
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	return &PayPal{client: c}, nil
}

func (p *PayPal) Provider() model.Provider { return model.ProviderPayPal }

// The SDK refreshes an existing token but never fetches the first one.
func (p *PayPal) ensureToken(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasToken {
		return nil
	}
	if _, err := p.client.GetAccessToken(ctx); err != nil {
		return fmt.Errorf("paypal token: %w", err)
	}
	p.hasToken = true
	return nil
}

// Capture finalizes an approved order.  reference is the PayPal order id.
// PayPal refuses to capture an order twice; if the capture call fails on an
// order that is already COMPLETED, that earlier capture is returned.
func (p *PayPal) Capture(ctx context.Context, reference string) (Capture, error) {
	if err := p.ensureToken(ctx); err != nil {
		return Capture{}, err
	}
	resp, err := p.client.CaptureOrder(ctx, reference, paypal.CaptureOrderRequest{})
	if err != nil {
		order, gerr := p.client.GetOrder(ctx, reference)
		if gerr != nil || order.Status != "COMPLETED" {
			return Capture{}, fmt.Errorf("paypal capture %s: %w", reference, err)
		}
		payments := make([]*paypal.CapturedPayments, 0, len(order.PurchaseUnits))
		for _, unit := range order.PurchaseUnits {
			payments = append(payments, unit.Payments)
		}
		return captured(reference, order.Status, order.Payer, payments)
	}
	payments := make([]*paypal.CapturedPayments, 0, len(resp.PurchaseUnits))
	for _, unit := range resp.PurchaseUnits {
		payments = append(payments, unit.Payments)
	}
	return captured(reference, resp.Status, resp.Payer, payments)
}

// captured sums the captures of an order's purchase units.
func captured(reference, status string, payer *paypal.PayerWithNameAndPhone, payments []*paypal.CapturedPayments) (Capture, error) {
	out := Capture{Completed: status == "COMPLETED"}
	if payer != nil {
		out.PayerID = payer.PayerID
	}
	total := decimal.Zero
	for _, pay := range payments {
		if pay == nil {
			continue
		}
		for _, c := range pay.Captures {
			if out.TxnID == "" {
				out.TxnID = c.ID
			}
			if c.Amount == nil {
				continue
			}
			v, err := decimal.NewFromString(c.Amount.Value)
			if err != nil {
				return Capture{}, fmt.Errorf("paypal capture %s amount %q: %w", reference, c.Amount.Value, err)
			}
			total = total.Add(v)
		}
	}
	out.Amount = total
	if !out.Completed || out.TxnID == "" {
		return out, fmt.Errorf("paypal order %s status %s: %w", reference, status, ErrPaymentNotCompleted)
	}
	return out, nil
}

// Payout sends a single-item payout batch.  PayPal rejects a repeated
// sender_batch_id, so the idempotency key is used as that id.  A failed
// token fetch happens before any money moves and is a plain failure.
func (p *PayPal) Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error) {
	if err := p.ensureToken(ctx); err != nil {
		return PayoutResult{}, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
	resp, err := p.client.CreatePayout(ctx, paypal.Payout{
		SenderBatchHeader: &paypal.SenderBatchHeader{
			SenderBatchID: req.IdempotencyKey,
			EmailSubject:  req.Subject,
		},
		Items: []paypal.PayoutItem{{
			RecipientType: "EMAIL",
			Receiver:      req.Destination,
			Amount: &paypal.AmountPayout{
				Currency: strings.ToUpper(req.Currency),
				Value:    req.Amount.StringFixed(2),
			},
			Note:         req.Note,
			SenderItemID: req.IdempotencyKey,
		}},
	})
	if err != nil {
		return PayoutResult{}, payoutError(err, "paypal payout to %s", req.Destination)
	}
	// Accepted without a batch id: the batch may exist.
	if resp.BatchHeader == nil || resp.BatchHeader.PayoutBatchID == "" {
		return PayoutResult{}, fmt.Errorf("%w: %w: paypal payout returned no batch id", ErrPayoutFailed, ErrPayoutUnconfirmed)
	}
	return PayoutResult{Reference: resp.BatchHeader.PayoutBatchID}, nil
}

// CreateCheckout opens an order for the buyer to approve.  The order's
// custom_id carries buyer, party and ticket count.
func (p *PayPal) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if err := req.Metadata.Validate(); err != nil {
		return Checkout{}, err
	}
	if err := p.ensureToken(ctx); err != nil {
		return Checkout{}, err
	}
	m := req.Metadata
	order, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture, []paypal.PurchaseUnitRequest{{
		ReferenceID: m.PartyID,
		CustomID:    fmt.Sprintf("%s|%s|%d", m.BuyerID, m.PartyID, m.Tickets),
		Description: fmt.Sprintf("%d ticket(s) for %s", m.Tickets, req.PartyName),
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    m.Amount.StringFixed(2),
		},
	}}, nil, &paypal.ApplicationContext{
		ReturnURL: req.SuccessURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("paypal create order: %w", err)
	}
	out := Checkout{Reference: order.ID}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			out.RedirectURL = l.Href
			break
		}
	}
	if out.RedirectURL == "" {
		return Checkout{}, fmt.Errorf("paypal order %s has no approve link", order.ID)
	}
	return out, nil
}
