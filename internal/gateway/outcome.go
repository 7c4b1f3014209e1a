package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v76"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// ErrPayoutUnconfirmed marks a payout whose request may have been applied
// by the provider.  It is always wrapped together with ErrPayoutFailed.
var ErrPayoutUnconfirmed = model.ErrPayoutUnconfirmed

// OutcomeUnknown reports whether err leaves the payout's result open:
// a timeout, a transport failure, a provider 5xx, or a duplicate-key
// rejection that points at an earlier attempt.  Only a definite rejection
// makes it safe to put the money back and try again under a new key.
func OutcomeUnknown(err error) bool {
	return errors.Is(err, ErrPayoutUnconfirmed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// payoutError wraps a provider error from a payout call, tagging it
// unconfirmed unless the provider definitely refused it.
func payoutError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if rejected(err) {
		return fmt.Errorf("%w: %s: %v", ErrPayoutFailed, msg, err)
	}
	return fmt.Errorf("%w: %w: %s: %v", ErrPayoutFailed, ErrPayoutUnconfirmed, msg, err)
}

// rejected is true for 4xx answers that mean nothing was paid.  409 is
// excluded because Stripe uses it for a request still in flight under the
// same idempotency key.
func rejected(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return clientError(se.HTTPStatusCode)
	}
	var pe *paypal.ErrorResponse
	if errors.As(err, &pe) {
		if pe.Response == nil || !clientError(pe.Response.StatusCode) {
			return false
		}
		return !paypalDuplicate(pe)
	}
	return false
}

func clientError(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusConflict
}

// paypalDuplicate spots the rejection of a reused sender_batch_id, which
// means an earlier request with this key reached PayPal.
func paypalDuplicate(pe *paypal.ErrorResponse) bool {
	texts := []string{pe.Name, pe.Message}
	for _, d := range pe.Details {
		texts = append(texts, d.Issue)
	}
	for _, t := range texts {
		t = strings.ToUpper(t)
		if strings.Contains(t, "DUPLICATE") || strings.Contains(t, "SENDER_BATCH_ID") {
			return true
		}
	}
	return false
}
