package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/service"
)

const maxWebhookBody = 64 << 10

// WebhookService applies verified provider events to the ledger.
type WebhookService interface {
	JoinConfirmed(ctx context.Context, ev gateway.CheckoutCompleted) (service.JoinResult, error)
	RecordCheckoutFailed(ctx context.Context, ev gateway.CheckoutFailed) error
}

// WebhookHandler receives Stripe deliveries.  Stripe retries anything that
// is not 2xx, so business rejections are acknowledged with 200 and only
// datastore failures answer 500.
type WebhookHandler struct {
	svc    WebhookService
	secret string
	log    *log.Logger
	parse  func(payload []byte, signature, secret string) (gateway.WebhookEvent, error)
}

func NewWebhookHandler(svc WebhookService, secret string, logger *log.Logger) *WebhookHandler {
	if logger == nil {
		logger = log.New("webhook")
	}
	return &WebhookHandler{svc: svc, secret: secret, log: logger, parse: gateway.ParseStripeWebhook}
}

// Stripe handles POST /v1/webhooks/stripe.
func (h *WebhookHandler) Stripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	ev, err := h.parse(payload, c.Request().Header.Get("Stripe-Signature"), h.secret)
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		h.log.Warnf("stripe webhook rejected: %v", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature", "code": "invalid_signature"})
	case errors.Is(err, model.ErrValidation):
		h.log.Errorf("stripe webhook with unusable metadata: %v", err)
		return ack(c, "rejected", "validation_failed")
	case err != nil:
		h.log.Errorf("stripe webhook: %v", err)
		return badRequest(c, "malformed event")
	}

	ctx := c.Request().Context()
	switch e := ev.(type) {
	case gateway.CheckoutCompleted:
		res, err := h.svc.JoinConfirmed(ctx, e)
		if err != nil {
			return h.reject(c, e.ID, err)
		}
		if res.Replayed {
			return ack(c, "replayed", "")
		}
		return ack(c, "applied", "")
	case gateway.CheckoutFailed:
		if err := h.svc.RecordCheckoutFailed(ctx, e); err != nil {
			return h.reject(c, e.ID, err)
		}
		return ack(c, "recorded", "")
	case gateway.Ignored:
		h.log.Debugf("stripe event %s (%s) ignored: %s", e.ID, e.Type, e.Reason)
		return ack(c, "ignored", "")
	}
	return ack(c, "ignored", "")
}

func (h *WebhookHandler) reject(c echo.Context, eventID string, err error) error {
	if service.KindOf(err) == service.KindFatal {
		h.log.Errorf("stripe event %s failed, provider will retry: %v", eventID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "internal_error"})
	}
	_, code := errorStatus(err)
	h.log.Warnf("stripe event %s rejected: %v", eventID, err)
	return ack(c, "rejected", code)
}

func ack(c echo.Context, result, code string) error {
	body := echo.Map{"received": true, "result": result}
	if code != "" {
		body["code"] = code
	}
	return c.JSON(http.StatusOK, body)
}
