package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/service"
)

// PartyService is the slice of the ledger the party endpoints use.
type PartyService interface {
	CreateParty(ctx context.Context, hostID string, in service.CreatePartyInput) (model.Party, error)
	Availability(ctx context.Context, partyID string) (service.Availability, error)
	PartyLedger(ctx context.Context, caller service.Identity, partyID string) (service.LedgerView, error)
	Checkout(ctx context.Context, req service.CheckoutRequest) (service.CheckoutResult, error)
	Join(ctx context.Context, req service.JoinRequest) (service.JoinResult, error)
	Leave(ctx context.Context, req service.LeaveRequest) (service.LeaveResult, error)
	Roster(ctx context.Context, caller service.Identity, partyID string) (model.MembershipGroup, error)
	AddGuest(ctx context.Context, req service.AddGuestRequest) (model.MembershipGroup, error)
}

// PartyHandler serves the buyer and host endpoints.  JWTAuth has run
// before every method except Availability.
type PartyHandler struct {
	svc PartyService
}

func NewPartyHandler(svc PartyService) *PartyHandler {
	if svc == nil {
		panic("nil service passed to NewPartyHandler")
	}
	return &PartyHandler{svc: svc}
}

type createPartyBody struct {
	Name            string          `json:"name"`
	Address         string          `json:"address"`
	EventDate       time.Time       `json:"event_date"`
	EndsAt          time.Time       `json:"ends_at"`
	Fee             decimal.Decimal `json:"fee"`
	Seats           int             `json:"seats"`
	PayoutOption    string          `json:"payout_option"`
	PayPalAccount   string          `json:"paypal_account"`
	StripeAccountID string          `json:"stripe_account_id"`
}

// Create handles POST /v1/parties.
func (h *PartyHandler) Create(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var body createPartyBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	option, ok := model.ParseProvider(body.PayoutOption)
	if !ok {
		return badRequest(c, "payout_option must be PAYPAL or STRIPE")
	}
	p, err := h.svc.CreateParty(c.Request().Context(), who.UserID, service.CreatePartyInput{
		Name:            body.Name,
		Address:         body.Address,
		EventDate:       body.EventDate,
		EndsAt:          body.EndsAt,
		Fee:             body.Fee,
		Seats:           body.Seats,
		PayoutOption:    option,
		PayPalAccount:   strings.TrimSpace(body.PayPalAccount),
		StripeAccountID: strings.TrimSpace(body.StripeAccountID),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toPartyView(p))
}

// Availability handles GET /v1/parties/:id/availability.
func (h *PartyHandler) Availability(c echo.Context) error {
	a, err := h.svc.Availability(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"party_id":    a.PartyID,
		"name":        a.Name,
		"event_date":  a.EventDate,
		"fee":         a.Fee.StringFixed(2),
		"total":       a.Total,
		"total_sits":  a.TotalSits,
		"sold_ticket": a.SoldTicket,
	})
}

// Ledger handles GET /v1/parties/:id/ledger.
func (h *PartyHandler) Ledger(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	view, err := h.svc.PartyLedger(c.Request().Context(), who, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	participants := make([]participantView, 0, len(view.Participants))
	for _, p := range view.Participants {
		participants = append(participants, participantView{
			UserID:      p.UserID,
			Tickets:     p.Tickets,
			Amount:      p.Amount.StringFixed(2),
			HostShare:   p.HostShare.StringFixed(2),
			RefundState: string(p.RefundState),
			JoinedAt:    p.JoinedAt,
		})
	}
	refunds := make([]payoutView, 0, len(view.UserPayouts))
	for _, p := range view.UserPayouts {
		refunds = append(refunds, toUserPayoutView(p))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"party":          toPartyView(view.Party),
		"participants":   participants,
		"host_payouts":   toHostPayoutViews(view.HostPayouts),
		"refunds":        refunds,
		"seats_balanced": view.SeatsBalanced,
	})
}

type checkoutBody struct {
	Provider string          `json:"provider"`
	Tickets  int             `json:"tickets"`
	Amount   decimal.Decimal `json:"amount"`
}

// Checkout handles POST /v1/parties/:id/checkout.
func (h *PartyHandler) Checkout(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var body checkoutBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.svc.Checkout(c.Request().Context(), service.CheckoutRequest{
		UserID:   who.UserID,
		PartyID:  c.Param("id"),
		Provider: model.Provider(body.Provider),
		Tickets:  body.Tickets,
		Amount:   body.Amount,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"provider":     res.Provider,
		"reference":    res.Reference,
		"redirect_url": res.RedirectURL,
		"amount":       res.Amount.StringFixed(2),
	})
}

type joinBody struct {
	Provider  string `json:"provider"`
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
	Tickets   int    `json:"tickets"`
}

// Join handles POST /v1/parties/:id/join.  PayPal clients send the
// approved order_id; a replayed confirmation answers 200 instead of 201.
func (h *PartyHandler) Join(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var body joinBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	provider := model.Provider(body.Provider)
	if provider == "" {
		provider = model.ProviderPayPal
	}
	ref := body.Reference
	if ref == "" {
		ref = body.OrderID
	}
	res, err := h.svc.Join(c.Request().Context(), service.JoinRequest{
		UserID:    who.UserID,
		PartyID:   c.Param("id"),
		Provider:  provider,
		Reference: ref,
		Tickets:   body.Tickets,
	})
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, echo.Map{
		"party":    toPartyView(res.Party),
		"payment":  toPaymentView(res.Payment),
		"replayed": res.Replayed,
	})
}

// Leave handles POST /v1/parties/:id/leave.
func (h *PartyHandler) Leave(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.svc.Leave(c.Request().Context(), service.LeaveRequest{UserID: who.UserID, PartyID: c.Param("id")})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"party":  toPartyView(res.Party),
		"refund": toUserPayoutView(res.Payout),
	})
}

// Group handles GET /v1/parties/:id/group.
func (h *PartyHandler) Group(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	g, err := h.svc.Roster(c.Request().Context(), who, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toGroupView(g))
}

// AddGuest handles POST /v1/groups/:id/guests.
func (h *PartyHandler) AddGuest(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		GuestID string `json:"guest_id"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	g, err := h.svc.AddGuest(c.Request().Context(), service.AddGuestRequest{
		GroupID:  c.Param("id"),
		MemberID: who.UserID,
		GuestID:  strings.TrimSpace(body.GuestID),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toGroupView(g))
}
