package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/service"
)

type stubParties struct {
	join     func(service.JoinRequest) (service.JoinResult, error)
	leave    func(service.LeaveRequest) (service.LeaveResult, error)
	ledger   func(service.Identity) (service.LedgerView, error)
	lastJoin service.JoinRequest
}

func (s *stubParties) CreateParty(_ context.Context, hostID string, in service.CreatePartyInput) (model.Party, error) {
	return model.Party{ID: "p1", HostID: hostID, Name: in.Name, Fee: in.Fee, Total: in.Seats, TotalSits: in.Seats,
		PayoutOption: in.PayoutOption, Settlement: model.SettlementAccruing}, nil
}

func (s *stubParties) Availability(_ context.Context, id string) (service.Availability, error) {
	if id != "p1" {
		return service.Availability{}, model.ErrPartyNotFound
	}
	return service.Availability{PartyID: id, Fee: decimal.RequireFromString("25"), Total: 10, TotalSits: 8, SoldTicket: 2}, nil
}

func (s *stubParties) PartyLedger(_ context.Context, who service.Identity, _ string) (service.LedgerView, error) {
	return s.ledger(who)
}

func (s *stubParties) Checkout(context.Context, service.CheckoutRequest) (service.CheckoutResult, error) {
	return service.CheckoutResult{}, errors.New("not used")
}

func (s *stubParties) Join(_ context.Context, req service.JoinRequest) (service.JoinResult, error) {
	s.lastJoin = req
	return s.join(req)
}

func (s *stubParties) Leave(_ context.Context, req service.LeaveRequest) (service.LeaveResult, error) {
	return s.leave(req)
}

func (s *stubParties) Roster(context.Context, service.Identity, string) (model.MembershipGroup, error) {
	return model.MembershipGroup{ID: "g1", PartyID: "p1", Members: []model.Member{{UserID: "host"}}}, nil
}

func (s *stubParties) AddGuest(context.Context, service.AddGuestRequest) (model.MembershipGroup, error) {
	return model.MembershipGroup{}, model.ErrGuestLimitReached
}

// newCtx builds an echo context for path /v1/parties/:id/... with the
// given caller.  An empty user leaves the request unauthenticated.
func newCtx(method, body, user string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("p1")
	if user != "" {
		c.Set("user_id", user)
		c.Set("role", model.RoleUser)
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestJoinEndpoint(t *testing.T) {
	party := model.Party{ID: "p1", Fee: decimal.RequireFromString("25"), TotalSits: 8, SoldTicket: 2, Income: decimal.RequireFromString("42.5")}
	stub := &stubParties{join: func(req service.JoinRequest) (service.JoinResult, error) {
		if req.Reference == "DUP" {
			return service.JoinResult{Party: party, Replayed: true}, nil
		}
		return service.JoinResult{Party: party, Payment: model.Payment{ID: "pay1", Amount: decimal.RequireFromString("50")}}, nil
	}}
	h := NewPartyHandler(stub)

	c, rec := newCtx(http.MethodPost, `{"order_id":"ORDER-1","tickets":2}`, "buyer")
	if err := h.Join(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if stub.lastJoin.Provider != model.ProviderPayPal || stub.lastJoin.Reference != "ORDER-1" || stub.lastJoin.UserID != "buyer" {
		t.Fatalf("request = %+v", stub.lastJoin)
	}
	body := decode(t, rec)
	if got := body["party"].(map[string]any)["income"]; got != "42.50" {
		t.Fatalf("income = %v", got)
	}
	if got := body["payment"].(map[string]any)["amount"]; got != "50.00" {
		t.Fatalf("amount = %v", got)
	}

	c, rec = newCtx(http.MethodPost, `{"provider":"stripe","reference":"DUP","tickets":2}`, "buyer")
	if err := h.Join(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || decode(t, rec)["replayed"] != true {
		t.Fatalf("replay status = %d: %s", rec.Code, rec.Body)
	}

	c, rec = newCtx(http.MethodPost, `{}`, "")
	if err := h.Join(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrInsufficientCapacity, http.StatusConflict, "insufficient_capacity"},
		{model.ErrAlreadyJoined, http.StatusConflict, "already_joined"},
		{model.ErrTooCloseToEvent, http.StatusUnprocessableEntity, "too_close_to_event"},
		{fmt.Errorf("%w: capture", model.ErrPaymentIncomplete), http.StatusPaymentRequired, "payment_incomplete"},
		{fmt.Errorf("%w: declined", model.ErrPayoutFailed), http.StatusBadGateway, "payout_failed"},
		{model.ErrPartyNotFound, http.StatusNotFound, "party_not_found"},
		{fmt.Errorf("%w: missing", model.ErrGroupInconsistency), http.StatusInternalServerError, "group_inconsistency"},
		{fmt.Errorf("%w: x", model.ErrValidation), http.StatusBadRequest, "validation_failed"},
		{errors.New("driver: bad connection"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			stub := &stubParties{leave: func(service.LeaveRequest) (service.LeaveResult, error) {
				return service.LeaveResult{}, tc.err
			}}
			c, rec := newCtx(http.MethodPost, "", "buyer")
			if err := NewPartyHandler(stub).Leave(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			body := decode(t, rec)
			if body["code"] != tc.code {
				t.Fatalf("code = %v, want %s", body["code"], tc.code)
			}
			if tc.code == "internal_error" && body["error"] != "internal error" {
				t.Fatalf("internal detail leaked: %v", body["error"])
			}
		})
	}
}

func TestLedgerEndpointForbidden(t *testing.T) {
	stub := &stubParties{ledger: func(who service.Identity) (service.LedgerView, error) {
		return service.LedgerView{}, fmt.Errorf("%w: not the host", model.ErrForbidden)
	}}
	c, rec := newCtx(http.MethodGet, "", "buyer")
	if err := NewPartyHandler(stub).Ledger(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreatePartyEndpoint(t *testing.T) {
	body := `{"name":"Rooftop","event_date":"2026-05-01T20:00:00Z","fee":"25.00","seats":10,"payout_option":"paypal","paypal_account":"h@x.test"}`
	c, rec := newCtx(http.MethodPost, body, "host")
	if err := NewPartyHandler(&stubParties{}).Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	if got["fee"] != "25.00" || got["total_sits"] != float64(10) || got["payout_option"] != "PAYPAL" {
		t.Fatalf("body = %v", got)
	}

	c, rec = newCtx(http.MethodPost, `{"name":"x","payout_option":"cash"}`, "host")
	if err := NewPartyHandler(&stubParties{}).Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad option status = %d", rec.Code)
	}
}

func TestAvailabilityAndGuests(t *testing.T) {
	h := NewPartyHandler(&stubParties{})
	c, rec := newCtx(http.MethodGet, "", "")
	if err := h.Availability(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || decode(t, rec)["total_sits"] != float64(8) {
		t.Fatalf("availability = %d %s", rec.Code, rec.Body)
	}

	c, rec = newCtx(http.MethodPost, `{"guest_id":"g2"}`, "buyer")
	if err := h.AddGuest(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusConflict || decode(t, rec)["code"] != "guest_limit_reached" {
		t.Fatalf("add guest = %d %s", rec.Code, rec.Body)
	}
}

type stubWebhooks struct {
	completed []gateway.CheckoutCompleted
	joinErr   error
	failed    int
}

func (s *stubWebhooks) JoinConfirmed(_ context.Context, ev gateway.CheckoutCompleted) (service.JoinResult, error) {
	s.completed = append(s.completed, ev)
	return service.JoinResult{}, s.joinErr
}

func (s *stubWebhooks) RecordCheckoutFailed(context.Context, gateway.CheckoutFailed) error {
	s.failed++
	return nil
}

func TestStripeWebhook(t *testing.T) {
	tests := []struct {
		name     string
		event    gateway.WebhookEvent
		parseErr error
		joinErr  error
		status   int
		result   string
	}{
		{"bad signature", nil, fmt.Errorf("%w: mismatch", gateway.ErrInvalidSignature), nil, http.StatusBadRequest, ""},
		{"bad metadata", nil, fmt.Errorf("%w: buyerId", model.ErrValidation), nil, http.StatusOK, "rejected"},
		{"completed", gateway.CheckoutCompleted{ID: "evt_1"}, nil, nil, http.StatusOK, "applied"},
		{"business rejection", gateway.CheckoutCompleted{ID: "evt_2"}, nil, model.ErrInsufficientCapacity, http.StatusOK, "rejected"},
		{"datastore down", gateway.CheckoutCompleted{ID: "evt_3"}, nil, errors.New("connection refused"), http.StatusInternalServerError, ""},
		{"async failure", gateway.CheckoutFailed{ID: "evt_4"}, nil, nil, http.StatusOK, "recorded"},
		{"ignored", gateway.Ignored{ID: "evt_5", Type: "charge.refunded"}, nil, nil, http.StatusOK, "ignored"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubWebhooks{joinErr: tc.joinErr}
			h := NewWebhookHandler(svc, "whsec_test", nil)
			h.parse = func([]byte, string, string) (gateway.WebhookEvent, error) { return tc.event, tc.parseErr }

			c, rec := newCtx(http.MethodPost, `{}`, "")
			if err := h.Stripe(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body)
			}
			if tc.result != "" && decode(t, rec)["result"] != tc.result {
				t.Fatalf("body = %s", rec.Body)
			}
		})
	}
}

type stubSettlements struct{}

func (stubSettlements) Sweep(context.Context) (service.SweepReport, error) {
	return service.SweepReport{
		StartedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Candidates: 1,
		Paid:       []model.HostPayout{{ID: "hp1", PartyID: "p1", Amount: decimal.RequireFromString("120"), Status: model.PayoutCompleted}},
	}, nil
}

func (stubSettlements) PendingPayouts(context.Context) ([]model.HostPayout, error) { return nil, nil }

func TestRunSettlement(t *testing.T) {
	c, rec := newCtx(http.MethodPost, "", "admin")
	if err := NewAdminHandler(stubSettlements{}).RunSettlement(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	paid := body["paid"].([]any)
	if len(paid) != 1 || paid[0].(map[string]any)["amount"] != "120.00" {
		t.Fatalf("paid = %v", paid)
	}
	if failed := body["failed"].([]any); len(failed) != 0 {
		t.Fatalf("failed = %v", failed)
	}

	c, rec = newCtx(http.MethodGet, "", "admin")
	if err := NewAdminHandler(stubSettlements{}).PendingPayouts(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"payouts":[]`) {
		t.Fatalf("pending = %d %s", rec.Code, rec.Body)
	}
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	for _, tc := range []struct {
		db     Pinger
		status int
	}{
		{nil, http.StatusOK},
		{pinger{}, http.StatusOK},
		{pinger{errors.New("down")}, http.StatusServiceUnavailable},
	} {
		c, rec := newCtx(http.MethodGet, "", "")
		if err := Health(tc.db)(c); err != nil {
			t.Fatal(err)
		}
		if rec.Code != tc.status {
			t.Errorf("status = %d, want %d", rec.Code, tc.status)
		}
	}
}
