package handler

import (
	"time"

	"github.com/AbdulSatterism/party-management/internal/model"
)

// Money is rendered as fixed two-decimal strings so clients never see
// float rounding.

type partyView struct {
	ID           string    `json:"id"`
	HostID       string    `json:"host_id"`
	Name         string    `json:"name"`
	Address      string    `json:"address,omitempty"`
	EventDate    time.Time `json:"event_date"`
	EndsAt       time.Time `json:"ends_at"`
	Fee          string    `json:"fee"`
	Total        int       `json:"total"`
	TotalSits    int       `json:"total_sits"`
	SoldTicket   int       `json:"sold_ticket"`
	Income       string    `json:"income"`
	PayoutOption string    `json:"payout_option"`
	Settlement   string    `json:"settlement_state"`
}

func toPartyView(p model.Party) partyView {
	return partyView{
		ID:           p.ID,
		HostID:       p.HostID,
		Name:         p.Name,
		Address:      p.Address,
		EventDate:    p.EventDate,
		EndsAt:       p.EndsAt,
		Fee:          p.Fee.StringFixed(2),
		Total:        p.Total,
		TotalSits:    p.TotalSits,
		SoldTicket:   p.SoldTicket,
		Income:       p.Income.StringFixed(2),
		PayoutOption: string(p.PayoutOption),
		Settlement:   string(p.Settlement),
	}
}

type paymentView struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	TxnID    string `json:"provider_txn_id"`
	Amount   string `json:"amount"`
	Tickets  int    `json:"tickets"`
	Status   string `json:"status"`
}

func toPaymentView(p model.Payment) paymentView {
	return paymentView{
		ID:       p.ID,
		Provider: string(p.Provider),
		TxnID:    p.ProviderTxnID,
		Amount:   p.Amount.StringFixed(2),
		Tickets:  p.Tickets,
		Status:   string(p.Status),
	}
}

type participantView struct {
	UserID      string    `json:"user_id"`
	Tickets     int       `json:"tickets"`
	Amount      string    `json:"amount"`
	HostShare   string    `json:"host_share"`
	RefundState string    `json:"refund_state"`
	JoinedAt    time.Time `json:"joined_at"`
}

type payoutView struct {
	ID          string    `json:"id"`
	PartyID     string    `json:"party_id"`
	Recipient   string    `json:"recipient_id"`
	Provider    string    `json:"provider"`
	Destination string    `json:"destination"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	Failure     string    `json:"failure_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toHostPayoutView(p model.HostPayout) payoutView {
	return payoutView{
		ID:          p.ID,
		PartyID:     p.PartyID,
		Recipient:   p.HostID,
		Provider:    string(p.Provider),
		Destination: p.Destination,
		Amount:      p.Amount.StringFixed(2),
		Status:      string(p.Status),
		ProviderRef: p.ProviderRef,
		Failure:     p.FailureReason,
		CreatedAt:   p.CreatedAt,
	}
}

func toHostPayoutViews(in []model.HostPayout) []payoutView {
	out := make([]payoutView, 0, len(in))
	for _, p := range in {
		out = append(out, toHostPayoutView(p))
	}
	return out
}

func toUserPayoutView(p model.UserPayout) payoutView {
	return payoutView{
		ID:          p.ID,
		PartyID:     p.PartyID,
		Recipient:   p.UserID,
		Provider:    string(p.Provider),
		Destination: p.Destination,
		Amount:      p.Amount.StringFixed(2),
		Status:      string(p.Status),
		ProviderRef: p.ProviderRef,
		CreatedAt:   p.CreatedAt,
	}
}

type memberView struct {
	UserID string   `json:"user_id"`
	Ticket int      `json:"ticket"`
	Limit  int      `json:"limit"`
	Guests []string `json:"guests"`
}

type groupView struct {
	ID       string       `json:"id"`
	PartyID  string       `json:"party_id"`
	Name     string       `json:"name"`
	IsActive bool         `json:"is_active"`
	Members  []memberView `json:"members"`
}

func toGroupView(g model.MembershipGroup) groupView {
	v := groupView{ID: g.ID, PartyID: g.PartyID, Name: g.Name, IsActive: g.IsActive, Members: []memberView{}}
	for _, m := range g.Members {
		guests := m.Guests
		if guests == nil {
			guests = []string{}
		}
		v.Members = append(v.Members, memberView{UserID: m.UserID, Ticket: m.Ticket, Limit: m.Limit, Guests: guests})
	}
	return v
}
