package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies an external payment rail.
type Provider string

const (
	ProviderPayPal Provider = "PAYPAL"
	ProviderStripe Provider = "STRIPE"
)

// ParseProvider normalises a provider name coming from a request or a
// database column.  It reports false for unknown providers.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderPayPal, "paypal", "PayPal":
		return ProviderPayPal, true
	case ProviderStripe, "stripe", "Stripe":
		return ProviderStripe, true
	}
	return "", false
}

// SettlementState tracks where a party's accrued host income sits in the
// payout cycle: ACCRUING -> DUE -> PAID -> ACCRUING.
type SettlementState string

const (
	SettlementAccruing SettlementState = "ACCRUING"
	SettlementDue      SettlementState = "DUE"
	SettlementPaid     SettlementState = "PAID"
)

// Party is one ticketed event and its seat/income ledger.  It mirrors a
// row in the `parties` table.
//
// Fields:
//
//	ID              – primary key (uuid).
//	HostID          – user who created the party; immutable.
//	Name            – display name, reused as the chat group name.
//	Address         – free-form venue address.
//	EventDate       – start of the event (UTC); drives leave cutoff and sweep window.
//	EndsAt          – end of the event (UTC).
//	Fee             – price of one ticket.
//	Total           – capacity captured at creation.
//	TotalSits       – remaining sellable seats; never negative.
//	SoldTicket      – tickets currently sold.
//	Income          – host earnings accrued and not yet paid out.
//	PayoutOption    – rail used to pay the host.
//	PayPalAccount   – host PayPal email (PAYPAL payout option).
//	StripeAccountID – host Stripe connected account (STRIPE payout option).
//	Settlement      – explicit settlement state.
type Party struct {
	ID              string          // parties.id
	HostID          string          // parties.host_id
	Name            string          // parties.name
	Address         string          // parties.address
	EventDate       time.Time       // parties.event_date
	EndsAt          time.Time       // parties.ends_at
	Fee             decimal.Decimal // parties.fee
	Total           int             // parties.total
	TotalSits       int             // parties.total_sits
	SoldTicket      int             // parties.sold_ticket
	Income          decimal.Decimal // parties.income
	PayoutOption    Provider        // parties.payout_option
	PayPalAccount   string          // parties.paypal_account
	StripeAccountID string          // parties.stripe_account_id
	Settlement      SettlementState // parties.settlement_state
	CreatedAt       time.Time       // parties.created_at
	UpdatedAt       time.Time       // parties.updated_at
}

// PayoutDestination returns the host destination for the configured payout
// option.  ok is false when the host has not configured one.
func (p Party) PayoutDestination() (string, bool) {
	switch p.PayoutOption {
	case ProviderPayPal:
		return p.PayPalAccount, p.PayPalAccount != ""
	case ProviderStripe:
		return p.StripeAccountID, p.StripeAccountID != ""
	}
	return "", false
}

// SeatsBalanced reports whether the seat counters still add up to the
// captured capacity.
func (p Party) SeatsBalanced() bool {
	return p.TotalSits+p.SoldTicket == p.Total
}

// RefundState marks whether a participant's refund call is in flight.
type RefundState string

const (
	RefundNone    RefundState = "NONE"
	RefundPending RefundState = "PENDING"
)

// Participant records one buyer's admission to a party.  The host share
// credited at join time is stored so that leaving reverses exactly that
// amount.  Rows live in `party_participants`; (party_id, user_id) is the
// primary key, which is what forbids a double join.
type Participant struct {
	PartyID     string          // party_participants.party_id
	UserID      string          // party_participants.user_id
	Tickets     int             // party_participants.tickets
	Amount      decimal.Decimal // party_participants.amount
	HostShare   decimal.Decimal // party_participants.host_share
	PaymentID   string          // party_participants.payment_id
	RefundState RefundState     // party_participants.refund_state
	RefundKey   string          // party_participants.refund_key
	JoinedAt    time.Time       // party_participants.joined_at
	UpdatedAt   time.Time       // party_participants.updated_at
}
