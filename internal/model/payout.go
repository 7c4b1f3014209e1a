package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus tracks an outbound transfer.  Rows are written PENDING
// before the provider is called so that a crash between the provider call
// and the local update stays visible.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutCompleted PayoutStatus = "COMPLETED"
	PayoutFailed    PayoutStatus = "FAILED"
)

// HostPayout is the audit row for one settlement of a party's income.
type HostPayout struct {
	ID             string          // host_payouts.id
	PartyID        string          // host_payouts.party_id
	HostID         string          // host_payouts.host_id
	Provider       Provider        // host_payouts.provider
	Destination    string          // host_payouts.destination (PayPal email or Stripe account)
	Amount         decimal.Decimal // host_payouts.amount
	Status         PayoutStatus    // host_payouts.status
	ProviderRef    string          // host_payouts.provider_ref (batch or transfer id)
	IdempotencyKey string          // host_payouts.idempotency_key
	Note           string          // host_payouts.note
	FailureReason  string          // host_payouts.failure_reason
	CreatedAt      time.Time       // host_payouts.created_at
	UpdatedAt      time.Time       // host_payouts.updated_at
}

// UserPayout is the audit row for a refund paid to a leaving participant.
// It is only written once the provider call has succeeded.
type UserPayout struct {
	ID             string          // user_payouts.id
	PartyID        string          // user_payouts.party_id
	UserID         string          // user_payouts.user_id
	PaymentID      string          // user_payouts.payment_id
	Provider       Provider        // user_payouts.provider
	Destination    string          // user_payouts.destination
	Amount         decimal.Decimal // user_payouts.amount
	Status         PayoutStatus    // user_payouts.status
	ProviderRef    string          // user_payouts.provider_ref
	IdempotencyKey string          // user_payouts.idempotency_key
	Note           string          // user_payouts.note
	CreatedAt      time.Time       // user_payouts.created_at
}
