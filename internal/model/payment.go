package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle of a capture attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment records one capture attempt for a (buyer, party) pair.
//
// Fields:
//
//	ID             – primary key (uuid).
//	UserID         – buyer.
//	PartyID        – party the tickets were bought for.
//	Provider       – PAYPAL or STRIPE.
//	ProviderTxnID  – provider transaction id; unique per provider.
//	Amount         – amount charged.
//	Tickets        – tickets bought by this payment.
//	Status         – PENDING, COMPLETED or FAILED.
//	IdempotencyKey – key of the confirmation that produced this row
//	                 (PayPal order id or Stripe checkout session id); unique.
//	FailureReason  – why a captured payment did not reach the ledger.
type Payment struct {
	ID             string          // payments.id
	UserID         string          // payments.user_id
	PartyID        string          // payments.party_id
	Provider       Provider        // payments.provider
	ProviderTxnID  string          // payments.provider_txn_id
	Amount         decimal.Decimal // payments.amount
	Tickets        int             // payments.tickets
	Status         PaymentStatus   // payments.status
	IdempotencyKey string          // payments.idempotency_key
	FailureReason  string          // payments.failure_reason
	CreatedAt      time.Time       // payments.created_at
	UpdatedAt      time.Time       // payments.updated_at
}
