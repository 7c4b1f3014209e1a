// Package queue carries notification events over RabbitMQ.  The ledger
// publishes after commit and never waits on delivery; the consumer turns
// each event into a log line for the notification service to pick up.
package queue

import "time"

// Notification types published by the ledger.
const (
	TypePartyJoined       = "party.joined"        // to the buyer
	TypeMemberJoined      = "party.member_joined" // to existing group members
	TypeTicketSold        = "party.ticket_sold"   // to the host
	TypePartyLeft         = "party.left"          // to the host
	TypeRefundPaid        = "refund.paid"         // to the leaving buyer
	TypePayoutCompleted   = "payout.completed"    // to the host
	TypePayoutFailed      = "payout.failed"       // to ops
	TypePayoutUnconfirmed = "payout.unconfirmed"  // to ops: outcome unknown, row left PENDING
	TypePaymentFailed     = "payment.failed"      // to the buyer
	TypePaymentOrphaned   = "payment.orphaned"    // to ops: captured but not admitted
	TypeLedgerReconcile   = "ledger.reconcile"    // to ops: refund paid, ledger not updated
	TypeGuestInvited      = "group.guest_invited" // to the guest
	TypePayoutsStale      = "payout.stale"        // to ops
)

// RecipientOps addresses the operations inbox instead of a user.
const RecipientOps = "ops"

// Notification is the message body on the notifications queue.  Data holds
// template variables; content is left to the consumer.
type Notification struct {
	Type       string            `json:"type"`
	Recipient  string            `json:"recipient"`
	PartyID    string            `json:"party_id,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
