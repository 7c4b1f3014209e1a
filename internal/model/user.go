package model

import "time"

// Roles issued by the identity service.
const (
	RoleUser  = "USER"
	RoleHost  = "HOST"
	RoleAdmin = "ADMIN"
)

// User is the local projection of an identity-service account.  Only the
// fields the ledger needs are kept: existence, role and the payout
// destinations used for refunds.
//
// Fields:
//
//	ID              – identity-service user id.
//	Email           – contact address used for notifications.
//	Name            – display name.
//	Role            – USER, HOST or ADMIN.
//	PayPalEmail     – PayPal refund destination (nullable).
//	StripeAccountID – Stripe connected account for refunds (nullable).
type User struct {
	ID              string    // users.id
	Email           string    // users.email
	Name            string    // users.name
	Role            string    // users.role
	PayPalEmail     string    // users.paypal_email
	StripeAccountID string    // users.stripe_account_id
	CreatedAt       time.Time // users.created_at
	UpdatedAt       time.Time // users.updated_at
}

// PayoutDestination returns where refunds on provider should be sent.
func (u User) PayoutDestination(p Provider) (string, bool) {
	switch p {
	case ProviderPayPal:
		return u.PayPalEmail, u.PayPalEmail != ""
	case ProviderStripe:
		return u.StripeAccountID, u.StripeAccountID != ""
	}
	return "", false
}
