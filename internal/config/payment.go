package config

// PaymentConfig carries provider credentials and checkout redirect URLs.
// An empty credential disables that provider; the gateway registry only
// contains configured providers.
type PaymentConfig struct {
	PayPalClientID      string
	PayPalClientSecret  string
	PayPalLive          bool
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
}

// LoadPaymentConfig reads PAYPAL_*, STRIPE_* and CHECKOUT_* variables.
func LoadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		PayPalClientID:      envStr("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret:  envStr("PAYPAL_CLIENT_SECRET", ""),
		PayPalLive:          envStr("PAYPAL_MODE", "sandbox") == "live",
		StripeSecretKey:     envStr("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: envStr("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  envStr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CheckoutCancelURL:   envStr("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
	}
}

// PayPalEnabled reports whether PayPal credentials are present.
func (c PaymentConfig) PayPalEnabled() bool {
	return c.PayPalClientID != "" && c.PayPalClientSecret != ""
}

// StripeEnabled reports whether a Stripe secret key is present.
func (c PaymentConfig) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}
