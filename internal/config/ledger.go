package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// LedgerConfig holds the money and timing rules of the ledger.  The same
// values govern crediting income on join and debiting it on leave, so
// they are read once and passed to the services.
type LedgerConfig struct {
	HostShareRate         decimal.Decimal // fraction of a ticket sale credited to the host
	RefundRate            decimal.Decimal // fraction of the ticket price refunded on leave
	Currency              string          // ISO currency code sent to providers
	LeaveCutoff           time.Duration   // leave must happen more than this before the event
	SettlementLookahead   time.Duration   // sweep pays parties starting within this window
	GroupActivationWindow time.Duration   // chat group is active within ± this of the event
	ProviderTimeout       time.Duration   // bound on every capture/payout/checkout call
	SweepAt               string          // daily in-process sweep time, HH:MM UTC; empty disables
	SweepLockTTL          time.Duration   // per-party settlement lock lifetime
	StalePayoutAfter      time.Duration   // PENDING payouts older than this are reported
	WebhookDedupTTL       time.Duration   // how long a processed webhook event id is remembered
}

// LoadLedger builds a LedgerConfig from defaults, an optional YAML file
// named by LEDGER_CONFIG_FILE, and LEDGER_* environment variables (highest
// precedence).
func LoadLedger() (LedgerConfig, error) {
	v := viper.New()
	v.SetDefault("host_share_rate", "0.85")
	v.SetDefault("refund_rate", "0.95")
	v.SetDefault("currency", "USD")
	v.SetDefault("leave_cutoff", "72h")
	v.SetDefault("settlement_lookahead", "72h")
	v.SetDefault("group_activation_window", "168h")
	v.SetDefault("provider_timeout", "20s")
	v.SetDefault("sweep_at", "10:00")
	v.SetDefault("sweep_lock_ttl", "5m")
	v.SetDefault("stale_payout_after", "30m")
	v.SetDefault("webhook_dedup_ttl", "168h")

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("LEDGER_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return LedgerConfig{}, fmt.Errorf("read ledger config %s: %w", path, err)
		}
	}

	hostShare, err := decimal.NewFromString(v.GetString("host_share_rate"))
	if err != nil {
		return LedgerConfig{}, fmt.Errorf("host_share_rate: %w", err)
	}
	refund, err := decimal.NewFromString(v.GetString("refund_rate"))
	if err != nil {
		return LedgerConfig{}, fmt.Errorf("refund_rate: %w", err)
	}
	cfg := LedgerConfig{
		HostShareRate:         hostShare,
		RefundRate:            refund,
		Currency:              strings.ToUpper(v.GetString("currency")),
		LeaveCutoff:           v.GetDuration("leave_cutoff"),
		SettlementLookahead:   v.GetDuration("settlement_lookahead"),
		GroupActivationWindow: v.GetDuration("group_activation_window"),
		ProviderTimeout:       v.GetDuration("provider_timeout"),
		SweepAt:               v.GetString("sweep_at"),
		SweepLockTTL:          v.GetDuration("sweep_lock_ttl"),
		StalePayoutAfter:      v.GetDuration("stale_payout_after"),
		WebhookDedupTTL:       v.GetDuration("webhook_dedup_ttl"),
	}
	if err := cfg.Validate(); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

// DefaultLedger returns the built-in rules without consulting the
// environment.  Tests start from it.
func DefaultLedger() LedgerConfig {
	return LedgerConfig{
		HostShareRate:         decimal.RequireFromString("0.85"),
		RefundRate:            decimal.RequireFromString("0.95"),
		Currency:              "USD",
		LeaveCutoff:           72 * time.Hour,
		SettlementLookahead:   72 * time.Hour,
		GroupActivationWindow: 7 * 24 * time.Hour,
		ProviderTimeout:       20 * time.Second,
		SweepAt:               "10:00",
		SweepLockTTL:          5 * time.Minute,
		StalePayoutAfter:      30 * time.Minute,
		WebhookDedupTTL:       7 * 24 * time.Hour,
	}
}

// Validate rejects rates outside [0,1] and non-positive durations.
func (c LedgerConfig) Validate() error {
	one := decimal.NewFromInt(1)
	if c.HostShareRate.IsNegative() || c.HostShareRate.GreaterThan(one) {
		return fmt.Errorf("host_share_rate must be within [0,1], got %s", c.HostShareRate)
	}
	if c.RefundRate.IsNegative() || c.RefundRate.GreaterThan(one) {
		return fmt.Errorf("refund_rate must be within [0,1], got %s", c.RefundRate)
	}
	if c.LeaveCutoff <= 0 || c.SettlementLookahead <= 0 || c.ProviderTimeout <= 0 {
		return fmt.Errorf("leave_cutoff, settlement_lookahead and provider_timeout must be positive")
	}
	if c.SweepAt != "" {
		if _, _, err := c.SweepClock(); err != nil {
			return err
		}
	}
	return nil
}

// SweepClock parses SweepAt into hour and minute.
func (c LedgerConfig) SweepClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.SweepAt)
	if err != nil {
		return 0, 0, fmt.Errorf("sweep_at must be HH:MM, got %q", c.SweepAt)
	}
	return t.Hour(), t.Minute(), nil
}

// HostShare is the part of a captured amount credited to the host.
func (c LedgerConfig) HostShare(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.HostShareRate).Round(2)
}

// Refund is what a leaving participant gets back for tickets at fee.
func (c LedgerConfig) Refund(fee decimal.Decimal, tickets int) decimal.Decimal {
	return fee.Mul(decimal.NewFromInt(int64(tickets))).Mul(c.RefundRate).Round(2)
}
