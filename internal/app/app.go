// Package app assembles the ledger from configuration.  The API server and
// partyctl both build on it so that they agree on stores, gateways and
// rules.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/plutov/paypal/v4"
	"github.com/redis/go-redis/v9"

	"github.com/AbdulSatterism/party-management/internal/clock"
	"github.com/AbdulSatterism/party-management/internal/config"
	"github.com/AbdulSatterism/party-management/internal/database"
	"github.com/AbdulSatterism/party-management/internal/gateway"
	"github.com/AbdulSatterism/party-management/internal/lock"
	"github.com/AbdulSatterism/party-management/internal/queue"
	"github.com/AbdulSatterism/party-management/internal/repository"
	"github.com/AbdulSatterism/party-management/internal/service"
)

// App holds the long-lived resources of one process.
type App struct {
	Config    config.Config
	Rules     config.LedgerConfig
	Payments  config.PaymentConfig
	Queue     config.QueueConfig
	DB        *sql.DB
	Redis     *redis.Client
	Publisher *queue.Publisher
	Gateways  *gateway.Registry
	Ledger    *service.LedgerService
	Settler   *service.SettlementService
	Log       *log.Logger
}

// New opens the database, connects the optional infrastructure and builds
// both services.  Redis and RabbitMQ are optional: without Redis there is
// no cross-process settlement lock or webhook de-duplication, and a broker
// outage only costs notifications.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	rules, err := config.LoadLedger()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pay := config.LoadPaymentConfig()
	gateways, err := Gateways(pay)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if len(gateways.Providers()) == 0 {
		logger.Warn("no payment provider configured; joins, leaves and payouts will fail")
	}

	qcfg := config.LoadQueueConfig()
	a := &App{
		Config:    cfg,
		Rules:     rules,
		Payments:  pay,
		Queue:     qcfg,
		DB:        db,
		Redis:     config.NewRedisClient(),
		Publisher: queue.NewPublisher(qcfg, logger),
		Gateways:  gateways,
		Log:       logger,
	}
	if a.Redis == nil {
		logger.Warn("redis unavailable; settlement lock and webhook de-duplication are process-local no-ops")
	}

	a.Ledger = service.NewLedgerService(a.deps("ledger"))
	a.Settler = service.NewSettlementService(a.deps("settlement"))
	return a, nil
}

// component returns a logger with its own prefix that follows the level
// and output of the process logger.
func (a *App) component(prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetLevel(a.Log.Level())
	l.SetOutput(a.Log.Output())
	return l
}

func (a *App) deps(prefix string) service.Deps {
	d := service.Deps{
		Stores:   Stores(a.DB),
		Gateways: a.Gateways,
		Notifier: a.Publisher,
		Clock:    clock.NewSystem(),
		Rules:    a.Rules,
		URLs: service.CheckoutURLs{
			Success: a.Payments.CheckoutSuccessURL,
			Cancel:  a.Payments.CheckoutCancelURL,
		},
		Log: a.component(prefix),
	}
	// Assigned only when non-nil so the services fall back to their no-ops
	// instead of holding a typed nil.
	if a.Redis != nil {
		l := lock.NewRedis(a.Redis, "party:")
		d.Locker = l
		d.Dedup = l
	}
	return d
}

// Stores builds the MySQL repositories behind the service ports.
func Stores(db *sql.DB) service.Stores {
	return service.Stores{
		Tx:           repository.NewTxManager(db),
		Users:        repository.NewUserRepo(db),
		Parties:      repository.NewPartyRepo(db),
		Participants: repository.NewParticipantRepo(db),
		Payments:     repository.NewPaymentRepo(db),
		Groups:       repository.NewGroupRepo(db),
		Payouts:      repository.NewPayoutRepo(db),
	}
}

// Gateways registers every provider with credentials in cfg.
func Gateways(cfg config.PaymentConfig) (*gateway.Registry, error) {
	var gws []gateway.Gateway
	if cfg.PayPalEnabled() {
		base := paypal.APIBaseSandBox
		if cfg.PayPalLive {
			base = paypal.APIBaseLive
		}
		pp, err := gateway.NewPayPal(cfg.PayPalClientID, cfg.PayPalClientSecret, base)
		if err != nil {
			return nil, err
		}
		gws = append(gws, pp)
	}
	if cfg.StripeEnabled() {
		gws = append(gws, gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil))
	}
	return gateway.NewRegistry(gws...), nil
}

// Close releases the broker connection, Redis and the database.
func (a *App) Close() {
	if err := a.Publisher.Close(); err != nil {
		a.Log.Warnf("close publisher: %v", err)
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Warnf("close database: %v", err)
	}
}
