package main // Entry point package

import (
	"context"   // Context for startup and shutdown deadlines
	"errors"    // errors.Is for the server-closed check
	"net/http"  // http.ErrServerClosed
	"os"        // Signals
	"os/signal" // signal.NotifyContext
	"syscall"   // SIGTERM
	"time"      // Shutdown grace period

	"github.com/labstack/echo/v4"                // Echo web framework
	emw "github.com/labstack/echo/v4/middleware" // Request logging and panic recovery
	"github.com/labstack/gommon/log"             // Leveled logger shared with Echo

	"github.com/AbdulSatterism/party-management/internal/app"      // Service assembly
	"github.com/AbdulSatterism/party-management/internal/config"   // Internal config loader
	"github.com/AbdulSatterism/party-management/internal/database" // Schema migrations
	"github.com/AbdulSatterism/party-management/internal/handler"  // HTTP handlers
	"github.com/AbdulSatterism/party-management/internal/queue"    // Notification consumer
	"github.com/AbdulSatterism/party-management/internal/router"   // Internal router setup
)

func main() {
	cfg := config.Load() // Load environment config

	logger := log.New("party")
	if cfg.Env == "dev" {
		logger.SetLevel(log.DEBUG)
	} else {
		logger.SetLevel(log.INFO)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer a.Close()

	if envMigrate() {
		applied, err := database.Migrate(ctx, a.DB)
		if err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		for _, name := range applied {
			logger.Infof("applied migration %s", name)
		}
	}

	if a.Queue.ConsumerEnabled {
		go func() {
			if err := queue.StartNotificationConsumer(ctx, a.Queue, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("notification consumer stopped: %v", err)
			}
		}()
	}

	if a.Rules.SweepAt != "" {
		go func() {
			if err := a.Settler.RunDaily(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("settlement scheduler stopped: %v", err)
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger = logger
	e.Use(emw.Recover())
	e.Use(emw.RequestID())
	e.Use(emw.Logger())

	router.Register(e, router.Handlers{ // Register application routes
		Health:   handler.Health(a.DB),
		Parties:  handler.NewPartyHandler(a.Ledger),
		Webhooks: handler.NewWebhookHandler(a.Ledger, a.Payments.StripeWebhookSecret, logger),
		Admin:    handler.NewAdminHandler(a.Settler),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     a.Redis,
	})

	addr := ":" + cfg.Port // Address string with port
	logger.Infof("listening on %s (env=%s, providers=%v)", addr, cfg.Env, a.Gateways.Providers())

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) { // Start HTTP server
			logger.Errorf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// envMigrate reports whether MIGRATE_ON_START asks for schema migration at boot.
func envMigrate() bool {
	v := os.Getenv("MIGRATE_ON_START")
	return v == "1" || v == "true"
}
