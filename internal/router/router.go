package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"  // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9" // redis backs the rate limiter and availability cache

	"github.com/AbdulSatterism/party-management/internal/config"     // middleware settings
	"github.com/AbdulSatterism/party-management/internal/handler"    // handlers that call the ledger
	"github.com/AbdulSatterism/party-management/internal/middleware" // JWT authentication, roles, rate limit, cache
	"github.com/AbdulSatterism/party-management/internal/model"      // role names
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Health   echo.HandlerFunc
	Parties  *handler.PartyHandler
	Webhooks *handler.WebhookHandler
	Admin    *handler.AdminHandler
}

// Options carries middleware configuration.  A nil Redis client turns the
// rate limiter and the cache into pass-throughs.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
}

// Register wires every route onto e.
func Register(e *echo.Echo, h Handlers, opt Options) {
	// Health check for load balancers.
	e.GET("/healthz", h.Health)

	RegisterPublic(e, h, opt)
	RegisterBuyer(e, h, opt)
	RegisterHost(e, h, opt)
	RegisterAdmin(e, h, opt)
}

// RegisterPublic registers unauthenticated endpoints: seat availability
// (served through the Redis cache) and the Stripe webhook, which is
// authenticated by its signature instead of a JWT.
func RegisterPublic(e *echo.Echo, h Handlers, opt Options) {
	e.GET("/v1/parties/:id/availability", h.Parties.Availability, middleware.NewRedisCache(opt.Cache, opt.Redis))
	e.POST("/v1/webhooks/stripe", h.Webhooks.Stripe)
}

// RegisterBuyer registers the endpoints that move money for a buyer.  They
// call payment providers, so each user is rate limited per route.
func RegisterBuyer(e *echo.Echo, h Handlers, opt Options) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(opt.JWTSecret),
		middleware.RequireRole(model.RoleUser, model.RoleHost),
		middleware.NewTokenBucket(opt.RateLimit, opt.Redis),
	)
	g.POST("/parties/:id/checkout", h.Parties.Checkout)
	g.POST("/parties/:id/join", h.Parties.Join)
	g.POST("/parties/:id/leave", h.Parties.Leave)
	g.GET("/parties/:id/group", h.Parties.Group)
	g.POST("/groups/:id/guests", h.Parties.AddGuest)
}

// RegisterHost registers party management for hosts.  The ledger view is
// further restricted to the party's own host inside the service.
func RegisterHost(e *echo.Echo, h Handlers, opt Options) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(opt.JWTSecret),
		middleware.RequireRole(model.RoleHost),
	)
	g.POST("/parties", h.Parties.Create)
	g.GET("/parties/:id/ledger", h.Parties.Ledger)
}

// RegisterAdmin registers operator endpoints.
func RegisterAdmin(e *echo.Echo, h Handlers, opt Options) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(opt.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/settlements/run", h.Admin.RunSettlement)
	g.GET("/payouts/pending", h.Admin.PendingPayouts)
}
