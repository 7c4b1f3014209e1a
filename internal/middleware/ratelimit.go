package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/AbdulSatterism/party-management/internal/config"
)

// takeToken refills the bucket in KEYS[1] for whole intervals elapsed since
// its last refill, then spends one token if any is left.  It returns
// {allowed, tokens left, ms until the next refill}.
var takeToken = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local per_refill = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local refilled_at = tonumber(redis.call('HGET', KEYS[1], 'refilled_at'))
if tokens == nil or refilled_at == nil then
	tokens = capacity
	refilled_at = now
end

local steps = math.floor(math.max(0, now - refilled_at) / interval)
if steps > 0 then
	tokens = math.min(capacity, tokens + steps * per_refill)
	refilled_at = refilled_at + steps * interval
end

local allowed = 0
local wait = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	wait = math.max(0, interval - (now - refilled_at))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refilled_at', refilled_at)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return {allowed, tokens, wait}
`)

// NewTokenBucket limits each authenticated buyer per route with a token
// bucket in Redis.  It must run after JWTAuth.  A Redis failure lets the
// request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateLimitKey(cfg.Prefix, c)
			res, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				if cfg.Debug {
					c.Logger().Warnf("ratelimit %s: %v", key, err)
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}

			secs := int(math.Ceil(float64(res[2]) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				c.Logger().Infof("ratelimit %s: blocked for %ds", key, secs)
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"code":        "too_many_requests",
				"retry_after": secs,
			})
		}
	}
}

// rateLimitKey names the bucket of the JWT caller on the matched route,
// e.g. "party:rl:u1:POST:/v1/parties/:id/join".  Using the route pattern
// rather than the URL puts every party under one budget per user.
func rateLimitKey(prefix string, c echo.Context) string {
	return strings.Join([]string{prefix, currentUserID(c), c.Request().Method, c.Path()}, ":")
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
