package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/AbdulSatterism/party-management/internal/config"
)

// cachedResponse is what NewRedisCache stores per key.
type cachedResponse struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// recorder tees the body into buf, up to limit bytes.  Past the limit the
// response is marked oversized and not stored.
type recorder struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int
	oversized bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
		r.oversized = true
	}
	if !r.oversized {
		r.buf.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// NewRedisCache serves party availability from Redis for cfg.TTL.  Only
// 200 responses to cfg.Methods are stored.  Seat counts move with every
// join and leave, so a hit can be up to one TTL stale.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg.Prefix, c)

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(http.StatusOK, hit.ContentType, hit.Body)
				}
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.oversized {
				return nil
			}
			entry, err := json.Marshal(cachedResponse{
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        rec.buf.Bytes(),
			})
			if err != nil {
				return nil
			}
			// The client already has its answer; a cancelled request
			// should still fill the cache.
			if err := rdb.Set(context.WithoutCancel(ctx), key, entry, ttl).Err(); err != nil {
				c.Logger().Warnf("cache %s: %v", key, err)
			}
			return nil
		}
	}
}

// cacheKeyFrom keys an entry by route pattern, path parameters and query
// string.  Availability is public, so the caller is not part of the key.
func cacheKeyFrom(prefix string, c echo.Context) string {
	parts := []string{c.Request().Method, c.Path()}
	for _, name := range c.ParamNames() {
		parts = append(parts, name+"="+c.Param(name))
	}
	parts = append(parts, "q="+c.Request().URL.RawQuery)
	return fmt.Sprintf("%s:%x", prefix, sha1.Sum([]byte(strings.Join(parts, ":"))))
}
