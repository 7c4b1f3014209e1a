package middleware

// identity.go holds the caller lookup shared by the rate limiter and the
// cache.  It reads the subject JWTAuth stored; unauthenticated requests
// are keyed as "anon".

import "github.com/labstack/echo/v4"

func currentUserID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
