package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns an Echo middleware that adds security headers to
// every caller-facing response. The headers are set before the handler runs
// so they are present even when the response is committed mid-handler.
// Hop-by-hop request headers are stripped later, on the plain HTTP forward
// path only: the Upgrade and Connection headers must survive this far for
// WebSocket detection to work.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}
