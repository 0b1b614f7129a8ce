package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/supabase/functions-relay/internal/auth"
	"github.com/supabase/functions-relay/internal/config"
	"github.com/supabase/functions-relay/internal/ws"
)

// MethodGate returns a middleware that rejects every request whose method is
// not POST, not OPTIONS, and not a GET carrying a WebSocket upgrade.
func MethodGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			switch {
			case r.Method == http.MethodPost, r.Method == http.MethodOptions:
				return next(c)
			case r.Method == http.MethodGet && ws.IsUpgradeRequest(r):
				return next(c)
			default:
				return echo.NewHTTPError(http.StatusMethodNotAllowed,
					"only POST, OPTIONS, and WebSocket upgrade requests are relayed")
			}
		}
	}
}

// Authenticate returns a middleware enforcing the JWT bearer token when
// verification is enabled. OPTIONS requests always pass without verification
// so CORS pre-flights work; everything else needs an Authorization header of
// the exact form "Bearer <token>" carrying a token signed with the shared
// secret.
func Authenticate(verifier *auth.Verifier, cfg *config.Config) echo.MiddlewareFunc {
	enabled := cfg.JWT.Verify
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !enabled || c.Request().Method == http.MethodOptions {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			token := auth.ExtractBearer(header)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header is not a bearer token")
			}
			if !verifier.Verify(token) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			return next(c)
		}
	}
}
