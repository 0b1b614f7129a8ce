package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/supabase/functions-relay/internal/auth"
	"github.com/supabase/functions-relay/internal/config"
	"github.com/supabase/functions-relay/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Every path
// that is not a relay-owned endpoint is forwarded to the origin, behind the
// method and auth gates.
func RegisterRoutes(e *echo.Echo, relay *RelayHandler, health *HealthHandler, verifier *auth.Verifier, cfg *config.Config) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	e.Any("/*", relay.Handle,
		middleware.MethodGate(),
		middleware.Authenticate(verifier, cfg),
	)
}
