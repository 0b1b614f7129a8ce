// Package middleware provides Echo middleware for the relay pipeline: the
// error boundary, the method and auth gates, request logging, security
// headers, and metrics.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// RelayErrorHeader marks a caller-facing response as produced by the relay
// itself rather than the origin.
const RelayErrorHeader = "X-Relay-Error"

// ErrorBoundary returns the outermost pipeline middleware. Every failure from
// the inner stages — returned errors and panics alike — is translated here,
// exactly once, into a response carrying the failure's status code (500 when
// the failure has none), the failure's message as the body, and the
// X-Relay-Error marker header. No request goes unanswered.
func ErrorBoundary(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := runInner(c, next, logger)
			if err == nil {
				return nil
			}

			code := http.StatusInternalServerError
			message := err.Error()
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
				message = fmt.Sprintf("%v", he.Message)
			}

			logger.Error("relay error",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", code,
				"err", err,
			)

			if c.Response().Committed {
				// Headers already on the wire (e.g. a failed mid-stream
				// copy); nothing more can be sent.
				return nil
			}

			c.Response().Header().Set(RelayErrorHeader, "true")
			return c.String(code, message)
		}
	}
}

// runInner invokes the inner pipeline, converting panics into errors.
func runInner(c echo.Context, next echo.HandlerFunc, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == http.ErrAbortHandler {
				panic(r)
			}
			logger.Error("panic in relay pipeline",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return next(c)
}
