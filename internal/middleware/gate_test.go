package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/supabase/functions-relay/internal/auth"
	"github.com/supabase/functions-relay/internal/config"
)

const gateTestSecret = "gate-test-secret"

func newGateEcho(t *testing.T, verify bool) *echo.Echo {
	t.Helper()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: gateTestSecret, Verify: verify}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := auth.NewVerifier(cfg, logger)

	e := echo.New()
	e.Use(ErrorBoundary(logger))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "relayed")
	}, MethodGate(), Authenticate(verifier, cfg))
	return e
}

func validToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(gateTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestMethodGate(t *testing.T) {
	e := newGateEcho(t, false)

	tests := []struct {
		name       string
		method     string
		upgrade    bool
		wantStatus int
	}{
		{"POST allowed", http.MethodPost, false, http.StatusOK},
		{"OPTIONS allowed", http.MethodOptions, false, http.StatusOK},
		{"GET without upgrade rejected", http.MethodGet, false, http.StatusMethodNotAllowed},
		{"GET with upgrade allowed", http.MethodGet, true, http.StatusOK},
		{"PUT rejected", http.MethodPut, false, http.StatusMethodNotAllowed},
		{"DELETE rejected", http.MethodDelete, false, http.StatusMethodNotAllowed},
		{"HEAD rejected", http.MethodHead, false, http.StatusMethodNotAllowed},
		{"POST with upgrade header still POST", http.MethodPost, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/fn", http.NoBody)
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusMethodNotAllowed {
				if got := rec.Header().Get(RelayErrorHeader); got != "true" {
					t.Errorf("%s = %q, want %q", RelayErrorHeader, got, "true")
				}
			}
		})
	}
}

func TestAuthenticate_Disabled(t *testing.T) {
	e := newGateEcho(t, false)

	req := httptest.NewRequest(http.MethodPost, "/fn", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthenticate_Enabled(t *testing.T) {
	e := newGateEcho(t, true)

	badToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{}).
		SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		method     string
		authHeader string
		wantStatus int
	}{
		{"missing header", http.MethodPost, "", http.StatusUnauthorized},
		{"not bearer", http.MethodPost, "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"bare token", http.MethodPost, validTokenNoPrefix, http.StatusUnauthorized},
		{"bad signature", http.MethodPost, "Bearer " + badToken, http.StatusUnauthorized},
		{"valid token", http.MethodPost, "", http.StatusOK}, // filled in below
		{"OPTIONS bypasses auth", http.MethodOptions, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.authHeader
			if tt.name == "valid token" {
				header = "Bearer " + validToken(t)
			}

			req := httptest.NewRequest(tt.method, "/fn", http.NoBody)
			if header != "" {
				req.Header.Set(echo.HeaderAuthorization, header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

// OPTIONS must pass even with a syntactically valid token present: no
// verification is attempted at all.
func TestAuthenticate_OptionsSkipsVerification(t *testing.T) {
	e := newGateEcho(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/fn", http.NoBody)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not.even.parseable")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

const validTokenNoPrefix = "eyJhbGciOiJIUzI1NiJ9.e30.signature"
