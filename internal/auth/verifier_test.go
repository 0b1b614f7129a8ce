package auth

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/supabase/functions-relay/internal/config"
)

const testSecret = "test-secret"

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewVerifier(cfg, logger)
}

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerify_ValidToken(t *testing.T) {
	v := newTestVerifier(t)
	token := signedToken(t, testSecret, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	if !v.Verify(token) {
		t.Error("Verify() = false, want true")
	}
}

func TestVerify_NoClaims(t *testing.T) {
	// Signature validity alone decides; the relay does no claim-based
	// authorization.
	v := newTestVerifier(t)
	token := signedToken(t, testSecret, jwt.MapClaims{})

	if !v.Verify(token) {
		t.Error("Verify() = false, want true")
	}
}

func TestVerify_Invalid(t *testing.T) {
	v := newTestVerifier(t)

	expired := signedToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	wrongSecret := signedToken(t, "other-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", wrongSecret},
		{"alg none", unsigned},
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"truncated", signedToken(t, testSecret, jwt.MapClaims{})[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v.Verify(tt.token) {
				t.Error("Verify() = true, want false")
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"empty", "", ""},
		{"no scheme", "abc.def.ghi", ""},
		{"wrong scheme", "Basic abc.def.ghi", ""},
		{"lowercase scheme", "bearer abc.def.ghi", ""},
		{"missing token", "Bearer ", ""},
		{"extra segment", "Bearer abc def", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBearer(tt.header); got != tt.want {
				t.Errorf("ExtractBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
