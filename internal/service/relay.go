// Package service implements the core relay logic: URL rewriting, header
// sanitization, and forwarding to the origin.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/supabase/functions-relay/internal/client"
	"github.com/supabase/functions-relay/internal/config"
	"github.com/supabase/functions-relay/internal/model"
)

// hopByHopHeaders are connection-scoped request headers that must not be
// forwarded on the plain HTTP path (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ForwardedHostHeader carries the hostname the request was rewritten to.
const ForwardedHostHeader = "X-Forwarded-Host"

// RelayService rewrites inbound requests against the configured origin and
// forwards them. The origin URL is parsed once at construction and never
// changes for the lifetime of the process.
type RelayService struct {
	client *client.OriginClient
	logger *slog.Logger
	origin *url.URL
}

// NewRelayService creates a RelayService.
func NewRelayService(c *client.OriginClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	u, err := url.Parse(cfg.Origin.URL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}

	return &RelayService{
		client: c,
		logger: logger.With("component", "relay_service"),
		origin: u,
	}, nil
}

// Rewrite returns the outbound URL for an inbound request URL: the origin's
// scheme, host, and port with the inbound path and query carried over
// byte-for-byte.
func (s *RelayService) Rewrite(in *url.URL) *url.URL {
	out := *s.origin
	out.Path = in.Path
	out.RawPath = in.RawPath
	out.RawQuery = in.RawQuery
	return &out
}

// WebSocketURL returns the outbound URL for a WebSocket upgrade: the rewritten
// URL with the scheme mapped to its WebSocket equivalent.
func (s *RelayService) WebSocketURL(in *url.URL) *url.URL {
	out := s.Rewrite(in)
	if out.Scheme == "https" {
		out.Scheme = "wss"
	} else {
		out.Scheme = "ws"
	}
	return out
}

// Forward sends a RelayRequest to the origin and returns the response with
// sanitized headers. The caller is responsible for closing the response body.
// The request body, when present, is streamed through unbuffered; the response
// body comes back the same way.
func (s *RelayService) Forward(rr *model.RelayRequest) (*model.RelayResponse, error) {
	outURL := s.Rewrite(rr.URL)
	header := s.buildHeader(rr.Header, outURL)

	s.logger.Debug("forwarding request",
		"method", rr.Method,
		"path", rr.URL.Path,
		"origin", outURL.Host,
	)

	resp, err := s.client.DoStream(rr.Ctx, rr.Method, outURL, header, requestBody(rr), rr.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to origin: %w", err)
	}

	resp.Header = SanitizeResponseHeaders(resp.Header)
	return resp, nil
}

// buildHeader copies the inbound headers, strips hop-by-hop headers, and sets
// the forwarded-host header to the rewritten (origin) hostname. Forwarding the
// origin's own hostname rather than the caller-facing one is long-standing
// behavior that origin functions depend on; do not change it without revising
// both sides.
func (s *RelayService) buildHeader(src http.Header, outURL *url.URL) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		dst[key] = append([]string(nil), vals...)
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
	dst.Set(ForwardedHostHeader, outURL.Hostname())
	return dst
}

// SanitizeResponseHeaders returns a copy of the origin response headers with
// every cookie-setting header removed, so origin session cookies never reach
// the caller's context. All other headers pass through with multiplicity and
// casing preserved. Sanitizing an already-sanitized mapping is a no-op.
func SanitizeResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if http.CanonicalHeaderKey(key) == "Set-Cookie" {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}

// requestBody returns the inbound body stream, or nil when the request
// declared none, so bodyless requests are forwarded without a synthesized
// Content-Length: 0.
func requestBody(rr *model.RelayRequest) io.Reader {
	if !rr.HasBody || rr.Body == nil {
		return nil
	}
	return rr.Body
}
