// Package client provides the origin-facing HTTP client.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/supabase/functions-relay/internal/config"
	"github.com/supabase/functions-relay/internal/metrics"
	"github.com/supabase/functions-relay/internal/model"
)

// OriginClient sends requests to the configured origin.
type OriginClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOriginClient creates an OriginClient with connection pooling.
// origin.timeout_seconds of 0 means no client-side timeout: a slow origin
// stalls only the caller waiting on it, and the request context still cancels
// the call when that caller disconnects.
// The metrics parameter is optional; pass nil to disable origin metrics recording.
func NewOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OriginClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Origin.IdleConnections,
		MaxIdleConnsPerHost: cfg.Origin.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &OriginClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Origin.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "origin_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the origin and returns the raw response.
// The caller is responsible for closing the response body.
func (c *OriginClient) Do(req *http.Request) (*model.RelayResponse, error) {
	c.logger.Debug("origin request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via RelayResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.OriginDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("origin request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.OriginDuration.WithLabelValues(method).Observe(duration)
		c.metrics.OriginResponses.WithLabelValues(method, status).Inc()
	}

	return &model.RelayResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request and returns the response body as a stream.
// The caller is responsible for closing the returned ReadCloser.
// The provided context controls the lifetime of the origin request: when the
// context is canceled (e.g. the caller disconnects), the origin request is
// also canceled.
// contentLength is the declared body length; pass 0 for no body and -1 for a
// body of unknown length (sent chunked).
func (c *OriginClient) DoStream(ctx context.Context, method string, u *url.URL, header http.Header, body io.Reader, contentLength int64) (*model.RelayResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	req.Header = header
	// http.NewRequest re-encodes the URL it parses from the string form;
	// assigning the URL directly keeps the path and query byte-for-byte.
	req.URL = u
	// NewRequest only infers the length for a few well-known reader types; a
	// streamed inbound body would otherwise go out chunked even when the
	// caller declared its length.
	if body != nil && contentLength > 0 {
		req.ContentLength = contentLength
	}

	return c.Do(req)
}
