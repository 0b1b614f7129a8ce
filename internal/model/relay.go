// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// RelayRequest represents an inbound request to be forwarded to the origin.
// The pipeline never mutates the caller's request; it derives an outbound
// request from these fields instead.
type RelayRequest struct {
	Ctx    context.Context
	Method string
	URL    *url.URL
	Header http.Header
	Body   io.ReadCloser
	// HasBody reports whether the inbound request declared a body. A request
	// without one is forwarded with no body at all, not an empty one, so the
	// origin never sees a synthesized Content-Length: 0.
	HasBody bool
	// ContentLength is the inbound request's declared body length; -1 means
	// unknown (chunked). It is carried outbound so origins that require a
	// declared length see one instead of a re-encoded chunked upload.
	ContentLength int64
}

// RelayResponse represents the origin response to be streamed back.
type RelayResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
