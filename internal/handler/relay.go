package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/supabase/functions-relay/internal/model"
	"github.com/supabase/functions-relay/internal/service"
	"github.com/supabase/functions-relay/internal/ws"
)

// RelayHandler forwards accepted requests to the configured origin. Plain
// HTTP requests go through the relay service; WebSocket upgrades are handed
// to the bridge and never produce an HTTP response here.
type RelayHandler struct {
	service *service.RelayService
	bridge  *ws.Bridge
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, bridge *ws.Bridge, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		bridge:  bridge,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle relays the request. By the time it runs, the method and auth gates
// have already accepted the request.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	if req.Method == http.MethodGet && ws.IsUpgradeRequest(req) {
		return h.bridge.Relay(c.Response(), req, h.service.WebSocketURL(req.URL))
	}

	rr := &model.RelayRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		URL:           req.URL,
		Header:        req.Header,
		Body:          req.Body,
		HasBody:       req.ContentLength != 0,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(rr)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// Copy sanitized response headers.
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the origin body directly to the caller. If io.Copy fails
	// mid-stream (e.g. caller disconnect, network error), the HTTP status
	// code has already been sent, so the caller receives a truncated
	// response with the original status. This is an inherent trade-off of
	// streaming relays — we log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}
