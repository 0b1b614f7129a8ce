// Package ws relays WebSocket connections between a caller and the origin.
//
// A session dials the origin first, then upgrades the caller side, then pipes
// frames in both directions until either side closes. The two sockets are
// torn down together: a close on one immediately stops the pipe and closes
// the other.
package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/supabase/functions-relay/internal/metrics"
	"github.com/supabase/functions-relay/internal/service"
)

// handshakeHeaders are set by the WebSocket dialer/upgrader themselves and
// must not be copied from the inbound request.
var handshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
	"Sec-Websocket-Protocol":   true,
}

const controlWriteTimeout = 20 * time.Second

// Bridge establishes origin-side WebSocket connections and pipes frames
// between the caller and the origin.
type Bridge struct {
	dialer *websocket.Dialer
	logger *slog.Logger
	m      *metrics.Metrics
}

// NewBridge creates a Bridge. The metrics parameter is optional; pass nil to
// disable session metrics recording.
func NewBridge(logger *slog.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		dialer: websocket.DefaultDialer,
		logger: logger.With("component", "ws_bridge"),
		m:      m,
	}
}

// Relay dials the origin at originURL, upgrades the caller's connection, and
// pipes frames both ways until either side closes. It returns an error if the
// origin connection cannot be established or the caller-side upgrade fails;
// in the first case no response has been written yet and the error propagates
// to the error boundary. Once the pipe is running, errors are logged only:
// the handshake response is long gone.
func (b *Bridge) Relay(w http.ResponseWriter, r *http.Request, originURL *url.URL) error {
	header := make(http.Header)
	for k, v := range r.Header {
		if handshakeHeaders[k] {
			continue
		}
		header[k] = v
	}
	// Every outbound request carries the forwarded-host header, the upgrade
	// handshake included.
	header.Set(service.ForwardedHostHeader, originURL.Hostname())

	dialer := *b.dialer
	dialer.Subprotocols = websocket.Subprotocols(r)

	originConn, resp, err := dialer.Dial(originURL.String(), header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("dial origin websocket %s: %w", originURL.Host, err)
	}

	upgrader := websocket.Upgrader{
		Subprotocols: websocket.Subprotocols(r),
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	callerConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = originConn.Close()
		return fmt.Errorf("upgrade caller connection: %w", err)
	}

	if b.m != nil {
		b.m.WebSocketSessions.Inc()
		defer b.m.WebSocketSessions.Dec()
	}

	b.logger.Debug("websocket session open",
		"path", r.URL.Path,
		"origin", originURL.Host,
	)

	if err := b.pipe(callerConn, originConn); err != nil {
		b.logger.Warn("websocket session ended with error",
			"path", r.URL.Path,
			"err", err,
		)
	}
	return nil
}

// pipe forwards frames between the two connections until either side closes,
// then closes both. Each direction runs in its own goroutine; the first one to
// finish stops the other via the shared stopper.
func (b *Bridge) pipe(conn1, conn2 *websocket.Conn) error {
	// Ping and pong control frames pass through to the peer.
	conn1.SetPingHandler(forwardControl(websocket.PingMessage, conn2))
	conn2.SetPingHandler(forwardControl(websocket.PingMessage, conn1))
	conn1.SetPongHandler(forwardControl(websocket.PongMessage, conn2))
	conn2.SetPongHandler(forwardControl(websocket.PongMessage, conn1))

	// A close from either side surfaces as a read error in copyFrames; the
	// default close handler would echo the close frame back to the sender
	// instead of letting the teardown below propagate it.
	conn1.SetCloseHandler(func(int, string) error { return nil })
	conn2.SetCloseHandler(func(int, string) error { return nil })

	defer func() {
		_ = conn1.Close()
		_ = conn2.Close()
	}()

	stop := newStopper()
	var err1, err2 atomic.Value

	go func() {
		if err := copyFrames(conn2, conn1, stop); err != nil {
			err1.Store(err)
		}
	}()
	go func() {
		if err := copyFrames(conn1, conn2, stop); err != nil {
			err2.Store(err)
		}
	}()

	stop.wait()

	if err, ok := err1.Load().(error); ok && err != nil {
		return err
	}
	if err, ok := err2.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

// copyFrames forwards every frame read from src to dest, verbatim and in
// order, until src closes or errors. Message boundaries and types are
// preserved.
func copyFrames(dest, src *websocket.Conn, stop *stopper) error {
	defer stop.stop()
	for {
		mtype, reader, err := src.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return err
			}
			return nil
		}
		writer, err := dest.NextWriter(mtype)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return err
			}
			return nil
		}
		_, err = io.Copy(writer, reader)
		_ = writer.Close()
		if err != nil {
			return err
		}

		if stop.isStopped() {
			return nil
		}
	}
}

func forwardControl(messageType int, dest *websocket.Conn) func(string) error {
	return func(appData string) error {
		return dest.WriteControl(messageType, []byte(appData), time.Now().Add(controlWriteTimeout))
	}
}

// IsUpgradeRequest reports whether the request asks for a WebSocket protocol
// switch.
func IsUpgradeRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
