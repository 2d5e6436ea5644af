package wsconn

import (
	"context"
	"net/http"
	"time"
)

// Transport is the abstract duplex channel the core programs against
// (spec §4.1). The core never touches a raw socket; it owns exactly one
// Transport instance for the connection's lifetime and reuses it across
// reconnects via Reset/Connect.
type Transport interface {
	// Connect establishes the session. Returning a nil error means
	// success; the core never inspects a separate bool.
	Connect(ctx context.Context) error

	// Close is idempotent and asynchronous from the caller's point of
	// view (it may be invoked from within an on-close callback).
	Close() error

	// Reset discards internal state so Connect may be retried after a
	// failed attempt or a close.
	Reset()

	// Send is a non-blocking, best-effort write.
	Send(data string) error

	// Dispose releases all resources; called once, at facade Close.
	Dispose()

	// IsOpen reports whether the transport currently considers itself
	// connected.
	IsOpen() bool

	// IsReconnecting/SetReconnecting implement the single-flight guard
	// spec §3 requires ("at most one reconnect loop runs per connection
	// at a time").
	IsReconnecting() bool
	SetReconnecting(bool)

	// SetCallbacks wires the four lifecycle callbacks (spec §4.1).
	SetCallbacks(onOpen func(), onMessage func(string), onClose func(), onError func(error))
}

// Conn abstracts a single established socket, mirroring
// pkg/websocket/connection/websocket_adapter.go's WebSocketConn seam so
// GorillaTransport can be exercised against a fake in tests.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
}

// Dialer abstracts dialing a Conn, mirroring WebSocketDialer in the
// donor.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (Conn, *http.Response, error)
}
