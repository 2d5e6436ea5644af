package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumenmarkets/streamconn/internal/logging"
)

// gorillaConn adapts *websocket.Conn to Conn.
type gorillaConn struct {
	conn *websocket.Conn
}

func (g *gorillaConn) ReadMessage() (int, []byte, error)      { return g.conn.ReadMessage() }
func (g *gorillaConn) WriteMessage(mt int, data []byte) error { return g.conn.WriteMessage(mt, data) }
func (g *gorillaConn) Close() error                           { return g.conn.Close() }
func (g *gorillaConn) SetReadDeadline(t time.Time) error       { return g.conn.SetReadDeadline(t) }
func (g *gorillaConn) SetWriteDeadline(t time.Time) error      { return g.conn.SetWriteDeadline(t) }
func (g *gorillaConn) SetReadLimit(limit int64)                { g.conn.SetReadLimit(limit) }
func (g *gorillaConn) SetPingHandler(h func(string) error)     { g.conn.SetPingHandler(h) }
func (g *gorillaConn) SetPongHandler(h func(string) error)     { g.conn.SetPongHandler(h) }

// gorillaDialer adapts *websocket.Dialer to Dialer.
type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewGorillaDialer builds a production Dialer backed by
// github.com/gorilla/websocket, sized from GorillaTransportConfig.
func NewGorillaDialer(cfg GorillaTransportConfig) Dialer {
	return &gorillaDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
	}
}

func (g *gorillaDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, *http.Response, error) {
	conn, resp, err := g.dialer.DialContext(ctx, urlStr, header)
	if err != nil {
		return nil, resp, err
	}
	return &gorillaConn{conn: conn}, resp, nil
}

// GorillaTransportConfig configures GorillaTransport. Grounded on
// pkg/websocket/connection/config.go's Config.
type GorillaTransportConfig struct {
	URL              string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	MaxMessageSize   int64
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// NoDataTimeout realizes Options.SocketNoDataTimeout (spec §6): if no
	// message or pong has been observed for this long, the health
	// monitor treats the connection as dead and invokes onClose/onError.
	NoDataTimeout       time.Duration
	HealthCheckInterval time.Duration
	EnableHealthPings   bool
}

// ApplyDefaults fills unset fields with conservative defaults, matching
// connection.Config.ApplyDefaults in the donor.
func (c *GorillaTransportConfig) ApplyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 45 * time.Second
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = 4096
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 1024 * 1024
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.NoDataTimeout == 0 {
		c.NoDataTimeout = 60 * time.Second
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 15 * time.Second
	}
}

// HeaderProvider supplies request headers for the initial dial (e.g.
// authentication headers). The core treats it as opaque; a real
// implementation typically wraps a Client's credentials.
type HeaderProvider func(ctx context.Context) (http.Header, error)

// GorillaTransport is the production Transport, grounded on
// pkg/websocket/connection/manager.go's connectionManager (doConnect,
// ping/pong handlers, readMessages, simpleHealthMonitor,
// handleConnectionError).
type GorillaTransport struct {
	config   GorillaTransportConfig
	dialer   Dialer
	headers  HeaderProvider
	logger   logging.ApplicationLogger

	mu            sync.Mutex
	conn          Conn
	ctx           context.Context
	cancel        context.CancelFunc
	open          atomic.Bool
	reconnecting  atomic.Bool

	lastActivity atomicTime

	onOpen    func()
	onMessage func(string)
	onClose   func()
	onError   func(error)
}

// NewGorillaTransport wires a GorillaTransport against a Dialer (use
// NewGorillaDialer for production, a fake for tests).
func NewGorillaTransport(cfg GorillaTransportConfig, dialer Dialer, headers HeaderProvider, logger logging.ApplicationLogger) *GorillaTransport {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if headers == nil {
		headers = func(context.Context) (http.Header, error) { return nil, nil }
	}
	return &GorillaTransport{
		config:  cfg,
		dialer:  dialer,
		headers: headers,
		logger:  logger,
	}
}

func (t *GorillaTransport) SetCallbacks(onOpen func(), onMessage func(string), onClose func(), onError func(error)) {
	t.onOpen = onOpen
	t.onMessage = onMessage
	t.onClose = onClose
	t.onError = onError
}

func (t *GorillaTransport) IsOpen() bool { return t.open.Load() }

func (t *GorillaTransport) IsReconnecting() bool    { return t.reconnecting.Load() }
func (t *GorillaTransport) SetReconnecting(v bool)  { t.reconnecting.Store(v) }

func (t *GorillaTransport) Connect(ctx context.Context) error {
	u, err := url.Parse(t.config.URL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported websocket scheme: %s", u.Scheme)
	}

	headers, err := t.headers(ctx)
	if err != nil {
		return fmt.Errorf("failed to build connect headers: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, t.config.ConnectTimeout)
	defer cancel()

	conn, _, err := t.dialer.DialContext(connectCtx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("failed to connect websocket: %w", err)
	}

	conn.SetReadLimit(t.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))

	conn.SetPingHandler(func(appData string) error {
		t.logger.Debug("received websocket ping")
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})
	conn.SetPongHandler(func(string) error {
		t.updateActivity()
		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		return nil
	})

	t.mu.Lock()
	t.conn = conn
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	t.open.Store(true)
	t.updateActivity()

	go t.readLoop()
	if t.config.NoDataTimeout > 0 {
		go t.healthMonitor()
	}

	if t.onOpen != nil {
		t.onOpen()
	}

	t.logger.Info("websocket connected to %s", t.config.URL)
	return nil
}

func (t *GorillaTransport) Close() error {
	if !t.open.CompareAndSwap(true, false) {
		return nil
	}

	t.mu.Lock()
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if conn != nil {
		err = conn.Close()
	}

	if t.onClose != nil {
		t.onClose()
	}

	return err
}

func (t *GorillaTransport) Reset() {
	t.mu.Lock()
	t.conn = nil
	t.mu.Unlock()
	t.open.Store(false)
}

func (t *GorillaTransport) Send(data string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if !t.open.Load() || conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(data))
}

func (t *GorillaTransport) Dispose() {
	_ = t.Close()
}

func (t *GorillaTransport) updateActivity() {
	t.lastActivity.Store(time.Now())
}

func (t *GorillaTransport) readLoop() {
	t.mu.Lock()
	conn := t.conn
	ctx := t.ctx
	t.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			t.handleTransportError(fmt.Errorf("websocket read error: %w", err))
			return
		}

		t.updateActivity()
		if t.onMessage != nil {
			t.onMessage(string(message))
		}
	}
}

func (t *GorillaTransport) healthMonitor() {
	ticker := time.NewTicker(t.config.HealthCheckInterval)
	defer ticker.Stop()

	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.open.Load() {
				return
			}
			if time.Since(t.lastActivity.Load()) > t.config.NoDataTimeout {
				t.handleTransportError(fmt.Errorf("no activity for %v, connection considered stale", t.config.NoDataTimeout))
				return
			}
		}
	}
}

func (t *GorillaTransport) handleTransportError(err error) {
	if !t.open.CompareAndSwap(true, false) {
		return
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	t.logger.Error("websocket connection error: %v", err)

	if t.onClose != nil {
		t.onClose()
	}
	if t.onError != nil {
		t.onError(err)
	}
}

// atomicTime is a tiny helper around atomic.Value for time.Time, avoiding
// a mutex just to publish the last-activity timestamp.
type atomicTime struct {
	v atomic.Value
}

func (a *atomicTime) Store(t time.Time) { a.v.Store(t) }
func (a *atomicTime) Load() time.Time {
	v := a.v.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}
