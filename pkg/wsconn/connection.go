package wsconn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lumenmarkets/streamconn/internal/logging"
)

// ConnectionStats is a point-in-time snapshot of a Connection's health,
// grounded on pkg/websocket/connection/manager.go's ConnectionStats.
type ConnectionStats struct {
	Connected       bool
	Authenticated   bool
	ReconnectTry    int
	ResubscribeTry  int
	SubscriptionCount int
	CircuitState    string
	LastMessageAt   time.Time
}

// Connection is the public facade spec §4.6 describes: a single
// resilient multiplexed websocket session. Callers obtain one via
// NewConnection, add subscriptions, send requests, and eventually Close
// it. Grounded on pkg/websocket/connection/manager.go's connectionManager,
// generalized behind the Transport/Client/Codec seams.
type Connection struct {
	id     uuid.UUID
	tag    string
	client Client
	codec  Codec

	transport Transport
	options   Options
	logger    logging.ApplicationLogger

	pending *pendingRegistry
	subs    *subscriptionRegistry
	events  *eventBus
	metrics Metrics
	circuit CircuitBreaker
	limiter RateLimiter
	disp    *dispatcher
	reconn  *reconnectCoordinator

	mu                  sync.Mutex
	authenticated       bool
	connected           bool
	shouldReconnectFlag bool
	pausedActivity      bool
	disconnectTime      time.Time
	reconnectTry        int32
	resubscribeTry      int32
	closed              bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection builds a Connection wired against transport, client and
// codec. The connection does not dial until Open is called.
func NewConnection(tag string, transport Transport, client Client, codec Codec, validator MessageValidator, options Options, logger logging.ApplicationLogger) *Connection {
	options.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if validator == nil && options.Validation != nil {
		validator = NewMessageValidator(*options.Validation)
	}

	ctx, cancel := context.WithCancel(context.Background())

	conn := &Connection{
		id:                  uuid.New(),
		tag:                 tag,
		client:              client,
		codec:               codec,
		transport:           transport,
		options:             options,
		logger:              logger,
		pending:             newPendingRegistry(),
		subs:                newSubscriptionRegistry(),
		events:              newEventBus(logger),
		metrics:             NewMetrics(),
		circuit:             NewCircuitBreaker(5, 30*time.Second),
		limiter:             NewRateLimiter(options.RateLimitCapacity, options.RateLimitRefill),
		shouldReconnectFlag: options.AutoReconnect,
		ctx:                 ctx,
		cancel:              cancel,
	}

	conn.disp = newDispatcher(conn, codec, client, validator, conn.pending, conn.subs, conn.events, conn.metrics, options, logger)
	conn.reconn = newReconnectCoordinator(conn, options, logger)

	transport.SetCallbacks(conn.onOpen, conn.onMessage, conn.onClose, conn.onError)
	return conn
}

// ID is the connection's stable identifier.
func (c *Connection) ID() uuid.UUID { return c.id }

// Tag is the caller-supplied label for this connection (e.g. exchange name).
func (c *Connection) Tag() string { return c.tag }

// Event subscriptions (spec §4.6's "event subscriptions" facade surface,
// §9's event multicast). Each callback runs synchronously on whichever
// goroutine fires the event (dispatcher, reconnect loop, or Close), with
// no connection lock held, and is individually recovered so a faulty
// subscriber cannot take down the dispatcher or reconnect loop.
func (c *Connection) OnConnectionLost(fn func())                 { c.events.OnConnectionLost(fn) }
func (c *Connection) OnConnectionRestored(fn func(time.Duration)) { c.events.OnConnectionRestored(fn) }
func (c *Connection) OnConnectionClosed(fn func())                { c.events.OnConnectionClosed(fn) }
func (c *Connection) OnClosed(fn func())                          { c.events.OnClosed(fn) }
func (c *Connection) OnActivityPaused(fn func())                  { c.events.OnActivityPaused(fn) }
func (c *Connection) OnActivityUnpaused(fn func())                { c.events.OnActivityUnpaused(fn) }
func (c *Connection) OnUnhandledMessage(fn func(interface{}))     { c.events.OnUnhandledMessage(fn) }

// Open dials the transport via the circuit breaker.
func (c *Connection) Open(ctx context.Context) error {
	return c.circuit.Execute(func() error {
		return c.transport.Connect(ctx)
	})
}

func (c *Connection) onOpen() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.IncrementReconnection()
	}
}

func (c *Connection) onMessage(raw string) {
	c.disp.dispatch(raw)
}

func (c *Connection) onClose() {
	c.mu.Lock()
	c.connected = false
	c.disconnectTime = time.Now()
	c.mu.Unlock()
	c.reconn.onTransportClosed(c.ctx)
}

func (c *Connection) onError(err error) {
	c.logger.Error("transport error on connection %s: %v", c.tag, err)
	if c.metrics != nil {
		c.metrics.IncrementConnectionError()
	}
}

// SetAuthenticated marks the connection as having completed the
// Client's authentication handshake, so a future reconnect knows to
// re-authenticate (spec §4.5).
func (c *Connection) SetAuthenticated(v bool) {
	c.mu.Lock()
	c.authenticated = v
	c.mu.Unlock()
}

func (c *Connection) isAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *Connection) shouldReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldReconnectFlag && !c.closed
}

// isClosed reports whether Close has already run (or is running). Used by
// the reconnect coordinator to tell a caller-initiated close apart from a
// genuine unexpected transport close when both land on the same
// onTransportClosed callback (spec §4.6: Close emits `closed` exactly
// once and nothing else).
func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetShouldReconnect controls whether a future transport close triggers
// the reconnect loop (spec §3's should_reconnect flag).
func (c *Connection) SetShouldReconnect(v bool) {
	c.mu.Lock()
	c.shouldReconnectFlag = v
	c.mu.Unlock()
}

func (c *Connection) incrementReconnectTry() int {
	return int(atomic.AddInt32(&c.reconnectTry, 1))
}

func (c *Connection) resetReconnectTry() {
	atomic.StoreInt32(&c.reconnectTry, 0)
	atomic.StoreInt32(&c.resubscribeTry, 0)
}

func (c *Connection) incrementResubscribeTry() int {
	return int(atomic.AddInt32(&c.resubscribeTry, 1))
}

// resetResubscribeTry clears only the resubscribe counter, used on a
// failed connect() attempt (spec §4.5 step 3: "increment reconnect_try,
// reset resubscribe_try to 0") as distinct from resetReconnectTry, which
// clears both on a fully successful reconnect+resubscribe cycle.
func (c *Connection) resetResubscribeTry() {
	atomic.StoreInt32(&c.resubscribeTry, 0)
}

// PauseActivity and UnpauseActivity implement the activity-paused /
// activity-unpaused events (spec §9), used by callers that want to
// signal a deliberate quiet period (e.g. during a maintenance window)
// without tearing down the connection.
func (c *Connection) PauseActivity() {
	c.mu.Lock()
	already := c.pausedActivity
	c.pausedActivity = true
	c.mu.Unlock()
	if !already {
		c.events.EmitActivityPaused()
	}
}

func (c *Connection) UnpauseActivity() {
	c.mu.Lock()
	was := c.pausedActivity
	c.pausedActivity = false
	c.mu.Unlock()
	if was {
		c.events.EmitActivityUnpaused()
	}
}

// AddSubscription registers sub, optionally confirming it against the
// server first when sub.Request is set (spec §4.3/§4.6).
func (c *Connection) AddSubscription(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	c.subs.add(sub)

	if sub.Request == nil {
		return nil
	}

	if err := c.client.SubscribeAndWait(ctx, c, sub); err != nil {
		c.subs.remove(sub.ID)
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	sub.Confirmed = true
	return nil
}

// GetSubscription looks up a subscription by ID.
func (c *Connection) GetSubscription(id uuid.UUID) *Subscription {
	return c.subs.get(id)
}

// GetSubscriptionByRequest returns the first subscription whose Request
// satisfies predicate (spec §4.6's get_subscription_by_request).
func (c *Connection) GetSubscriptionByRequest(predicate func(request interface{}) bool) *Subscription {
	return c.subs.getByRequest(predicate)
}

// CloseSubscription unsubscribes and removes sub. If no user
// subscriptions remain on the connection afterward, the whole connection
// is closed (spec §4.6).
func (c *Connection) CloseSubscription(ctx context.Context, id uuid.UUID) error {
	sub := c.subs.remove(id)
	if sub == nil {
		return nil
	}

	if sub.Cancel != nil {
		sub.Cancel()
	}

	var unsubErr error
	if sub.Confirmed && c.transport.IsOpen() {
		unsubErr = c.client.Unsubscribe(ctx, c, sub)
	}

	if sub.UserSubscription && c.subs.countUser() == 0 {
		c.Close()
	}

	if unsubErr != nil {
		return fmt.Errorf("failed to unsubscribe: %w", unsubErr)
	}
	return nil
}

// Send writes data to the transport, subject to the outbound rate limiter.
func (c *Connection) Send(data string) error {
	if c.limiter != nil && !c.limiter.Allow() {
		return ErrRateLimited
	}
	if err := c.transport.Send(data); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.IncrementSent()
	}
	return nil
}

// SendAndWait writes data, then blocks until a frame satisfying
// predicate arrives, ctx is cancelled, or timeout elapses (spec §4.2's
// request/response correlation pattern).
func (c *Connection) SendAndWait(ctx context.Context, data string, predicate func(frame interface{}) bool, timeout time.Duration) (interface{}, error) {
	p := c.pending.register(predicate, timeout)

	if err := c.Send(data); err != nil {
		p.signal(nil, err)
		return nil, err
	}

	return p.wait(ctx)
}

// Stats returns a snapshot of the connection's current health.
func (c *Connection) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionStats{
		Connected:         c.connected,
		Authenticated:     c.authenticated,
		ReconnectTry:      int(atomic.LoadInt32(&c.reconnectTry)),
		ResubscribeTry:    int(atomic.LoadInt32(&c.resubscribeTry)),
		SubscriptionCount: c.subs.countUser(),
		CircuitState:      c.circuit.GetState(),
	}
}

// CircuitState reports the connect-path circuit breaker's current state.
func (c *Connection) CircuitState() string {
	return c.circuit.GetState()
}

// forceClose tears the connection down unconditionally, used when the
// reconnect loop gives up (spec §4.5's terminal path).
func (c *Connection) forceClose(reason error) {
	c.logger.Error("connection %s closing permanently: %v", c.tag, reason)
	c.Close()
}

// Close idempotently tears the connection down: it cancels pending
// requests, removes itself from the parent client's map, disposes every
// subscription's cancel hook, closes and disposes the transport, and
// emits closed exactly once (spec §4.6, §3 Ownership). closed is set
// before the transport is touched, so the transport's own onClose
// callback - reentering synchronously through Dispose on a real
// transport - sees the flag already set and does nothing (see
// reconnectCoordinator.onTransportClosed).
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.shouldReconnectFlag = false
	c.mu.Unlock()

	c.cancel()
	c.pending.failAll()

	if c.client != nil {
		c.client.Deregister(c)
	}

	for _, sub := range c.subs.clear() {
		if sub.Cancel != nil {
			sub.Cancel()
		}
	}

	c.transport.Dispose()
	c.events.EmitClosed()
	return nil
}
