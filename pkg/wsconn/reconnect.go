package wsconn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenmarkets/streamconn/internal/logging"
)

// reconnectCoordinator owns the single-flight reconnect loop and the
// resubscribe-after-reconnect fan-out for one Connection (spec §4.5).
// Grounded on pkg/websocket/connection/reconnect.go's reconnectManager,
// generalized to also drive resubscription via Client.SubscribeAndWait
// and to emit the connection-lost/connection-restored events exactly
// once per outage (spec §9).
type reconnectCoordinator struct {
	conn    *Connection
	logger  logging.ApplicationLogger
	options Options

	mu              sync.Mutex
	lostEventFired  bool
	outageStartedAt time.Time
}

func newReconnectCoordinator(conn *Connection, options Options, logger logging.ApplicationLogger) *reconnectCoordinator {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &reconnectCoordinator{
		conn:    conn,
		logger:  logger,
		options: options,
	}
}

// onTransportClosed is the transport's onClose callback. It marks the
// outage start, emits connection-lost at most once, and kicks off the
// reconnect loop if the connection wants one.
//
// A graceful Connection.Close() disposes the transport itself, which on a
// real transport re-enters here synchronously through this same onClose
// callback. By the time that happens closed is already set, so the early
// return below is what keeps a caller-initiated close from also emitting
// connection-lost/connection-closed on top of the closed Close() already
// emitted (spec §4.6: closed and connection-closed each fire exactly once).
func (rc *reconnectCoordinator) onTransportClosed(ctx context.Context) {
	if rc.conn.isClosed() {
		return
	}

	rc.conn.pending.failAll()

	if !rc.options.AutoReconnect || !rc.conn.shouldReconnect() {
		// Terminal path: auto-reconnect is disabled, or the caller
		// disabled should_reconnect without closing. connection-closed
		// fires only in the first case; in the second only closed fires.
		// Close handles parent-map removal and emits closed (spec §4.5's
		// terminal-path bullet).
		if !rc.options.AutoReconnect {
			rc.conn.events.EmitConnectionClosed()
		}
		rc.conn.Close()
		return
	}

	rc.mu.Lock()
	if rc.outageStartedAt.IsZero() {
		rc.outageStartedAt = time.Now()
	}
	alreadyFired := rc.lostEventFired
	rc.lostEventFired = true
	rc.mu.Unlock()

	if !alreadyFired {
		rc.conn.events.EmitConnectionLost()
	}

	rc.start(ctx)
}

// start enters the reconnect loop, guarded by the transport's
// reconnecting flag: "at most one reconnect loop runs per connection at
// a time" (spec §3 invariant, §4.5 "If the transport is already
// reconnecting, exit. Mark reconnecting.").
func (rc *reconnectCoordinator) start(ctx context.Context) {
	if rc.conn.transport.IsReconnecting() {
		return
	}
	rc.conn.transport.SetReconnecting(true)

	go rc.loop(ctx)
}

func (rc *reconnectCoordinator) loop(ctx context.Context) {
	defer rc.conn.transport.SetReconnecting(false)

	maxTries := rc.options.MaxReconnectTries
	for pass := 1; ; pass++ {
		if ctx.Err() != nil {
			return
		}
		if !rc.conn.shouldReconnect() {
			return
		}

		failedConnects := int(atomic.LoadInt32(&rc.conn.reconnectTry))
		if rc.options.MaxReconnectTriesSet && failedConnects >= maxTries {
			rc.logger.Error("giving up after %d failed reconnect attempts", failedConnects)
			rc.conn.events.EmitConnectionClosed()
			rc.conn.forceClose(ErrMaxRetriesExceeded)
			return
		}

		// spec §4.5 step 1: wait reconnect_interval before every attempt
		// after the first; the first attempt fires immediately.
		if pass > 1 {
			rc.logger.Debug("reconnect attempt %d in %v", pass, rc.options.ReconnectInterval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(rc.options.ReconnectInterval):
			}
			// spec §4.5 step 2: re-check should_reconnect after the wait,
			// in case Close() flipped it while we were sleeping.
			if !rc.conn.shouldReconnect() {
				return
			}
		}

		rc.conn.transport.Reset()
		if err := rc.conn.circuit.Execute(func() error { return rc.conn.transport.Connect(ctx) }); err != nil {
			rc.logger.Warn("reconnect attempt %d failed: %v", pass, err)
			rc.conn.incrementReconnectTry()
			rc.conn.resetResubscribeTry()
			continue
		}

		if err := rc.processReconnect(ctx); err != nil {
			rc.logger.Error("post-reconnect handshake failed: %v", err)

			resubAttempt := rc.conn.incrementResubscribeTry()
			if rc.options.MaxResubscribeTriesSet && resubAttempt >= rc.options.MaxResubscribeTries {
				rc.logger.Error("giving up after %d failed resubscribe attempts", resubAttempt)
				rc.conn.events.EmitConnectionClosed()
				rc.conn.forceClose(ErrMaxRetriesExceeded)
				return
			}

			if rc.conn.transport.IsOpen() {
				_ = rc.conn.transport.Close()
			}
			continue
		}

		rc.conn.resetReconnectTry()

		rc.mu.Lock()
		outageStart := rc.outageStartedAt
		rc.outageStartedAt = time.Time{}
		rc.lostEventFired = false
		rc.mu.Unlock()

		if !outageStart.IsZero() {
			rc.conn.events.EmitConnectionRestored(time.Since(outageStart))
		}
		return
	}
}

// processReconnect re-authenticates (if the connection was previously
// authenticated) and resubscribes every request-bound subscription,
// batching concurrent SubscribeAndWait calls via errgroup bounded by
// Options.MaxConcurrentResubscriptions (spec §4.5). A single failure
// anywhere in a batch, or the transport closing mid-batch, fails the
// whole call; the caller (loop) is responsible for the resubscribe_try
// counter and retry-cap decision (spec §4.5 step 5), since that counter
// tracks failed process-reconnect attempts, not individual subscriptions.
func (rc *reconnectCoordinator) processReconnect(ctx context.Context) error {
	if rc.conn.isAuthenticated() {
		if !rc.conn.transport.IsOpen() {
			return fmt.Errorf("%w: transport not open for re-authentication", ErrAuthenticationFailed)
		}
		if err := rc.conn.client.Authenticate(ctx, rc.conn); err != nil {
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
	}

	subs := rc.conn.subs.requestBound()
	if len(subs) == 0 {
		return nil
	}

	maxConcurrent := rc.options.MaxConcurrentResubscriptions
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	for _, group := range batch(subs, maxConcurrent) {
		if !rc.conn.transport.IsOpen() {
			return fmt.Errorf("%w: transport closed mid-batch", ErrResubscribeFailed)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, sub := range group {
			sub := sub
			g.Go(func() error {
				if err := rc.conn.client.SubscribeAndWait(gctx, rc.conn, sub); err != nil {
					return fmt.Errorf("%w: %v", ErrResubscribeFailed, err)
				}
				sub.Confirmed = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	return nil
}

func batch(subs []*Subscription, size int) [][]*Subscription {
	var out [][]*Subscription
	for i := 0; i < len(subs); i += size {
		end := i + size
		if end > len(subs) {
			end = len(subs)
		}
		out = append(out, subs[i:end])
	}
	return out
}
