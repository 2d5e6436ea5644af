package wsconn

import (
	"context"
	"time"
)

// Frame is one parsed message delivered by the transport (spec's
// ParsedFrame, §3). Value holds the codec's parsed structured
// representation; Raw is populated only when Options.OutputOriginalData
// is set.
type Frame struct {
	Value      interface{}
	Raw        string
	HasRaw     bool
	ReceivedAt time.Time
}

// Codec parses a raw transport payload into a structured frame value.
// This is the only contract the core imposes on wire format (spec §6).
type Codec interface {
	Parse(payload string) (interface{}, error)
}

// Client is the parent-client collaborator spec §6 describes: it knows
// how to authenticate a connection, build and send subscribe/unsubscribe
// requests, and match/transform parsed frames against subscriptions.
// Grounded on the wiring shape of pkg/connectors/paradex/websocket/service.go
// (auth provider + per-exchange subscribe/matches logic) generalized
// behind a single interface so the core stays exchange-agnostic.
type Client interface {
	// Authenticate re-establishes authentication after a reconnect. Only
	// called when the connection was previously authenticated.
	Authenticate(ctx context.Context, conn *Connection) error

	// SubscribeAndWait (re)issues sub's subscribe request over conn and
	// waits for server confirmation. Used both for the initial
	// AddSubscription confirm step (if sub.Request != nil) and for
	// resubscription after reconnect.
	SubscribeAndWait(ctx context.Context, conn *Connection, sub *Subscription) error

	// Unsubscribe issues sub's unsubscribe request. Called from
	// CloseSubscription when the transport is still open and the
	// subscription had been confirmed.
	Unsubscribe(ctx context.Context, conn *Connection, sub *Subscription) error

	// Matches reports whether frame satisfies requestOrIdentifier, which
	// is either sub.Request (non-nil) or sub.Identifier.
	Matches(conn *Connection, frame interface{}, requestOrIdentifier interface{}) bool

	// Transform optionally rewrites a frame before it reaches a
	// request-bound subscription's handler (spec §4.4 step 5).
	Transform(frame interface{}) (interface{}, error)

	// Deregister removes conn from the parent client's transport-id-keyed
	// map (spec §3 Ownership: "removal from that map is the connection's
	// responsibility on terminal close"). Called exactly once, from
	// Connection.Close, regardless of which terminal path reached it
	// (spec §4.5's two terminal-path bullets, §4.6's close()).
	Deregister(conn *Connection)
}
