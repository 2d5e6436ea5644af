package wsconn

import "errors"

// Sentinel errors surfaced across the connection facade (spec §7).
var (
	// ErrNotConnected is returned by Send/SendAndWait when the transport is
	// not currently open.
	ErrNotConnected = errors.New("wsconn: not connected")

	// ErrClosed names the state of a connection on which Close has run.
	// No facade method returns it: Send and SendAndWait after Close fail
	// with the transport's own error (ErrNotConnected for the transports
	// in this module).
	ErrClosed = errors.New("wsconn: connection closed")

	// ErrPendingTimeout is returned by SendAndWait when its deadline elapses
	// without a matching frame arriving.
	ErrPendingTimeout = errors.New("wsconn: pending request timed out")

	// ErrPendingAborted is returned by SendAndWait when the connection
	// closes (or the transport socket closes) while the request is still
	// outstanding.
	ErrPendingAborted = errors.New("wsconn: pending request aborted by close")

	// ErrRateLimited is returned by Send/SendAndWait when the outbound
	// token bucket is exhausted.
	ErrRateLimited = errors.New("wsconn: send rate limit exceeded")

	// ErrAuthenticationFailed is returned internally by processReconnect
	// when the client-supplied Authenticate callback fails; it is never
	// surfaced past the reconnect loop (spec §7 propagation policy).
	ErrAuthenticationFailed = errors.New("wsconn: authentication failed during reconnect")

	// ErrResubscribeFailed marks a failed resubscription batch during
	// processReconnect.
	ErrResubscribeFailed = errors.New("wsconn: resubscribe failed during reconnect")

	// ErrMaxRetriesExceeded is the terminal error recorded when the
	// reconnect loop gives up.
	ErrMaxRetriesExceeded = errors.New("wsconn: max reconnect/resubscribe attempts exceeded")
)
