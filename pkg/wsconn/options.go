package wsconn

import (
	"fmt"
	"time"
)

// Options holds the tunables the core reads from (spec §6 "Options
// recognized by the core"). It is assembled by the caller — typically
// from internal/config, which loads it from the environment — and handed
// to NewConnection alongside the Transport and Client collaborators.
type Options struct {
	// SocketNoDataTimeout is the transport-level idle timeout; a
	// Transport implementation (e.g. GorillaTransport) applies it and
	// reports a stale connection as a transport error.
	SocketNoDataTimeout time.Duration

	// AutoReconnect enables the reconnect path on transport close.
	AutoReconnect bool

	// ReconnectInterval is the delay observed before each reconnect
	// attempt after the first.
	ReconnectInterval time.Duration

	// MaxReconnectTries bounds failed connect() attempts. It applies only
	// when MaxReconnectTriesSet is true; otherwise attempts are unlimited.
	MaxReconnectTries    int
	MaxReconnectTriesSet bool

	// MaxResubscribeTries bounds failed post-reconnect handshakes
	// (re-authentication plus resubscription). It applies only when
	// MaxResubscribeTriesSet is true; otherwise attempts are unlimited.
	MaxResubscribeTries    int
	MaxResubscribeTriesSet bool

	// MaxConcurrentResubscriptions is the batch size used when replaying
	// request-bound subscriptions after a successful reconnect.
	MaxConcurrentResubscriptions int

	// OutputOriginalData retains the raw frame string on ParsedFrame.
	OutputOriginalData bool

	// ContinueOnQueryResponse controls whether a frame that satisfied a
	// pending request is still offered to subscriptions.
	ContinueOnQueryResponse bool

	// UnhandledMessageExpected suppresses the warning log (but not the
	// event) for frames matched by neither a pending request nor any
	// subscription.
	UnhandledMessageExpected bool

	// Validation, when non-nil, is run as a pre-parse guard in the
	// dispatcher (supplemental feature, SPEC_FULL §3).
	Validation *ValidationConfig

	// RateLimitCapacity/RateLimitRefill configure the outbound token
	// bucket (supplemental feature, SPEC_FULL §2). Zero capacity disables
	// rate limiting.
	RateLimitCapacity int
	RateLimitRefill   time.Duration

	// SlowHandlerThreshold is the wall-clock budget for one frame's
	// dispatch sequence before a "processing slow" warning fires
	// (spec §4.4 step 6). Defaults to 500ms.
	SlowHandlerThreshold time.Duration
}

// DefaultOptions mirrors the shape of connection.DefaultConfig in the
// donor: a full set of conservative, production-safe values.
func DefaultOptions() Options {
	return Options{
		SocketNoDataTimeout:          60 * time.Second,
		AutoReconnect:                true,
		ReconnectInterval:            5 * time.Second,
		MaxConcurrentResubscriptions: 5,
		OutputOriginalData:           false,
		ContinueOnQueryResponse:      false,
		UnhandledMessageExpected:     false,
		RateLimitCapacity:            1000,
		RateLimitRefill:              time.Second,
		SlowHandlerThreshold:         500 * time.Millisecond,
	}
}

// ApplyDefaults fills zero-valued fields with DefaultOptions, the way
// connection.Config.ApplyDefaults does in the donor.
func (o *Options) ApplyDefaults() {
	d := DefaultOptions()

	if o.SocketNoDataTimeout == 0 {
		o.SocketNoDataTimeout = d.SocketNoDataTimeout
	}
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = d.ReconnectInterval
	}
	if o.MaxConcurrentResubscriptions == 0 {
		o.MaxConcurrentResubscriptions = d.MaxConcurrentResubscriptions
	}
	if o.RateLimitRefill == 0 {
		o.RateLimitRefill = d.RateLimitRefill
	}
	if o.SlowHandlerThreshold == 0 {
		o.SlowHandlerThreshold = d.SlowHandlerThreshold
	}
}

// Validate checks the options for internal consistency.
func (o *Options) Validate() error {
	if o.SocketNoDataTimeout < 0 {
		return fmt.Errorf("socket no-data timeout must not be negative")
	}
	if o.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect interval must be positive")
	}
	if o.MaxConcurrentResubscriptions <= 0 {
		return fmt.Errorf("max concurrent resubscriptions must be positive")
	}
	if o.MaxReconnectTriesSet && o.MaxReconnectTries <= 0 {
		return fmt.Errorf("max reconnect tries must be positive when set")
	}
	if o.MaxResubscribeTriesSet && o.MaxResubscribeTries <= 0 {
		return fmt.Errorf("max resubscribe tries must be positive when set")
	}
	if o.RateLimitCapacity < 0 {
		return fmt.Errorf("rate limit capacity must not be negative")
	}
	return nil
}
