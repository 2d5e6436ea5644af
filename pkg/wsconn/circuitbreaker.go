package wsconn

import (
	"fmt"
	"sync"
	"time"
)

// CircuitBreaker wraps a fallible operation, tripping open after
// maxFailures consecutive failures and refusing calls until resetTimeout
// elapses. Grounded on pkg/websocket/performance/circuit_breaker.go.
// Used around each Transport.Connect attempt, independent of the
// reconnect FSM's own retry-cap counters.
type CircuitBreaker interface {
	Execute(fn func() error) error
	GetState() string
}

type circuitBreaker struct {
	mutex sync.Mutex

	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        string // "closed", "open", "half-open"
}

// NewCircuitBreaker returns a CircuitBreaker that opens after maxFailures
// consecutive failures and attempts a half-open probe after resetTimeout.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) CircuitBreaker {
	return &circuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        "closed",
	}
}

func (cb *circuitBreaker) Execute(fn func() error) error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == "open" {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = "half-open"
			cb.failures = 0
		} else {
			return fmt.Errorf("circuit breaker open")
		}
	}

	err := fn()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = "open"
		}
		return err
	}

	if cb.state == "half-open" {
		cb.state = "closed"
	}
	cb.failures = 0
	return nil
}

func (cb *circuitBreaker) GetState() string {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}
