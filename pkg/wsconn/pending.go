package wsconn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingRequest correlates one outgoing request with a future inbound
// frame (spec §3 "PendingRequest", §4.2). done is a manual-reset signal:
// closing it exactly once is how match/timeout/close-sweep all agree on
// "signalled exactly once" (spec invariant, §3/§8).
type pendingRequest struct {
	id        uuid.UUID
	predicate func(frame interface{}) bool
	deadline  time.Time
	timer     *time.Timer

	mu        sync.Mutex
	completed bool
	result    interface{}
	err       error
	done      chan struct{}
}

func newPendingRequest(predicate func(frame interface{}) bool, timeout time.Duration) *pendingRequest {
	p := &pendingRequest{
		id:        uuid.New(),
		predicate: predicate,
		deadline:  time.Now().Add(timeout),
		done:      make(chan struct{}),
	}
	p.timer = time.AfterFunc(timeout, func() {
		p.signal(nil, ErrPendingTimeout)
	})
	return p
}

// signal completes the pending request exactly once; subsequent calls
// are no-ops, which is what lets timeout, match, and sweep-on-close race
// safely against each other.
func (p *pendingRequest) signal(result interface{}, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed {
		return false
	}
	p.completed = true
	p.result = result
	p.err = err
	p.timer.Stop()
	close(p.done)
	return true
}

func (p *pendingRequest) isCompleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// wait blocks until the request is signalled or ctx is cancelled.
func (p *pendingRequest) wait(ctx context.Context) (interface{}, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pendingRegistry is the registry of in-flight request/response
// correlations (spec §4.2). A single mutex guards the slice; iteration
// for matching is always done over a snapshot copy, per spec §3's
// "iteration is always done over a snapshot" invariant, so a handler
// (here, nothing user-supplied runs under the lock — predicates are
// trusted pure functions) can never deadlock the registry.
type pendingRegistry struct {
	mu      sync.Mutex
	entries []*pendingRequest
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{}
}

// register inserts a new pending request and arms its deadline.
func (r *pendingRegistry) register(predicate func(frame interface{}) bool, timeout time.Duration) *pendingRequest {
	p := newPendingRequest(predicate, timeout)
	r.mu.Lock()
	r.entries = append(r.entries, p)
	r.mu.Unlock()
	return p
}

// checkAndSweep implements spec §4.2's check_and_sweep: first it removes
// entries that already completed (timed out since the last sweep), then
// it applies predicate(frame) to the remaining entries in insertion
// order. The first match is signalled and removed; handled=true is
// returned along with whether dispatch should continue to subscriptions
// (continueOnMatch, set by the caller from Options.ContinueOnQueryResponse).
func (r *pendingRegistry) checkAndSweep(frame interface{}, continueOnMatch bool) (handled bool, continueDispatch bool) {
	r.mu.Lock()
	live := r.entries[:0:0]
	for _, p := range r.entries {
		if p.isCompleted() {
			continue
		}
		live = append(live, p)
	}
	r.entries = live
	snapshot := append([]*pendingRequest(nil), live...)
	r.mu.Unlock()

	for _, p := range snapshot {
		if p.predicate == nil || !p.predicate(frame) || !p.signal(frame, nil) {
			continue
		}
		r.mu.Lock()
		for i, e := range r.entries {
			if e == p {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		return true, continueOnMatch
	}

	return false, true
}

// failAll signals every still-outstanding entry with ErrPendingAborted
// and empties the registry. Invoked on transport close (spec §4.2).
func (r *pendingRegistry) failAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for _, p := range entries {
		p.signal(nil, ErrPendingAborted)
	}
}

func (r *pendingRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
