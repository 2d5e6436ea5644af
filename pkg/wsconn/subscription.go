package wsconn

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is a single registered interest in frames arriving on a
// Connection (spec §3 "Subscription"). Exactly one of Request/Identifier
// is normally used by a given Client implementation to decide what a
// frame belongs to; Matches is delegated to the Client so the core stays
// wire-format agnostic.
type Subscription struct {
	ID uuid.UUID

	// Request is the subscribe payload the Client used to open this
	// subscription, if any. Present for request-bound subscriptions,
	// which are the ones resent on reconnect (spec §4.5).
	Request interface{}

	// Identifier is an opaque matching key for subscriptions that were
	// never confirmed by a request/response handshake (e.g. attaching a
	// handler to frames already flowing). Identifier-only subscriptions
	// are never resent on reconnect (Open Question, resolved in
	// DESIGN.md).
	Identifier interface{}

	// UserSubscription marks a subscription created on behalf of an API
	// consumer, as opposed to a housekeeping subscription added with this
	// flag unset. CloseSubscription considers only user subscriptions
	// when deciding whether any interest remains.
	UserSubscription bool

	// Confirmed is set once the Client's SubscribeAndWait has returned
	// successfully. Unsubscribe is only issued for confirmed
	// subscriptions on close.
	Confirmed bool

	Handler      func(frame interface{})
	ErrorHandler func(err error)

	// Cancel, if set, is invoked exactly once when the subscription is
	// removed, regardless of whether removal came from the caller or
	// from connection teardown.
	Cancel func()
}

// subscriptionRegistry is the connection's subscription table (spec
// §4.3): an ordered set, not just a lookup table — spec §5 requires
// "subscription handlers for one frame are invoked in subscription-
// insertion order over a snapshot". order holds ids in insertion order;
// byID is the lookup index. A single mutex guards both; callers that
// need to iterate (dispatch, resubscribe) always work from a snapshot,
// never the live slice/map, so a subscription handler can itself call
// AddSubscription/Remove without deadlocking.
type subscriptionRegistry struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Subscription
	order []uuid.UUID
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{byID: make(map[uuid.UUID]*Subscription)}
}

func (r *subscriptionRegistry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[sub.ID]; !exists {
		r.order = append(r.order, sub.ID)
	}
	r.byID[sub.ID] = sub
}

func (r *subscriptionRegistry) remove(id uuid.UUID) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return sub
}

func (r *subscriptionRegistry) get(id uuid.UUID) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// snapshot returns a stable, insertion-ordered copy of all
// subscriptions, safe to range over without holding the registry lock.
func (r *subscriptionRegistry) snapshot() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// getByRequest returns the first subscription (in insertion order) whose
// Request satisfies predicate (spec §4.3's get_by_request).
func (r *subscriptionRegistry) getByRequest(predicate func(request interface{}) bool) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		sub := r.byID[id]
		if sub.Request != nil && predicate(sub.Request) {
			return sub
		}
	}
	return nil
}

// requestBound returns an insertion-ordered snapshot of subscriptions
// carrying a non-nil Request, i.e. the ones processReconnect must
// resubscribe (spec §4.5).
func (r *subscriptionRegistry) requestBound() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, 0, len(r.order))
	for _, id := range r.order {
		if sub := r.byID[id]; sub.Request != nil {
			out = append(out, sub)
		}
	}
	return out
}

// countUser reports how many user-created subscriptions remain, used by
// CloseSubscription to decide whether to close the whole connection.
func (r *subscriptionRegistry) countUser() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sub := range r.byID {
		if sub.UserSubscription {
			n++
		}
	}
	return n
}

func (r *subscriptionRegistry) clear() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	r.byID = make(map[uuid.UUID]*Subscription)
	r.order = nil
	return out
}
