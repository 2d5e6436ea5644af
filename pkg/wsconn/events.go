package wsconn

import (
	"sync"
	"time"

	"github.com/lumenmarkets/streamconn/internal/logging"
)

// eventBus is the connection's lifecycle event multicast (spec §9):
// connection-lost, connection-restored(duration), connection-closed,
// closed, activity-paused, activity-unpaused, unhandled-message(frame).
// Callbacks run synchronously on the invoking goroutine with no registry
// lock held, each wrapped in recover() so one faulty subscriber can't
// take down the dispatcher or reconnect loop that fired the event.
type eventBus struct {
	mu     sync.Mutex
	logger logging.ApplicationLogger

	onConnectionLost     []func()
	onConnectionRestored []func(time.Duration)
	onConnectionClosed   []func()
	onClosed             []func()
	onActivityPaused     []func()
	onActivityUnpaused   []func()
	onUnhandledMessage   []func(interface{})
}

func newEventBus(logger logging.ApplicationLogger) *eventBus {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &eventBus{logger: logger}
}

func (b *eventBus) OnConnectionLost(fn func())                 { b.addVoid(&b.onConnectionLost, fn) }
func (b *eventBus) OnConnectionRestored(fn func(time.Duration)) { b.addDuration(fn) }
func (b *eventBus) OnConnectionClosed(fn func())                { b.addVoid(&b.onConnectionClosed, fn) }
func (b *eventBus) OnClosed(fn func())                          { b.addVoid(&b.onClosed, fn) }
func (b *eventBus) OnActivityPaused(fn func())                  { b.addVoid(&b.onActivityPaused, fn) }
func (b *eventBus) OnActivityUnpaused(fn func())                { b.addVoid(&b.onActivityUnpaused, fn) }
func (b *eventBus) OnUnhandledMessage(fn func(interface{})) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUnhandledMessage = append(b.onUnhandledMessage, fn)
}

func (b *eventBus) addVoid(list *[]func(), fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*list = append(*list, fn)
}

func (b *eventBus) addDuration(fn func(time.Duration)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnectionRestored = append(b.onConnectionRestored, fn)
}

func (b *eventBus) emitVoid(name string, list []func()) {
	for _, fn := range list {
		b.safeCall(name, func() { fn() })
	}
}

func (b *eventBus) EmitConnectionLost() {
	b.mu.Lock()
	list := append([]func(){}, b.onConnectionLost...)
	b.mu.Unlock()
	b.emitVoid("connection-lost", list)
}

func (b *eventBus) EmitConnectionRestored(outage time.Duration) {
	b.mu.Lock()
	list := append([]func(time.Duration){}, b.onConnectionRestored...)
	b.mu.Unlock()
	for _, fn := range list {
		f := fn
		b.safeCall("connection-restored", func() { f(outage) })
	}
}

func (b *eventBus) EmitConnectionClosed() {
	b.mu.Lock()
	list := append([]func(){}, b.onConnectionClosed...)
	b.mu.Unlock()
	b.emitVoid("connection-closed", list)
}

func (b *eventBus) EmitClosed() {
	b.mu.Lock()
	list := append([]func(){}, b.onClosed...)
	b.mu.Unlock()
	b.emitVoid("closed", list)
}

func (b *eventBus) EmitActivityPaused() {
	b.mu.Lock()
	list := append([]func(){}, b.onActivityPaused...)
	b.mu.Unlock()
	b.emitVoid("activity-paused", list)
}

func (b *eventBus) EmitActivityUnpaused() {
	b.mu.Lock()
	list := append([]func(){}, b.onActivityUnpaused...)
	b.mu.Unlock()
	b.emitVoid("activity-unpaused", list)
}

func (b *eventBus) EmitUnhandledMessage(frame interface{}) {
	b.mu.Lock()
	list := append([]func(interface{}){}, b.onUnhandledMessage...)
	b.mu.Unlock()
	for _, fn := range list {
		f := fn
		b.safeCall("unhandled-message", func() { f(frame) })
	}
}

func (b *eventBus) safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in %s event subscriber: %v", event, r)
		}
	}()
	fn()
}
