package wsconn_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/lumenmarkets/streamconn/pkg/wsconn"
)

// capturingLogger records every formatted line passed to Warn, letting
// scenario-6-style assertions grep captured output instead of needing a
// real zap sink.
type capturingLogger struct {
	mu    sync.Mutex
	warns []string
}

func newCapturingLogger() *capturingLogger { return &capturingLogger{} }

func (l *capturingLogger) Debug(string, ...interface{}) {}
func (l *capturingLogger) Info(string, ...interface{})  {}

func (l *capturingLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(msg, args...))
}

func (l *capturingLogger) Error(string, ...interface{}) {}

func (l *capturingLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.warns))
	copy(out, l.warns)
	return out
}

// fakeTransport is a hand-rolled Transport double: connectResults is
// consumed in order by each Connect call, letting tests script a
// failure followed by a success exactly as scenario 4/5 in spec.md §8
// describe. It is not a mock.Mock double because its job is to drive
// real callback sequencing (onOpen/onMessage/onClose), not just record
// calls.
type fakeTransport struct {
	mu sync.Mutex

	connectResults []error
	connectCalls   int
	open           bool
	reconnecting   bool
	sent           []string

	onOpen    func()
	onMessage func(string)
	onClose   func()
	onError   func(error)
}

func newFakeTransport(connectResults ...error) *fakeTransport {
	return &fakeTransport{connectResults: connectResults}
}

func (t *fakeTransport) SetCallbacks(onOpen func(), onMessage func(string), onClose func(), onError func(error)) {
	t.onOpen, t.onMessage, t.onClose, t.onError = onOpen, onMessage, onClose, onError
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	idx := t.connectCalls
	t.connectCalls++
	var err error
	if idx < len(t.connectResults) {
		err = t.connectResults[idx]
	}
	if err == nil {
		t.open = true
	}
	t.mu.Unlock()

	if err == nil && t.onOpen != nil {
		t.onOpen()
	}
	return err
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	wasOpen := t.open
	t.open = false
	t.mu.Unlock()
	if wasOpen && t.onClose != nil {
		t.onClose()
	}
	return nil
}

func (t *fakeTransport) Reset() {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
}

func (t *fakeTransport) Send(data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return wsconn.ErrNotConnected
	}
	t.sent = append(t.sent, data)
	return nil
}

// Dispose mirrors GorillaTransport.Dispose, which calls Close and so
// re-enters onClose synchronously on a connection that is already
// tearing itself down - the reentrancy Connection.Close must tolerate.
func (t *fakeTransport) Dispose() {
	_ = t.Close()
}

func (t *fakeTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *fakeTransport) IsReconnecting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnecting
}

func (t *fakeTransport) SetReconnecting(v bool) {
	t.mu.Lock()
	t.reconnecting = v
	t.mu.Unlock()
}

// deliver simulates an inbound frame arriving on the transport.
func (t *fakeTransport) deliver(raw string) {
	if t.onMessage != nil {
		t.onMessage(raw)
	}
}

// simulateClose simulates an unexpected remote close (as opposed to a
// caller-initiated Close()).
func (t *fakeTransport) simulateClose() {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	if t.onClose != nil {
		t.onClose()
	}
}

func (t *fakeTransport) sentMessages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	copy(out, t.sent)
	return out
}

// mockClient is a testify/mock.Mock-based double for the Client
// collaborator (spec.md §6), matching the donor test suite's
// mock.Mock-based fakes with .On(...).Return(...).
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Authenticate(ctx context.Context, conn *wsconn.Connection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *mockClient) SubscribeAndWait(ctx context.Context, conn *wsconn.Connection, sub *wsconn.Subscription) error {
	args := m.Called(ctx, conn, sub)
	return args.Error(0)
}

func (m *mockClient) Unsubscribe(ctx context.Context, conn *wsconn.Connection, sub *wsconn.Subscription) error {
	args := m.Called(ctx, conn, sub)
	return args.Error(0)
}

func (m *mockClient) Matches(conn *wsconn.Connection, frame interface{}, requestOrIdentifier interface{}) bool {
	args := m.Called(conn, frame, requestOrIdentifier)
	return args.Bool(0)
}

func (m *mockClient) Transform(frame interface{}) (interface{}, error) {
	args := m.Called(frame)
	return args.Get(0), args.Error(1)
}

func (m *mockClient) Deregister(conn *wsconn.Connection) {
	m.Called(conn)
}

// jsonCodec parses frames as plain map[string]interface{} JSON, enough
// to exercise the dispatcher without pulling in examplecodec.
type jsonCodec struct{}

func (jsonCodec) Parse(payload string) (interface{}, error) {
	var value map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, err
	}
	return value, nil
}
