package wsconn

import (
	"sync"
	"time"
)

// Metrics collects per-connection counters. Grounded on
// pkg/websocket/performance/metrics.go, with a Sent counter added since
// this core's Send/SendAndWait path didn't exist in the donor's
// read-only ConnectionManager.
type Metrics interface {
	IncrementReceived()
	IncrementSent()
	IncrementProcessed(latency time.Duration)
	IncrementDropped()
	IncrementConnectionError()
	IncrementReconnection()
	GetStats() map[string]interface{}
}

type metrics struct {
	mutex sync.RWMutex

	messagesReceived  int64
	messagesSent      int64
	messagesProcessed int64
	messagesDropped   int64
	connectionErrors  int64
	reconnectionCount int64
	lastMessageTime   time.Time
	processingLatency time.Duration
}

// NewMetrics returns the default in-memory Metrics implementation.
func NewMetrics() Metrics {
	return &metrics{}
}

func (m *metrics) IncrementReceived() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messagesReceived++
	m.lastMessageTime = time.Now()
}

func (m *metrics) IncrementSent() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messagesSent++
}

func (m *metrics) IncrementProcessed(latency time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messagesProcessed++
	m.processingLatency = latency
}

func (m *metrics) IncrementDropped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messagesDropped++
}

func (m *metrics) IncrementConnectionError() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.connectionErrors++
}

func (m *metrics) IncrementReconnection() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reconnectionCount++
}

func (m *metrics) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"messages_received":     m.messagesReceived,
		"messages_sent":         m.messagesSent,
		"messages_processed":    m.messagesProcessed,
		"messages_dropped":      m.messagesDropped,
		"connection_errors":     m.connectionErrors,
		"reconnection_count":    m.reconnectionCount,
		"last_message_time":     m.lastMessageTime,
		"processing_latency_ms": m.processingLatency.Milliseconds(),
	}
}
