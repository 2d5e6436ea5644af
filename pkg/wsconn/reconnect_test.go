package wsconn_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/lumenmarkets/streamconn/pkg/wsconn"
)

var _ = Describe("reconnect and resubscribe", func() {
	// Scenario 4: outage & recovery.
	It("re-authenticates and resubscribes request-bound subscriptions after a successful reconnect", func() {
		transport := newFakeTransport(nil, errors.New("dial refused"), nil)
		client := &mockClient{}
		client.On("Deregister", mock.Anything).Return().Maybe()

		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = true
		opts.ReconnectInterval = 10 * time.Millisecond
		opts.MaxConcurrentResubscriptions = 2

		conn := newTestConnection(transport, client, opts)
		Expect(conn.Open(context.Background())).To(Succeed())
		conn.SetAuthenticated(true)
		client.On("Authenticate", mock.Anything, conn).Return(nil)

		sub1 := &wsconn.Subscription{Request: map[string]interface{}{"channel": "r1"}, UserSubscription: true, Handler: func(interface{}) {}}
		sub2 := &wsconn.Subscription{Request: map[string]interface{}{"channel": "r2"}, UserSubscription: true, Handler: func(interface{}) {}}

		client.On("SubscribeAndWait", mock.Anything, conn, sub1).Return(nil)
		client.On("SubscribeAndWait", mock.Anything, conn, sub2).Return(nil)
		Expect(conn.AddSubscription(context.Background(), sub1)).To(Succeed())
		Expect(conn.AddSubscription(context.Background(), sub2)).To(Succeed())

		var lostCount, restoredCount int
		var outage time.Duration
		conn.OnConnectionLost(func() { lostCount++ })
		conn.OnConnectionRestored(func(d time.Duration) { restoredCount++; outage = d })

		transport.simulateClose()

		Eventually(func() int { return restoredCount }, 2*time.Second, 5*time.Millisecond).Should(Equal(1))
		Expect(lostCount).To(Equal(1))
		Expect(outage).To(BeNumerically(">=", 0))
		Expect(conn.Stats().Connected).To(BeTrue())

		client.AssertExpectations(GinkgoT())
		_ = conn.Close()
	})

	// Scenario 5: retry cap.
	It("gives up after max_reconnect_tries failed connects and emits closed/connection-closed exactly once", func() {
		transport := newFakeTransport(
			nil, // initial Open succeeds
			errors.New("fail 1"),
			errors.New("fail 2"),
			errors.New("fail 3"),
		)
		client := &mockClient{}
		client.On("Deregister", mock.Anything).Return()

		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = true
		opts.ReconnectInterval = 5 * time.Millisecond
		opts.MaxReconnectTries = 3
		opts.MaxReconnectTriesSet = true

		conn := newTestConnection(transport, client, opts)
		Expect(conn.Open(context.Background())).To(Succeed())

		var closedCount, connClosedCount int
		conn.OnClosed(func() { closedCount++ })
		conn.OnConnectionClosed(func() { connClosedCount++ })

		transport.simulateClose()

		Eventually(func() int { return closedCount }, 2*time.Second, 5*time.Millisecond).Should(Equal(1))
		Expect(connClosedCount).To(Equal(1))
		client.AssertCalled(GinkgoT(), "Deregister", conn)
		client.AssertNumberOfCalls(GinkgoT(), "Deregister", 1)

		// idempotent: closing again must not re-fire closed or deregister again.
		Expect(conn.Close()).To(Succeed())
		Expect(closedCount).To(Equal(1))
		Expect(connClosedCount).To(Equal(1))
		client.AssertNumberOfCalls(GinkgoT(), "Deregister", 1)
	})
})
