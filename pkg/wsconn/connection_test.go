package wsconn_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/lumenmarkets/streamconn/pkg/wsconn"
)

var _ = Describe("graceful close", func() {
	// A graceful Close on a transport whose Dispose re-enters onClose
	// synchronously (as GorillaTransport's does) must still emit closed
	// exactly once, connection-closed zero times, and deregister from the
	// parent client exactly once.
	It("emits closed exactly once and never connection-closed, even when Dispose re-enters onClose", func() {
		transport := newFakeTransport(nil)
		client := &mockClient{}
		client.On("Deregister", mock.Anything).Return()

		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = true
		conn := newTestConnection(transport, client, opts)
		Expect(conn.Open(context.Background())).To(Succeed())

		var closedCount, connClosedCount, lostCount int
		conn.OnClosed(func() { closedCount++ })
		conn.OnConnectionClosed(func() { connClosedCount++ })
		conn.OnConnectionLost(func() { lostCount++ })

		Expect(conn.Close()).To(Succeed())

		Expect(closedCount).To(Equal(1))
		Expect(connClosedCount).To(Equal(0))
		Expect(lostCount).To(Equal(0))
		client.AssertNumberOfCalls(GinkgoT(), "Deregister", 1)

		// idempotent: a second Close must not re-fire anything.
		Expect(conn.Close()).To(Succeed())
		Expect(closedCount).To(Equal(1))
		client.AssertNumberOfCalls(GinkgoT(), "Deregister", 1)
	})

	It("removes the connection from the parent client's map on an unexpected terminal close", func() {
		transport := newFakeTransport(nil)
		client := &mockClient{}
		client.On("Deregister", mock.Anything).Return()

		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = false
		conn := newTestConnection(transport, client, opts)
		Expect(conn.Open(context.Background())).To(Succeed())

		var closedCount, connClosedCount int
		conn.OnClosed(func() { closedCount++ })
		conn.OnConnectionClosed(func() { connClosedCount++ })

		transport.simulateClose()

		Eventually(func() int { return closedCount }).Should(Equal(1))
		Expect(connClosedCount).To(Equal(1))
		client.AssertCalled(GinkgoT(), "Deregister", conn)
	})
})
