package wsconn_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/lumenmarkets/streamconn/pkg/wsconn"
)

var _ = Describe("subscription registry and facade", func() {
	var (
		transport *fakeTransport
		client    *mockClient
		conn      *wsconn.Connection
	)

	BeforeEach(func() {
		transport = newFakeTransport(nil)
		client = &mockClient{}
		client.On("Deregister", mock.Anything).Return()
		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = false
		conn = newTestConnection(transport, client, opts)
		Expect(conn.Open(context.Background())).To(Succeed())
	})

	AfterEach(func() {
		_ = conn.Close()
	})

	It("invokes handlers for one frame in subscription-insertion order", func() {
		var order []int
		client.On("Matches", conn, mock.Anything, mock.Anything).Return(true)

		for i, id := range []string{"a", "b", "c"} {
			idx := i
			sub := &wsconn.Subscription{
				Identifier:       id,
				UserSubscription: true,
				Handler:          func(interface{}) { order = append(order, idx) },
			}
			Expect(conn.AddSubscription(context.Background(), sub)).To(Succeed())
		}

		transport.deliver(`{"channel":"any"}`)

		Eventually(func() []int { return order }).Should(Equal([]int{0, 1, 2}))
	})

	It("finds a subscription by its request payload", func() {
		sub := &wsconn.Subscription{Request: map[string]string{"op": "subscribe", "channel": "trades"}, UserSubscription: true, Handler: func(interface{}) {}}
		client.On("SubscribeAndWait", mock.Anything, conn, sub).Return(nil)
		Expect(conn.AddSubscription(context.Background(), sub)).To(Succeed())

		found := conn.GetSubscriptionByRequest(func(req interface{}) bool {
			m, ok := req.(map[string]string)
			return ok && m["channel"] == "trades"
		})
		Expect(found).To(Equal(sub))
	})

	It("closes the whole connection once the last user subscription is closed", func() {
		sub := &wsconn.Subscription{Identifier: "only", UserSubscription: true, Handler: func(interface{}) {}}
		Expect(conn.AddSubscription(context.Background(), sub)).To(Succeed())
		Expect(conn.Stats().SubscriptionCount).To(Equal(1))

		var closedFired bool
		conn.OnClosed(func() { closedFired = true })

		Expect(conn.CloseSubscription(context.Background(), sub.ID)).To(Succeed())
		Expect(closedFired).To(BeTrue())
		Expect(conn.Stats().SubscriptionCount).To(Equal(0))
	})
})
