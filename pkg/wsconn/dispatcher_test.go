package wsconn_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/lumenmarkets/streamconn/internal/logging"
	"github.com/lumenmarkets/streamconn/pkg/wsconn"
)

func newTestConnection(transport *fakeTransport, client *mockClient, opts wsconn.Options) *wsconn.Connection {
	return wsconn.NewConnection("test", transport, client, jsonCodec{}, nil, opts, logging.NewNoOpLogger())
}

var _ = Describe("message dispatch", func() {
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

	// Scenario 1: happy dispatch.
	It("routes a matching frame to its subscription handler and emits no unhandled-message", func() {
		var received interface{}
		unhandled := false
		conn.OnUnhandledMessage(func(interface{}) { unhandled = true })

		client.On("Matches", conn, mock.Anything, "ticker").Return(true)

		sub := &wsconn.Subscription{
			Identifier:       "ticker",
			UserSubscription: true,
			Handler:          func(frame interface{}) { received = frame },
		}
		Expect(conn.AddSubscription(context.Background(), sub)).To(Succeed())

		transport.deliver(`{"channel":"ticker","p":1}`)

		Eventually(func() interface{} { return received }).ShouldNot(BeNil())
		Expect(unhandled).To(BeFalse())
	})

	It("emits unhandled-message when no pending request or subscription claims the frame", func() {
		var gotFrame interface{}
		conn.OnUnhandledMessage(func(f interface{}) { gotFrame = f })

		transport.deliver(`{"channel":"unknown"}`)

		Eventually(func() interface{} { return gotFrame }).ShouldNot(BeNil())
	})

	It("silently drops an empty frame without logging or emitting unhandled-message", func() {
		logger := newCapturingLogger()
		quietTransport := newFakeTransport(nil)
		quietClient := &mockClient{}
		quietClient.On("Deregister", mock.Anything).Return()
		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = false
		quietConn := wsconn.NewConnection("quiet", quietTransport, quietClient, jsonCodec{}, nil, opts, logger)
		Expect(quietConn.Open(context.Background())).To(Succeed())
		defer quietConn.Close()

		var gotFrame interface{}
		quietConn.OnUnhandledMessage(func(f interface{}) { gotFrame = f })

		quietTransport.deliver("")

		Consistently(func() interface{} { return gotFrame }, 100*time.Millisecond).Should(BeNil())
		Expect(logger.warnings()).To(BeEmpty())
	})

	It("drops a frame that fails to parse even after the quoted retry", func() {
		var gotFrame interface{}
		conn.OnUnhandledMessage(func(f interface{}) { gotFrame = f })

		transport.deliver(`not valid json {{{`)

		Consistently(func() interface{} { return gotFrame }, 100*time.Millisecond).Should(BeNil())
	})

	// Scenario 2: request/response correlation.
	It("resolves SendAndWait from a matching frame without reaching subscriptions when continueOnQueryResponse is false", func() {
		client.On("Matches", conn, mock.Anything, "id-match").Return(true)
		var subSaw bool
		sub := &wsconn.Subscription{
			Identifier:       "id-match",
			UserSubscription: true,
			Handler:          func(interface{}) { subSaw = true },
		}
		Expect(conn.AddSubscription(context.Background(), sub)).To(Succeed())

		resultCh := make(chan interface{}, 1)
		go func() {
			pred := func(frame interface{}) bool {
				m, ok := frame.(map[string]interface{})
				return ok && m["id"] == float64(7)
			}
			result, err := conn.SendAndWait(context.Background(), `{"op":"auth"}`, pred, 2*time.Second)
			Expect(err).ToNot(HaveOccurred())
			resultCh <- result
		}()

		Eventually(func() int { return len(transport.sentMessages()) }).Should(Equal(1))
		transport.deliver(`{"id":7,"ok":true}`)

		var result interface{}
		Eventually(resultCh).Should(Receive(&result))
		Expect(result).ToNot(BeNil())
		Expect(subSaw).To(BeFalse())
	})

	It("still offers the frame to subscriptions when continueOnQueryResponse is true", func() {
		transport2 := newFakeTransport(nil)
		client2 := &mockClient{}
		client2.On("Deregister", mock.Anything).Return()
		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = false
		opts.ContinueOnQueryResponse = true
		conn2 := newTestConnection(transport2, client2, opts)
		Expect(conn2.Open(context.Background())).To(Succeed())
		defer conn2.Close()

		client2.On("Matches", conn2, mock.Anything, "id-match").Return(true)
		var subSaw bool
		sub := &wsconn.Subscription{
			Identifier:       "id-match",
			UserSubscription: true,
			Handler:          func(interface{}) { subSaw = true },
		}
		Expect(conn2.AddSubscription(context.Background(), sub)).To(Succeed())

		pred := func(frame interface{}) bool {
			m, ok := frame.(map[string]interface{})
			return ok && m["id"] == float64(9)
		}
		go conn2.SendAndWait(context.Background(), `{"op":"ping"}`, pred, time.Second)

		Eventually(func() int { return len(transport2.sentMessages()) }).Should(Equal(1))
		transport2.deliver(`{"id":9}`)

		Eventually(func() bool { return subSaw }).Should(BeTrue())
	})

	// Scenario 3: pending timeout.
	It("times out SendAndWait with ErrPendingTimeout when no frame ever matches", func() {
		pred := func(interface{}) bool { return false }
		_, err := conn.SendAndWait(context.Background(), `{"op":"noop"}`, pred, 50*time.Millisecond)
		Expect(err).To(MatchError(wsconn.ErrPendingTimeout))

		transport.deliver(`{"channel":"anything"}`)
	})

	// Scenario 6: slow handler warning.
	It("logs a processing-slow warning when the handler sequence exceeds the threshold", func() {
		slowTransport := newFakeTransport(nil)
		slowClient := &mockClient{}
		slowClient.On("Deregister", mock.Anything).Return()
		opts := wsconn.DefaultOptions()
		opts.AutoReconnect = false
		opts.SlowHandlerThreshold = 50 * time.Millisecond
		logger := newCapturingLogger()
		slowConn := wsconn.NewConnection("slow", slowTransport, slowClient, jsonCodec{}, nil, opts, logger)
		Expect(slowConn.Open(context.Background())).To(Succeed())
		defer slowConn.Close()

		slowClient.On("Matches", slowConn, mock.Anything, "ticker").Return(true)
		sub := &wsconn.Subscription{
			Identifier:       "ticker",
			UserSubscription: true,
			Handler:          func(interface{}) { time.Sleep(100 * time.Millisecond) },
		}
		Expect(slowConn.AddSubscription(context.Background(), sub)).To(Succeed())

		slowTransport.deliver(`{"channel":"ticker"}`)

		Eventually(func() []string { return logger.warnings() }).Should(ContainElement(ContainSubstring("message processing slow")))
	})
})
