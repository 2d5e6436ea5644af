package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenmarkets/streamconn/internal/config"
	"github.com/lumenmarkets/streamconn/internal/logging"
	"github.com/lumenmarkets/streamconn/pkg/wsconn"
	"github.com/lumenmarkets/streamconn/pkg/wsconn/examplecodec"
)

func marshalSubscribeRequest(req *examplecodec.SubscribeRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal subscribe request: %w", err)
	}
	return string(b), nil
}

func marshalUnsubscribeRequest(req *examplecodec.SubscribeRequest) (string, error) {
	unsub := *req
	unsub.Type = "unsubscribe"
	b, err := json.Marshal(&unsub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal unsubscribe request: %w", err)
	}
	return string(b), nil
}

// demoClient is a minimal wsconn.Client (spec.md §6) for the demo: it
// never authenticates, subscribes by sending an examplecodec
// SubscribeRequest and waiting for an echo with a matching id, and
// matches/transforms frames via examplecodec.Matches.
type demoClient struct {
	logger logging.ApplicationLogger
	nextID int64
}

func (c *demoClient) Authenticate(ctx context.Context, conn *wsconn.Connection) error {
	return nil
}

func (c *demoClient) SubscribeAndWait(ctx context.Context, conn *wsconn.Connection, sub *wsconn.Subscription) error {
	req, ok := sub.Request.(*examplecodec.SubscribeRequest)
	if !ok {
		return fmt.Errorf("demo client: subscription request is not a SubscribeRequest")
	}

	payload, err := marshalSubscribeRequest(req)
	if err != nil {
		return err
	}

	pred := func(frame interface{}) bool {
		env, ok := frame.(examplecodec.Envelope)
		return ok && env.ID == req.ID
	}

	_, err = conn.SendAndWait(ctx, payload, pred, 5*time.Second)
	return err
}

func (c *demoClient) Unsubscribe(ctx context.Context, conn *wsconn.Connection, sub *wsconn.Subscription) error {
	req, ok := sub.Request.(*examplecodec.SubscribeRequest)
	if !ok {
		return nil
	}
	payload, err := marshalUnsubscribeRequest(req)
	if err != nil {
		return err
	}
	return conn.Send(payload)
}

func (c *demoClient) Matches(conn *wsconn.Connection, frame interface{}, requestOrIdentifier interface{}) bool {
	return examplecodec.Matches(frame, requestOrIdentifier)
}

func (c *demoClient) Transform(frame interface{}) (interface{}, error) {
	return frame, nil
}

// Deregister is a no-op here: the demo drives a single connection
// directly rather than keying a map of them by transport id.
func (c *demoClient) Deregister(conn *wsconn.Connection) {}

// RunDemo opens a single connection against cfg, subscribes to the
// ticker channel for each symbol, logs lifecycle events, and blocks
// until ctx is cancelled. RunCLI passes a context that is never
// cancelled, so under the CLI it blocks until the process exits.
func RunDemo(ctx context.Context, cfg *config.Config, symbols []string, logger logging.ApplicationLogger) error {
	opts := cfg.Connection.ToOptions()

	transport := wsconn.NewGorillaTransport(wsconn.GorillaTransportConfig{
		URL:            cfg.Connection.URL,
		ConnectTimeout: cfg.Connection.ConnectTimeout,
		NoDataTimeout:  opts.SocketNoDataTimeout,
	}, wsconn.NewGorillaDialer(wsconn.GorillaTransportConfig{}), nil, logger)

	client := &demoClient{logger: logger}
	conn := wsconn.NewConnection(cfg.Connection.URL, transport, client, examplecodec.Codec{}, nil, opts, logger)

	conn.OnConnectionLost(func() { logger.Warn("connection lost") })
	conn.OnConnectionRestored(func(outage time.Duration) { logger.Info("connection restored after %v", outage) })
	conn.OnConnectionClosed(func() { logger.Warn("connection closed by remote/retry policy") })
	conn.OnClosed(func() { logger.Info("connection fully closed") })
	conn.OnUnhandledMessage(func(frame interface{}) { logger.Debug("unhandled frame: %+v", frame) })

	if err := conn.Open(ctx); err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer conn.Close()

	for _, symbol := range symbols {
		req := &examplecodec.SubscribeRequest{
			Type:    "subscribe",
			ID:      client.nextRequestID(),
			Channel: examplecodec.ChannelTicker,
			Symbol:  symbol,
		}
		sub := &wsconn.Subscription{
			Request:          req,
			UserSubscription: true,
			Handler: func(frame interface{}) {
				logger.Info("frame: %+v", frame)
			},
			ErrorHandler: func(err error) {
				logger.Error("subscription handler error: %v", err)
			},
		}
		if err := conn.AddSubscription(ctx, sub); err != nil {
			logger.Error("failed to subscribe to %s: %v", symbol, err)
		}
	}

	<-ctx.Done()
	return nil
}

func (c *demoClient) nextRequestID() int64 {
	c.nextID++
	return c.nextID
}
