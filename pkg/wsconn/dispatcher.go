package wsconn

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lumenmarkets/streamconn/internal/logging"
)

// dispatcher implements the message dispatch pipeline (spec §4.4):
// optional validation -> parse -> pending-request sweep/correlate ->
// subscription fan-out -> unhandled-message emission. Grounded on
// pkg/websocket/connection/manager.go's dispatchMessage, generalized
// behind Codec/Client instead of a single hardcoded exchange format.
type dispatcher struct {
	codec     Codec
	client    Client
	validator MessageValidator
	pending   *pendingRegistry
	subs      *subscriptionRegistry
	events    *eventBus
	metrics   Metrics
	options   Options
	logger    logging.ApplicationLogger
	conn      *Connection
}

func newDispatcher(conn *Connection, codec Codec, client Client, validator MessageValidator, pending *pendingRegistry, subs *subscriptionRegistry, events *eventBus, metrics Metrics, options Options, logger logging.ApplicationLogger) *dispatcher {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &dispatcher{
		conn:      conn,
		codec:     codec,
		client:    client,
		validator: validator,
		pending:   pending,
		subs:      subs,
		events:    events,
		metrics:   metrics,
		options:   options,
		logger:    logger,
	}
}

// dispatch runs one raw payload through the full pipeline. It never
// returns an error to the caller (the transport's onMessage callback);
// failures are logged and, where a subscription is implicated, routed to
// that subscription's ErrorHandler.
func (d *dispatcher) dispatch(raw string) {
	start := time.Now()
	if d.metrics != nil {
		d.metrics.IncrementReceived()
	}

	if raw == "" {
		if d.metrics != nil {
			d.metrics.IncrementDropped()
		}
		return
	}

	if d.validator != nil {
		if err := d.validator.ValidateMessage(raw); err != nil {
			d.logger.Warn("dropping message that failed validation: %v", err)
			if d.metrics != nil {
				d.metrics.IncrementDropped()
			}
			return
		}
	}

	value, err := d.parse(raw)
	if err != nil {
		d.logger.Error("failed to parse message: %v", err)
		if d.metrics != nil {
			d.metrics.IncrementDropped()
		}
		return
	}

	frame := Frame{
		Value:      value,
		ReceivedAt: time.Now(),
	}
	if d.options.OutputOriginalData {
		frame.Raw = raw
		frame.HasRaw = true
	}

	handled, continueDispatch := d.pending.checkAndSweep(frame.Value, d.options.ContinueOnQueryResponse)
	if handled && !continueDispatch {
		d.finish(start)
		return
	}

	fanoutStart := time.Now()
	matched := d.fanOutToSubscriptions(frame)
	d.warnIfSlow(fanoutStart)

	if matched {
		d.finish(start)
		return
	}

	if !handled {
		if !d.options.UnhandledMessageExpected {
			d.logger.Warn("unhandled message with no matching subscription")
		}
		d.events.EmitUnhandledMessage(frame)
	}

	d.finish(start)
}

// warnIfSlow logs once per frame if the whole subscription-handler
// sequence took longer than Options.SlowHandlerThreshold (spec §4.4
// step 6: "Time the whole handler sequence; if > 500 ms wall-clock,
// emit a warning").
func (d *dispatcher) warnIfSlow(fanoutStart time.Time) {
	if d.options.SlowHandlerThreshold <= 0 {
		return
	}
	if elapsed := time.Since(fanoutStart); elapsed > d.options.SlowHandlerThreshold {
		d.logger.Warn("message processing slow: handler sequence took %v, exceeding threshold %v", elapsed, d.options.SlowHandlerThreshold)
	}
}

// parse retries once with the payload wrapped in quotes (spec §4.4 step
// 3), covering codecs that choke on a bare scalar frame (e.g. a raw
// numeric or unquoted string payload some servers send for heartbeats).
func (d *dispatcher) parse(raw string) (interface{}, error) {
	value, err := d.codec.Parse(raw)
	if err == nil {
		return value, nil
	}

	if value, rerr := d.codec.Parse(strconv.Quote(raw)); rerr == nil {
		return value, nil
	}
	return nil, err
}

// fanOutToSubscriptions matches frame against every subscription and
// invokes the matching ones' handlers, returning true if at least one
// subscription claimed the frame.
func (d *dispatcher) fanOutToSubscriptions(frame Frame) bool {
	matched := false
	for _, sub := range d.subs.snapshot() {
		key := sub.Request
		if key == nil {
			key = sub.Identifier
		}
		if key == nil || !d.client.Matches(d.conn, frame.Value, key) {
			continue
		}
		matched = true
		d.invokeHandler(sub, frame)
	}
	return matched
}

func (d *dispatcher) invokeHandler(sub *Subscription, frame Frame) {
	value := frame.Value
	if sub.Request != nil {
		transformed, err := d.client.Transform(frame.Value)
		if err != nil {
			d.handlerError(sub, fmt.Errorf("failed to transform frame: %w", err))
			return
		}
		value = transformed
	}

	defer func() {
		if r := recover(); r != nil {
			d.handlerError(sub, fmt.Errorf("subscription handler panicked: %v", r))
		}
	}()

	if sub.Handler != nil {
		sub.Handler(value)
	}
}

func (d *dispatcher) handlerError(sub *Subscription, err error) {
	d.logger.Error("subscription handler error: %v", err)
	if sub.ErrorHandler != nil {
		func() {
			defer func() { recover() }()
			sub.ErrorHandler(err)
		}()
	}
}

func (d *dispatcher) finish(start time.Time) {
	if d.metrics != nil {
		d.metrics.IncrementProcessed(time.Since(start))
	}
}
