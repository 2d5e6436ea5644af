// Package examplecodec is a small JSON codec/matcher pair demonstrating
// how a real API-specific Client (spec.md §6) plugs into the wsconn
// core. It is not part of the core: it exists for the demo binary and
// for tests that want a concrete, richly-typed frame shape to dispatch.
// Grounded on pkg/websocket/base/types.go's TickerUpdate/TradeUpdate,
// with numerical.Decimal replaced by shopspring/decimal.Decimal since
// the donor's numerical package lives behind an unreachable replace
// directive (see DESIGN.md).
package examplecodec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Channel names this codec recognizes, mirroring the donor's BaseMessage.Channel.
const (
	ChannelTicker = "ticker"
	ChannelTrade  = "trade"
)

// Envelope is the outer shape every frame this codec parses shares,
// mirroring pkg/websocket/base/types.go's BaseMessage.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	ID      int64           `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TickerFrame mirrors base.TickerUpdate, decimal-typed.
type TickerFrame struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	BidPrice  decimal.Decimal `json:"bid_price,omitempty"`
	AskPrice  decimal.Decimal `json:"ask_price,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TradeFrame mirrors base.TradeUpdate, decimal-typed.
type TradeFrame struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      string          `json:"side"`
	Timestamp time.Time       `json:"timestamp"`
	TradeID   string          `json:"trade_id"`
}

// SubscribeRequest is what a Client builds for AddSubscription's
// Request field, mirroring base.SubscriptionMessage.
type SubscribeRequest struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

// Codec implements wsconn.Codec by decoding into Envelope, then into the
// channel-specific frame type.
type Codec struct{}

func (Codec) Parse(payload string) (interface{}, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("examplecodec: invalid envelope: %w", err)
	}

	switch env.Channel {
	case ChannelTicker:
		var t TickerFrame
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &t); err != nil {
				return nil, fmt.Errorf("examplecodec: invalid ticker frame: %w", err)
			}
		}
		t.Symbol = env.Symbol
		return t, nil
	case ChannelTrade:
		var t TradeFrame
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &t); err != nil {
				return nil, fmt.Errorf("examplecodec: invalid trade frame: %w", err)
			}
		}
		t.Symbol = env.Symbol
		return t, nil
	default:
		return env, nil
	}
}

// Matches implements the Client.Matches half of the codec contract
// (spec.md §6): requestOrIdentifier is either a *SubscribeRequest (for
// request-bound subscriptions) or a plain channel-name string
// identifier. Frames match by (channel, symbol).
func Matches(frame interface{}, requestOrIdentifier interface{}) bool {
	channel, symbol := frameKey(frame)

	switch key := requestOrIdentifier.(type) {
	case *SubscribeRequest:
		return key.Channel == channel && (key.Symbol == "" || key.Symbol == symbol)
	case string:
		return key == channel
	default:
		return false
	}
}

func frameKey(frame interface{}) (channel, symbol string) {
	switch f := frame.(type) {
	case TickerFrame:
		return ChannelTicker, f.Symbol
	case TradeFrame:
		return ChannelTrade, f.Symbol
	case Envelope:
		return f.Channel, f.Symbol
	default:
		return "", ""
	}
}
