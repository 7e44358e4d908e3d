package model

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies an outbound monitoring event.
type EventType string

const (
	EventSignalGenerated EventType = "signal_generated"
	EventTradeProposed   EventType = "trade_proposed"
	EventTradeRejected   EventType = "trade_rejected"
	EventTradeOpened     EventType = "trade_opened"
	EventTradeClosed     EventType = "trade_closed"
	EventTradeFailed     EventType = "trade_failed"
)

// Event is a structured record emitted for monitoring/logging collaborators.
// Empty fields are omitted on the wire.
type Event struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Symbol    string    `json:"symbol,omitempty"`
	TradeID   string    `json:"trade_id,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Stake     float64   `json:"stake,omitempty"`
	PnL       float64   `json:"pnl,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Balance   float64   `json:"balance,omitempty"`
}

// JSON returns the JSON-encoded event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// MultiSink fans a single event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}
