package model

import "time"

// Direction is the directional side of a signal or contract.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// TradeState is a node in the trade lifecycle state machine.
//
// Proposed -> Submitted -> Open -> Closed
// Submitted -> Rejected
// any non-terminal -> Failed
//
// Transitions are monotonic; Closed, Rejected and Failed are terminal.
type TradeState string

const (
	StateProposed  TradeState = "PROPOSED"
	StateSubmitted TradeState = "SUBMITTED"
	StateOpen      TradeState = "OPEN"
	StateClosed    TradeState = "CLOSED"
	StateRejected  TradeState = "REJECTED"
	StateFailed    TradeState = "FAILED"
)

// Terminal reports whether no further transitions are permitted.
func (s TradeState) Terminal() bool {
	return s == StateClosed || s == StateRejected || s == StateFailed
}

// Outcome classifies a settled contract.
type Outcome string

const (
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
)

// OutcomeFromPnL maps a settlement P/L to an outcome.
func OutcomeFromPnL(pnl float64) Outcome {
	switch {
	case pnl > 0:
		return OutcomeWin
	case pnl < 0:
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// Trade is a single fixed-duration contract tracked from proposal to
// settlement. Owned by the lifecycle manager; immutable once terminal.
type Trade struct {
	ID         string        `json:"id"`
	BrokerRef  string        `json:"broker_ref,omitempty"`
	Symbol     string        `json:"symbol"`
	Direction  Direction     `json:"direction"`
	EntryPrice float64       `json:"entry_price"`
	Stake      float64       `json:"stake"`
	StopLoss   float64       `json:"stop_loss"`
	TakeProfit float64       `json:"take_profit"`
	Duration   time.Duration `json:"duration"`
	State      TradeState    `json:"state"`
	Rule       string        `json:"rule,omitempty"` // entry rule that produced the signal
	Reason     string        `json:"reason,omitempty"`
	OpenedAt   time.Time     `json:"opened_at,omitempty"`
	ClosedAt   time.Time     `json:"closed_at,omitempty"`
	Outcome    Outcome       `json:"outcome,omitempty"`
	PnL        float64       `json:"pnl"`
}

// OrderRequest is what the core hands to the order-submission capability.
type OrderRequest struct {
	TradeID    string        `json:"trade_id"`
	Symbol     string        `json:"symbol"`
	Direction  Direction     `json:"direction"`
	Stake      float64       `json:"stake"`
	Duration   time.Duration `json:"duration"`
	StopLoss   float64       `json:"stop_loss"`
	TakeProfit float64       `json:"take_profit"`
}

// ExecutionEventType discriminates broker execution events.
type ExecutionEventType string

const (
	ExecAck        ExecutionEventType = "ACK"
	ExecReject     ExecutionEventType = "REJECT"
	ExecSettlement ExecutionEventType = "SETTLEMENT"
)

// ExecutionEvent is an asynchronous broker response correlated by trade ID.
// Network layers may redeliver; applying one twice must be a no-op.
type ExecutionEvent struct {
	Type      ExecutionEventType `json:"type"`
	TradeID   string             `json:"trade_id"`
	BrokerRef string             `json:"broker_ref,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	PnL       float64            `json:"pnl"`
	At        time.Time          `json:"at"`
}
