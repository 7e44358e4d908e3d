package model

import "context"

// ── Capability Port Interfaces ──
// These decouple the decision core from concrete collaborators (broker client,
// simulated feed, journal, event publishers). Each adapter satisfies one or
// more of these interfaces.

// PriceFeed streams ordered price points for a symbol into out. Blocks until
// ctx is cancelled or the stream breaks; a broken stream is NOT restartable —
// the caller must re-warm-up indicator state before subscribing again.
type PriceFeed interface {
	Subscribe(ctx context.Context, symbol string, out chan<- PricePoint) error
}

// HistoryFetcher returns the latest count points in ascending timestamp
// order, used to warm up indicator state at startup or after a feed gap.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, symbol string, count int) ([]PricePoint, error)
}

// OrderGateway submits a contract order. The call only hands the order to the
// transport; acknowledgment, rejection and settlement arrive later as
// ExecutionEvents. A non-nil error means the order never left the process.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) error
}

// EventSink consumes outbound monitoring events. Implementations must not
// block the caller beyond what the transport strictly requires.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// TradeJournal persists settled trades for audit.
type TradeJournal interface {
	RecordTrade(t Trade) error
	Close() error
}
