package execution

import (
	"context"
	"fmt"

	"contractbot/internal/model"
)

// BacktestGateway is a deterministic broker for historical replays. Contracts
// are acked synchronously and settle after a fixed number of subsequent price
// points instead of wall-clock time, so a replay produces identical results
// every run.
type BacktestGateway struct {
	payout        float64
	durationTicks int

	lastPrice float64
	havePrice bool
	seq       int64

	open  []*backtestContract
	queue []model.ExecutionEvent
}

type backtestContract struct {
	tradeID   string
	brokerRef string
	direction model.Direction
	entry     float64
	stake     float64
	ticksLeft int
}

// NewBacktestGateway builds a replay broker that settles each contract after
// durationTicks further price points.
func NewBacktestGateway(payout float64, durationTicks int) *BacktestGateway {
	if payout <= 0 {
		payout = 0.95
	}
	if durationTicks < 1 {
		durationTicks = 1
	}
	return &BacktestGateway{payout: payout, durationTicks: durationTicks}
}

// SubmitOrder accepts the order and queues an immediate ack. Not safe for
// concurrent use: the replay loop is single-threaded.
func (g *BacktestGateway) SubmitOrder(_ context.Context, req model.OrderRequest) error {
	if !g.havePrice {
		return fmt.Errorf("backtest: no market price observed yet")
	}

	g.seq++
	ref := fmt.Sprintf("bt-%d", g.seq)
	g.open = append(g.open, &backtestContract{
		tradeID:   req.TradeID,
		brokerRef: ref,
		direction: req.Direction,
		entry:     g.lastPrice,
		stake:     req.Stake,
		ticksLeft: g.durationTicks,
	})
	g.queue = append(g.queue, model.ExecutionEvent{
		Type:      model.ExecAck,
		TradeID:   req.TradeID,
		BrokerRef: ref,
	})
	return nil
}

// OnPrice advances every open contract by one tick and queues settlements
// for those that expire at this price.
func (g *BacktestGateway) OnPrice(p model.PricePoint) {
	g.lastPrice = p.Price
	g.havePrice = true

	remaining := g.open[:0]
	for _, c := range g.open {
		c.ticksLeft--
		if c.ticksLeft > 0 {
			remaining = append(remaining, c)
			continue
		}
		g.queue = append(g.queue, model.ExecutionEvent{
			Type:      model.ExecSettlement,
			TradeID:   c.tradeID,
			BrokerRef: c.brokerRef,
			PnL:       contractPnL(c.direction, c.entry, p.Price, c.stake, g.payout),
			At:        p.TS,
		})
	}
	g.open = remaining
}

// Drain returns the queued execution events in order and clears the queue.
func (g *BacktestGateway) Drain() []model.ExecutionEvent {
	out := g.queue
	g.queue = nil
	return out
}

// OpenContracts reports how many contracts are still running.
func (g *BacktestGateway) OpenContracts() int {
	return len(g.open)
}
