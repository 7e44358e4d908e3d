package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"contractbot/internal/model"
)

// PaperConfig configures the simulated broker.
type PaperConfig struct {
	AckDelay time.Duration // delay between submit and ack
	Payout   float64       // fraction of stake paid on a winning contract
}

// PaperGateway is an in-process broker for paper trading. It acks orders
// after a short delay and settles each contract when its duration elapses by
// comparing the entry price against the latest observed price: right side
// wins stake*payout, wrong side loses the stake, a flat close is breakeven.
type PaperGateway struct {
	cfg    PaperConfig
	events chan model.ExecutionEvent
	seq    atomic.Int64

	mu        sync.Mutex
	lastPrice float64
	havePrice bool
}

// NewPaperGateway builds a paper broker. Events() must be drained.
func NewPaperGateway(cfg PaperConfig) *PaperGateway {
	if cfg.Payout <= 0 {
		cfg.Payout = 0.95
	}
	return &PaperGateway{
		cfg:    cfg,
		events: make(chan model.ExecutionEvent, 128),
	}
}

// Events is the stream of acks and settlements, consumed by the engine loop.
func (g *PaperGateway) Events() <-chan model.ExecutionEvent {
	return g.events
}

// OnPrice records the latest market price. The feed is teed here so the
// simulated settlement sees the same stream the engine does.
func (g *PaperGateway) OnPrice(p model.PricePoint) {
	g.mu.Lock()
	g.lastPrice = p.Price
	g.havePrice = true
	g.mu.Unlock()
}

// SubmitOrder accepts the order, schedules an ack after AckDelay and a
// settlement after the contract duration.
func (g *PaperGateway) SubmitOrder(ctx context.Context, req model.OrderRequest) error {
	g.mu.Lock()
	entry, ok := g.lastPrice, g.havePrice
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("paper: no market price observed yet")
	}

	ref := fmt.Sprintf("paper-%d", g.seq.Add(1))

	go func() {
		if g.cfg.AckDelay > 0 {
			select {
			case <-time.After(g.cfg.AckDelay):
			case <-ctx.Done():
				return
			}
		}
		g.events <- model.ExecutionEvent{
			Type:      model.ExecAck,
			TradeID:   req.TradeID,
			BrokerRef: ref,
			At:        time.Now().UTC(),
		}

		select {
		case <-time.After(req.Duration):
		case <-ctx.Done():
			return
		}

		g.mu.Lock()
		exit := g.lastPrice
		g.mu.Unlock()

		g.events <- model.ExecutionEvent{
			Type:      model.ExecSettlement,
			TradeID:   req.TradeID,
			BrokerRef: ref,
			PnL:       contractPnL(req.Direction, entry, exit, req.Stake, g.cfg.Payout),
			At:        time.Now().UTC(),
		}
	}()

	return nil
}

// contractPnL settles a binary contract: full stake lost on the wrong side,
// stake*payout won on the right side, zero on a flat close.
func contractPnL(dir model.Direction, entry, exit, stake, payout float64) float64 {
	switch {
	case exit == entry:
		return 0
	case dir == model.DirectionBuy && exit > entry,
		dir == model.DirectionSell && exit < entry:
		return stake * payout
	default:
		return -stake
	}
}
