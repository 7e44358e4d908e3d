// Package lifecycle owns trades from proposal to settlement and the account
// aggregate they settle against.
//
// Every trade walks a monotonic state machine
// (Proposed -> Submitted -> Open -> Closed, with Rejected and Failed as the
// off-ramps) and broker events are applied idempotently: a redelivered ack or
// settlement is a no-op.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"contractbot/internal/logger"
	"contractbot/internal/markethours"
	"contractbot/internal/model"
	"contractbot/internal/risk"
	"contractbot/internal/strategy"
)

// SettlementSink receives each trade once it reaches a terminal state.
type SettlementSink interface {
	Record(t model.Trade)
}

// Sinks are the optional downstream consumers of lifecycle outcomes. Any
// field may be nil.
type Sinks struct {
	Recorder SettlementSink
	Journal  model.TradeJournal
	Events   model.EventSink
}

// Config parameterizes the manager.
type Config struct {
	InitialBalance float64
	AckTimeout     time.Duration

	// Now is the clock; nil means time.Now. Injected by tests and the
	// backtester.
	Now func() time.Time
}

// Manager is the single writer of trade and account state.
type Manager struct {
	mu sync.Mutex

	gw    model.OrderGateway
	sinks Sinks
	log   *slog.Logger

	ackTimeout time.Duration
	now        func() time.Time

	trades map[string]*model.Trade
	timers map[string]*time.Timer

	acct model.AccountState
}

// NewManager builds a manager with a fresh account at the initial balance.
func NewManager(cfg Config, gw model.OrderGateway, sinks Sinks, log *slog.Logger) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		gw:         gw,
		sinks:      sinks,
		log:        log,
		ackTimeout: cfg.AckTimeout,
		now:        now,
		trades:     make(map[string]*model.Trade),
		timers:     make(map[string]*time.Timer),
		acct: model.AccountState{
			Balance:     cfg.InitialBalance,
			PeakBalance: cfg.InitialBalance,
			Day:         markethours.BrokerDay(now()),
		},
	}
}

// Submit turns an approved signal into a proposed trade and hands it to the
// order gateway. A gateway error fails the trade immediately; otherwise the
// trade sits in Submitted until the broker acks, rejects, or the ack timeout
// fires.
func (m *Manager) Submit(ctx context.Context, sig *strategy.Signal, dec risk.Decision, duration time.Duration) (string, error) {
	now := m.now()
	t := &model.Trade{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		EntryPrice: sig.ReferencePrice,
		Stake:      dec.PositionSize,
		StopLoss:   dec.StopLoss,
		TakeProfit: dec.TakeProfit,
		Duration:   duration,
		State:      model.StateProposed,
		Rule:       string(sig.Source),
		Reason:     sig.Reason,
	}

	m.mu.Lock()
	m.trades[t.ID] = t
	m.mu.Unlock()

	// The trade ID rides the context so the gateway and sinks log under it.
	ctx = logger.WithTradeID(ctx, t.ID)

	m.emit(ctx, model.Event{
		Type:      model.EventTradeProposed,
		At:        now,
		Symbol:    t.Symbol,
		TradeID:   t.ID,
		Direction: t.Direction,
		Rule:      t.Rule,
		Price:     t.EntryPrice,
		Stake:     t.Stake,
	})

	req := model.OrderRequest{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		Direction:  t.Direction,
		Stake:      t.Stake,
		Duration:   t.Duration,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
	}
	if err := m.gw.SubmitOrder(ctx, req); err != nil {
		m.failTrade(ctx, t.ID, "submit failed: "+err.Error())
		return t.ID, err
	}

	m.mu.Lock()
	if t.State == model.StateProposed {
		t.State = model.StateSubmitted
		if m.ackTimeout > 0 {
			id := t.ID
			m.timers[id] = time.AfterFunc(m.ackTimeout, func() {
				m.failTrade(context.Background(), id, "ack timeout")
			})
		}
	}
	m.mu.Unlock()

	m.log.Info("order submitted", append(logger.LogWithTrade(ctx),
		"symbol", t.Symbol, "direction", t.Direction,
		"stake", t.Stake, "rule", t.Rule)...)
	return t.ID, nil
}

// Apply folds one broker execution event into the state machine. Events for
// unknown trades or trades already past the relevant state are dropped.
func (m *Manager) Apply(ctx context.Context, ev model.ExecutionEvent) {
	ctx = logger.WithTradeID(ctx, ev.TradeID)
	switch ev.Type {
	case model.ExecAck:
		m.onAck(ctx, ev)
	case model.ExecReject:
		m.onReject(ctx, ev)
	case model.ExecSettlement:
		m.onSettlement(ctx, ev)
	default:
		m.log.Warn("unknown execution event", append(logger.LogWithTrade(ctx), "type", ev.Type)...)
	}
}

func (m *Manager) onAck(ctx context.Context, ev model.ExecutionEvent) {
	m.mu.Lock()
	t, ok := m.trades[ev.TradeID]
	if !ok || t.State != model.StateSubmitted {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked(ev.TradeID)

	t.State = model.StateOpen
	t.BrokerRef = ev.BrokerRef
	t.OpenedAt = m.eventTime(ev)
	m.acct.OpenTradeCount++
	m.acct.OpenRiskSum += t.Stake
	snap := *t
	m.mu.Unlock()

	m.emit(ctx, model.Event{
		Type:      model.EventTradeOpened,
		At:        snap.OpenedAt,
		Symbol:    snap.Symbol,
		TradeID:   snap.ID,
		Direction: snap.Direction,
		Rule:      snap.Rule,
		Price:     snap.EntryPrice,
		Stake:     snap.Stake,
	})
	m.log.Info("trade opened", append(logger.LogWithTrade(ctx), "broker_ref", snap.BrokerRef)...)
}

func (m *Manager) onReject(ctx context.Context, ev model.ExecutionEvent) {
	m.mu.Lock()
	t, ok := m.trades[ev.TradeID]
	if !ok || t.State != model.StateSubmitted {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked(ev.TradeID)

	t.State = model.StateRejected
	t.Reason = ev.Reason
	t.ClosedAt = m.eventTime(ev)
	snap := *t
	m.mu.Unlock()

	m.emit(ctx, model.Event{
		Type:    model.EventTradeRejected,
		At:      snap.ClosedAt,
		Symbol:  snap.Symbol,
		TradeID: snap.ID,
		Reason:  snap.Reason,
	})
	m.log.Warn("order rejected", append(logger.LogWithTrade(ctx), "reason", snap.Reason)...)
}

func (m *Manager) onSettlement(ctx context.Context, ev model.ExecutionEvent) {
	m.mu.Lock()
	t, ok := m.trades[ev.TradeID]
	if !ok || t.State != model.StateOpen {
		m.mu.Unlock()
		return
	}

	at := m.eventTime(ev)
	m.rollDayLocked(at)

	t.State = model.StateClosed
	t.ClosedAt = at
	t.PnL = ev.PnL
	t.Outcome = model.OutcomeFromPnL(ev.PnL)

	m.acct.OpenTradeCount--
	m.acct.OpenRiskSum -= t.Stake
	if m.acct.OpenRiskSum < 0 {
		m.acct.OpenRiskSum = 0
	}
	m.acct.Balance += ev.PnL
	m.acct.DailyPnL += ev.PnL
	if m.acct.Balance > m.acct.PeakBalance {
		m.acct.PeakBalance = m.acct.Balance
	}
	snap := *t
	balance := m.acct.Balance
	m.mu.Unlock()

	if m.sinks.Recorder != nil {
		m.sinks.Recorder.Record(snap)
	}
	if m.sinks.Journal != nil {
		if err := m.sinks.Journal.RecordTrade(snap); err != nil {
			m.log.Error("journal write failed", append(logger.LogWithTrade(ctx), "err", err)...)
		}
	}
	m.emit(ctx, model.Event{
		Type:    model.EventTradeClosed,
		At:      snap.ClosedAt,
		Symbol:  snap.Symbol,
		TradeID: snap.ID,
		Outcome: snap.Outcome,
		PnL:     snap.PnL,
		Balance: balance,
	})
	m.log.Info("trade settled", append(logger.LogWithTrade(ctx),
		"outcome", snap.Outcome, "pnl", snap.PnL, "balance", balance)...)
}

// failTrade moves any non-terminal trade to Failed. Used for submit errors,
// ack timeouts and shutdown.
func (m *Manager) failTrade(ctx context.Context, id, reason string) {
	ctx = logger.WithTradeID(ctx, id)
	m.mu.Lock()
	t, ok := m.trades[id]
	if !ok || t.State.Terminal() {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked(id)

	wasOpen := t.State == model.StateOpen
	t.State = model.StateFailed
	t.Reason = reason
	t.ClosedAt = m.now()
	if wasOpen {
		m.acct.OpenTradeCount--
		m.acct.OpenRiskSum -= t.Stake
		if m.acct.OpenRiskSum < 0 {
			m.acct.OpenRiskSum = 0
		}
	}
	snap := *t
	m.mu.Unlock()

	m.emit(ctx, model.Event{
		Type:    model.EventTradeFailed,
		At:      snap.ClosedAt,
		Symbol:  snap.Symbol,
		TradeID: snap.ID,
		Reason:  reason,
	})
	m.log.Warn("trade failed", append(logger.LogWithTrade(ctx), "reason", reason)...)
}

// FailPending fails every trade still in flight, e.g. on shutdown or after
// the broker connection is lost with orders outstanding.
func (m *Manager) FailPending(ctx context.Context, reason string) {
	m.mu.Lock()
	var ids []string
	for id, t := range m.trades {
		if !t.State.Terminal() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.failTrade(ctx, id, reason)
	}
}

// AccountSnapshot returns a copy of the account aggregate, rolling the daily
// P/L window first if the broker day has turned over.
func (m *Manager) AccountSnapshot() model.AccountState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(m.now())
	return m.acct
}

// Trade returns a copy of the trade with the given ID.
func (m *Manager) Trade(id string) (model.Trade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return model.Trade{}, false
	}
	return *t, true
}

// OpenTrades returns copies of all trades currently in the Open state.
func (m *Manager) OpenTrades() []model.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trade
	for _, t := range m.trades {
		if t.State == model.StateOpen {
			out = append(out, *t)
		}
	}
	return out
}

// rollDayLocked resets the daily P/L when t falls on a later broker day than
// the one the aggregate currently tracks.
func (m *Manager) rollDayLocked(t time.Time) {
	if markethours.SameBrokerDay(m.acct.Day, t) {
		return
	}
	m.acct.Day = markethours.BrokerDay(t)
	m.acct.DailyPnL = 0
}

func (m *Manager) stopTimerLocked(id string) {
	if tm, ok := m.timers[id]; ok {
		tm.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) eventTime(ev model.ExecutionEvent) time.Time {
	if !ev.At.IsZero() {
		return ev.At
	}
	return m.now()
}

func (m *Manager) emit(ctx context.Context, ev model.Event) {
	if m.sinks.Events != nil {
		m.sinks.Events.Publish(ctx, ev)
	}
}
