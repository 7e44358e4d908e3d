package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contractbot/internal/logger"
	"contractbot/internal/model"
	"contractbot/internal/risk"
	"contractbot/internal/strategy"
)

type stubGateway struct {
	mu     sync.Mutex
	reqs   []model.OrderRequest
	ctxIDs []string
	err    error
}

func (g *stubGateway) SubmitOrder(ctx context.Context, req model.OrderRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.reqs = append(g.reqs, req)
	g.ctxIDs = append(g.ctxIDs, logger.TradeID(ctx))
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *captureSink) Publish(_ context.Context, ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) types() []model.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type captureRecorder struct {
	mu     sync.Mutex
	trades []model.Trade
}

func (r *captureRecorder) Record(t model.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
}

func testSignal() *strategy.Signal {
	return &strategy.Signal{
		Symbol:         "R_100",
		Direction:      model.DirectionBuy,
		Source:         strategy.SourceCrossover,
		ReferencePrice: 100,
	}
}

func testDecision() risk.Decision {
	return risk.Decision{Approved: true, PositionSize: 6.667, StopLoss: 97, TakeProfit: 104.5}
}

func newTestManager(gw model.OrderGateway, sinks Sinks, now func() time.Time) *Manager {
	return NewManager(Config{InitialBalance: 1000, AckTimeout: time.Minute, Now: now}, gw, sinks, nil)
}

func TestLifecycle_HappyPath(t *testing.T) {
	gw := &stubGateway{}
	sink := &captureSink{}
	rec := &captureRecorder{}
	m := newTestManager(gw, Sinks{Recorder: rec, Events: sink}, nil)
	ctx := context.Background()

	id, err := m.Submit(ctx, testSignal(), testDecision(), time.Minute)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(gw.reqs) != 1 || gw.reqs[0].TradeID != id {
		t.Fatalf("gateway did not receive the order: %+v", gw.reqs)
	}

	tr, _ := m.Trade(id)
	if tr.State != model.StateSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", tr.State)
	}
	if gw.ctxIDs[0] != id {
		t.Errorf("gateway context should carry the trade ID, got %q", gw.ctxIDs[0])
	}

	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecAck, TradeID: id, BrokerRef: "c-1"})
	tr, _ = m.Trade(id)
	if tr.State != model.StateOpen || tr.BrokerRef != "c-1" {
		t.Fatalf("expected OPEN with broker ref, got %+v", tr)
	}
	acct := m.AccountSnapshot()
	if acct.OpenTradeCount != 1 || acct.OpenRiskSum != 6.667 {
		t.Fatalf("account not updated on open: %+v", acct)
	}

	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecSettlement, TradeID: id, PnL: 5.2})
	tr, _ = m.Trade(id)
	if tr.State != model.StateClosed || tr.Outcome != model.OutcomeWin || tr.PnL != 5.2 {
		t.Fatalf("expected settled win, got %+v", tr)
	}

	acct = m.AccountSnapshot()
	if acct.Balance != 1005.2 || acct.DailyPnL != 5.2 {
		t.Errorf("balance not settled: %+v", acct)
	}
	if acct.OpenTradeCount != 0 || acct.OpenRiskSum != 0 {
		t.Errorf("open aggregates not released: %+v", acct)
	}
	if acct.PeakBalance != 1005.2 {
		t.Errorf("peak not advanced: %+v", acct)
	}

	if len(rec.trades) != 1 || rec.trades[0].ID != id {
		t.Errorf("recorder should see exactly one settlement: %+v", rec.trades)
	}

	want := []model.EventType{
		model.EventTradeProposed, model.EventTradeOpened, model.EventTradeClosed,
	}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestLifecycle_IdempotentReplay(t *testing.T) {
	gw := &stubGateway{}
	rec := &captureRecorder{}
	m := newTestManager(gw, Sinks{Recorder: rec}, nil)
	ctx := context.Background()

	id, _ := m.Submit(ctx, testSignal(), testDecision(), time.Minute)

	ack := model.ExecutionEvent{Type: model.ExecAck, TradeID: id}
	m.Apply(ctx, ack)
	m.Apply(ctx, ack) // redelivery
	if acct := m.AccountSnapshot(); acct.OpenTradeCount != 1 {
		t.Fatalf("duplicate ack double-counted: %+v", acct)
	}

	settle := model.ExecutionEvent{Type: model.ExecSettlement, TradeID: id, PnL: -6.667}
	m.Apply(ctx, settle)
	m.Apply(ctx, settle) // redelivery

	acct := m.AccountSnapshot()
	if acct.Balance != 1000-6.667 || acct.OpenTradeCount != 0 {
		t.Errorf("duplicate settlement double-counted: %+v", acct)
	}
	if len(rec.trades) != 1 {
		t.Errorf("recorder saw %d settlements, want 1", len(rec.trades))
	}

	// Events for unknown trades are dropped.
	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecSettlement, TradeID: "nope", PnL: 99})
	if acct := m.AccountSnapshot(); acct.Balance != 1000-6.667 {
		t.Errorf("unknown trade settled: %+v", acct)
	}
}

func TestLifecycle_Reject(t *testing.T) {
	gw := &stubGateway{}
	sink := &captureSink{}
	m := newTestManager(gw, Sinks{Events: sink}, nil)
	ctx := context.Background()

	id, _ := m.Submit(ctx, testSignal(), testDecision(), time.Minute)
	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecReject, TradeID: id, Reason: "insufficient balance"})

	tr, _ := m.Trade(id)
	if tr.State != model.StateRejected || tr.Reason != "insufficient balance" {
		t.Fatalf("expected REJECTED, got %+v", tr)
	}
	if acct := m.AccountSnapshot(); acct.OpenTradeCount != 0 {
		t.Errorf("rejected trade must not touch the account: %+v", acct)
	}

	// A late ack after the reject must not resurrect the trade.
	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecAck, TradeID: id})
	if tr, _ := m.Trade(id); tr.State != model.StateRejected {
		t.Errorf("terminal state mutated: %s", tr.State)
	}
}

func TestLifecycle_SubmitError(t *testing.T) {
	gw := &stubGateway{err: errors.New("socket closed")}
	m := newTestManager(gw, Sinks{}, nil)

	id, err := m.Submit(context.Background(), testSignal(), testDecision(), time.Minute)
	if err == nil {
		t.Fatal("expected submit error")
	}
	tr, _ := m.Trade(id)
	if tr.State != model.StateFailed {
		t.Fatalf("expected FAILED, got %s", tr.State)
	}
}

func TestLifecycle_AckTimeout(t *testing.T) {
	gw := &stubGateway{}
	m := NewManager(Config{InitialBalance: 1000, AckTimeout: 10 * time.Millisecond}, gw, Sinks{}, nil)
	ctx := context.Background()

	id, _ := m.Submit(ctx, testSignal(), testDecision(), time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for {
		tr, _ := m.Trade(id)
		if tr.State == model.StateFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("trade never timed out, state %s", tr.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The late ack arrives after the timeout: it must be dropped.
	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecAck, TradeID: id})
	if acct := m.AccountSnapshot(); acct.OpenTradeCount != 0 {
		t.Errorf("late ack opened a failed trade: %+v", acct)
	}
}

func TestLifecycle_DailyRollover(t *testing.T) {
	current := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	setNow := func(t time.Time) {
		mu.Lock()
		defer mu.Unlock()
		current = t
	}

	gw := &stubGateway{}
	m := newTestManager(gw, Sinks{}, now)
	ctx := context.Background()

	id, _ := m.Submit(ctx, testSignal(), testDecision(), time.Minute)
	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecAck, TradeID: id})
	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecSettlement, TradeID: id, PnL: -20})

	if acct := m.AccountSnapshot(); acct.DailyPnL != -20 {
		t.Fatalf("expected daily pnl -20, got %+v", acct)
	}

	// Midnight UTC passes: the daily window resets, the balance does not.
	setNow(time.Date(2025, 6, 3, 0, 5, 0, 0, time.UTC))
	acct := m.AccountSnapshot()
	if acct.DailyPnL != 0 {
		t.Errorf("daily pnl should reset at the broker day boundary: %+v", acct)
	}
	if acct.Balance != 980 {
		t.Errorf("balance must survive the rollover: %+v", acct)
	}
}

func TestLifecycle_FailPending(t *testing.T) {
	gw := &stubGateway{}
	m := newTestManager(gw, Sinks{}, nil)
	ctx := context.Background()

	a, _ := m.Submit(ctx, testSignal(), testDecision(), time.Minute)
	b, _ := m.Submit(ctx, testSignal(), testDecision(), time.Minute)
	m.Apply(ctx, model.ExecutionEvent{Type: model.ExecAck, TradeID: b})

	if open := m.OpenTrades(); len(open) != 1 || open[0].ID != b {
		t.Fatalf("expected one open trade %s, got %+v", b, open)
	}

	m.FailPending(ctx, "shutdown")

	if open := m.OpenTrades(); len(open) != 0 {
		t.Errorf("trades still open after FailPending: %+v", open)
	}

	for _, id := range []string{a, b} {
		tr, _ := m.Trade(id)
		if tr.State != model.StateFailed {
			t.Errorf("trade %s not failed: %s", id, tr.State)
		}
	}
	if acct := m.AccountSnapshot(); acct.OpenTradeCount != 0 || acct.OpenRiskSum != 0 {
		t.Errorf("open aggregates must be released on FailPending: %+v", acct)
	}
}
