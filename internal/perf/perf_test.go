package perf

import (
	"math"
	"testing"

	"contractbot/internal/model"
)

func closed(pnl float64) model.Trade {
	return model.Trade{
		State:   model.StateClosed,
		Outcome: model.OutcomeFromPnL(pnl),
		PnL:     pnl,
	}
}

func TestRecorder_Empty(t *testing.T) {
	r := NewRecorder(1000)

	s := r.Stats()
	if s.Trades != 0 || s.WinRate != 0 || s.MaxDrawdown != 0 {
		t.Errorf("fresh recorder should report zeros, got %+v", s)
	}
}

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder(1000)
	for _, pnl := range []float64{10, -5, 10, 0} {
		r.Record(closed(pnl))
	}

	s := r.Stats()
	if s.Trades != 4 || s.Wins != 2 || s.Losses != 1 || s.Breakevens != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %v", s.WinRate)
	}
	if s.AvgWin != 10 || s.AvgLoss != -5 {
		t.Errorf("expected avg win 10 / avg loss -5, got %v / %v", s.AvgWin, s.AvgLoss)
	}
	if s.NetPnL != 15 {
		t.Errorf("expected net pnl 15, got %v", s.NetPnL)
	}
}

func TestRecorder_MaxDrawdown(t *testing.T) {
	r := NewRecorder(1000)

	// 1000 -> 1100 (peak) -> 880 -> 990. Worst trough: 220/1100 = 0.2.
	r.Record(closed(100))
	r.Record(closed(-220))
	r.Record(closed(110))

	if dd := r.MaxDrawdown(); math.Abs(dd-0.2) > 1e-9 {
		t.Errorf("expected drawdown 0.2, got %v", dd)
	}

	// Recovery never shrinks the recorded maximum.
	r.Record(closed(500))
	if dd := r.MaxDrawdown(); math.Abs(dd-0.2) > 1e-9 {
		t.Errorf("drawdown must be monotone, got %v", dd)
	}
}

func TestRecorder_Sharpe(t *testing.T) {
	r := NewRecorder(1000)

	// Identical returns have zero variance.
	r.Record(closed(10))
	r.Record(closed(10))
	if s := r.Stats(); s.Sharpe != 0 {
		t.Errorf("constant returns should give Sharpe 0, got %v", s.Sharpe)
	}

	// Mixed returns: +1%, +1%, -1%. mean=1/300, stddev=sqrt(8)/300.
	r.Record(closed(-10))
	want := 1 / math.Sqrt(8)
	if s := r.Stats(); math.Abs(s.Sharpe-want) > 1e-9 {
		t.Errorf("expected Sharpe %v, got %v", want, s.Sharpe)
	}
}

func TestRecorder_IgnoresUnsettled(t *testing.T) {
	r := NewRecorder(1000)
	r.Record(model.Trade{State: model.StateFailed})
	r.Record(model.Trade{State: model.StateRejected})

	if s := r.Stats(); s.Trades != 0 {
		t.Errorf("unsettled trades must not count, got %+v", s)
	}
}
