// Package perf accumulates per-trade results into live performance
// statistics: win rate, average win/loss, equity-curve drawdown and a
// Sharpe-style ratio over per-trade returns.
package perf

import (
	"math"
	"sync"

	"contractbot/internal/model"
)

// Stats is a point-in-time summary of recorded trades.
type Stats struct {
	Trades     int
	Wins       int
	Losses     int
	Breakevens int

	WinRate     float64 // wins / settled trades
	NetPnL      float64
	AvgWin      float64 // mean pnl across winning trades
	AvgLoss     float64 // mean pnl across losing trades, negative
	MaxDrawdown float64 // worst peak-to-trough fraction of the equity curve
	Sharpe      float64 // mean/stddev of per-trade returns on start balance
}

// Recorder tracks settled trades. Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	startBalance float64
	pnls         []float64

	wins       int
	losses     int
	breakevens int
	winSum     float64
	lossSum    float64

	// equity curve tracking
	equity      float64
	peak        float64
	maxDrawdown float64
}

// NewRecorder seeds the equity curve with the starting balance.
func NewRecorder(startBalance float64) *Recorder {
	return &Recorder{
		startBalance: startBalance,
		equity:       startBalance,
		peak:         startBalance,
	}
}

// Record folds one settled trade into the running statistics. Trades that
// never settled carry no realized pnl and are ignored.
func (r *Recorder) Record(t model.Trade) {
	if t.State != model.StateClosed {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pnls = append(r.pnls, t.PnL)
	switch t.Outcome {
	case model.OutcomeWin:
		r.wins++
		r.winSum += t.PnL
	case model.OutcomeLoss:
		r.losses++
		r.lossSum += t.PnL
	default:
		r.breakevens++
	}

	r.equity += t.PnL
	if r.equity > r.peak {
		r.peak = r.equity
	}
	if r.peak > 0 {
		if dd := (r.peak - r.equity) / r.peak; dd > r.maxDrawdown {
			r.maxDrawdown = dd
		}
	}
}

// MaxDrawdown returns the worst peak-to-trough fraction seen so far.
func (r *Recorder) MaxDrawdown() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxDrawdown
}

// Stats snapshots the current summary.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Trades:      len(r.pnls),
		Wins:        r.wins,
		Losses:      r.losses,
		Breakevens:  r.breakevens,
		MaxDrawdown: r.maxDrawdown,
	}
	if s.Trades == 0 {
		return s
	}

	s.WinRate = float64(r.wins) / float64(s.Trades)
	if r.wins > 0 {
		s.AvgWin = r.winSum / float64(r.wins)
	}
	if r.losses > 0 {
		s.AvgLoss = r.lossSum / float64(r.losses)
	}
	for _, p := range r.pnls {
		s.NetPnL += p
	}
	s.Sharpe = r.sharpeLocked()
	return s
}

// sharpeLocked computes mean/stddev of per-trade returns relative to the
// starting balance. Zero when returns never vary.
func (r *Recorder) sharpeLocked() float64 {
	n := len(r.pnls)
	if n < 2 || r.startBalance <= 0 {
		return 0
	}

	var sum, sumSq float64
	for _, p := range r.pnls {
		ret := p / r.startBalance
		sum += ret
		sumSq += ret * ret
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance <= 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}
