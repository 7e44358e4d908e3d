// Package engine runs the decision loop: price points in, indicator update,
// signal evaluation, risk assessment, order submission. One goroutine owns
// the whole pipeline, so no stage needs internal locking.
package engine

import (
	"context"
	"log/slog"
	"time"

	"contractbot/internal/indicator"
	"contractbot/internal/lifecycle"
	"contractbot/internal/metrics"
	"contractbot/internal/model"
	"contractbot/internal/perf"
	"contractbot/internal/risk"
	"contractbot/internal/strategy"
)

const defaultRecentSize = 64

// Config parameterizes the decision loop.
type Config struct {
	Symbol           string
	ContractDuration time.Duration
	WarmupCount      int
	RecentSize       int // bounded raw-price window handed to the rules
}

// Engine wires the indicator engine, signal generator, risk gate and
// lifecycle manager into a single-owner loop.
type Engine struct {
	cfg  Config
	ind  *indicator.Engine
	gen  *strategy.Generator
	gate *risk.Gate
	mgr  *lifecycle.Manager
	rec  *perf.Recorder
	mtx  *metrics.Metrics // optional
	sink model.EventSink  // optional
	log  *slog.Logger

	recent   []float64
	prev     indicator.Snapshot
	havePrev bool
}

// New builds an engine. mtx and sink may be nil; rec may be nil when no
// drawdown gauge is wanted.
func New(cfg Config, ind *indicator.Engine, gen *strategy.Generator, gate *risk.Gate,
	mgr *lifecycle.Manager, rec *perf.Recorder, mtx *metrics.Metrics,
	sink model.EventSink, log *slog.Logger) *Engine {

	if cfg.RecentSize <= 0 {
		cfg.RecentSize = defaultRecentSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:  cfg,
		ind:  ind,
		gen:  gen,
		gate: gate,
		mgr:  mgr,
		rec:  rec,
		mtx:  mtx,
		sink: sink,
		log:  log,
	}
}

// WarmUp seeds indicator state from history so the loop can evaluate rules
// from the first live tick. Returns the number of points accepted.
func (e *Engine) WarmUp(ctx context.Context, hist model.HistoryFetcher) (int, error) {
	points, err := hist.FetchHistory(ctx, e.cfg.Symbol, e.cfg.WarmupCount)
	if err != nil {
		return 0, err
	}

	// Only prices the indicator engine accepted enter the recent window; a
	// stale point in the backfill must not desync the two.
	accepted := e.ind.WarmUp(points)
	for _, p := range accepted {
		e.pushRecent(p.Price)
	}
	n := len(accepted)
	if n > 0 {
		e.prev = e.ind.Snapshot()
		e.havePrev = true
	}
	last, _ := e.ind.LastTS()
	e.log.Info("warm-up complete",
		"symbol", e.cfg.Symbol, "points", n, "through", last, "ready", e.prev.Ready())
	return n, nil
}

// Reset drops all derived state. Required after a feed gap: the indicator
// series must be rebuilt by a fresh WarmUp before the loop resumes.
func (e *Engine) Reset() {
	e.ind.Reset()
	e.recent = e.recent[:0]
	e.prev = indicator.Snapshot{}
	e.havePrev = false
}

// Run consumes prices and broker execution events until ctx is cancelled or
// the price channel closes.
func (e *Engine) Run(ctx context.Context, priceCh <-chan model.PricePoint, execCh <-chan model.ExecutionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-priceCh:
			if !ok {
				return
			}
			e.OnPrice(ctx, p)
		case ev, ok := <-execCh:
			if !ok {
				execCh = nil
				continue
			}
			e.OnExec(ctx, ev)
		}
	}
}

// OnPrice advances the pipeline by one price point.
func (e *Engine) OnPrice(ctx context.Context, p model.PricePoint) {
	if e.mtx != nil {
		e.mtx.TicksTotal.Inc()
	}

	curr, err := e.ind.Update(p)
	if err != nil {
		if e.mtx != nil {
			e.mtx.StaleTicks.Inc()
		}
		e.log.Debug("price point dropped", "symbol", p.Symbol, "ts", p.TS, "err", err)
		return
	}
	e.pushRecent(p.Price)

	if !e.havePrev {
		e.prev, e.havePrev = curr, true
		return
	}
	prev := e.prev
	e.prev = curr

	sig := e.gen.Evaluate(strategy.Input{
		Symbol: e.cfg.Symbol,
		Prev:   prev,
		Curr:   curr,
		Recent: e.recent,
		Now:    p.TS,
	})
	if sig == nil {
		return
	}

	e.emit(ctx, model.Event{
		Type:      model.EventSignalGenerated,
		At:        sig.GeneratedAt,
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Rule:      string(sig.Source),
		Reason:    sig.Reason,
		Price:     sig.ReferencePrice,
	})
	e.log.Info("signal generated",
		"symbol", sig.Symbol, "rule", sig.Source, "direction", sig.Direction,
		"price", sig.ReferencePrice, "reason", sig.Reason)

	acct := e.mgr.AccountSnapshot()
	dec := e.gate.Assess(sig, curr.ATR, acct, p.TS)
	if !dec.Approved {
		e.emit(ctx, model.Event{
			Type:      model.EventTradeRejected,
			At:        p.TS,
			Symbol:    sig.Symbol,
			Direction: sig.Direction,
			Rule:      string(sig.Source),
			Reason:    dec.Reason,
			Price:     sig.ReferencePrice,
		})
		e.log.Info("signal rejected", "rule", sig.Source, "reason", dec.Reason)
		return
	}

	if _, err := e.mgr.Submit(ctx, sig, dec, e.cfg.ContractDuration); err != nil {
		e.log.Error("order submit failed", "symbol", sig.Symbol, "err", err)
	}
	e.updateGauges()
}

// OnExec folds one broker execution event into the lifecycle manager.
func (e *Engine) OnExec(ctx context.Context, ev model.ExecutionEvent) {
	e.mgr.Apply(ctx, ev)
	e.updateGauges()
}

func (e *Engine) pushRecent(price float64) {
	if len(e.recent) == e.cfg.RecentSize {
		copy(e.recent, e.recent[1:])
		e.recent = e.recent[:len(e.recent)-1]
	}
	e.recent = append(e.recent, price)
}

func (e *Engine) updateGauges() {
	if e.mtx == nil {
		return
	}
	var dd float64
	if e.rec != nil {
		dd = e.rec.MaxDrawdown()
	}
	e.mtx.UpdateAccount(e.mgr.AccountSnapshot(), dd)
}

func (e *Engine) emit(ctx context.Context, ev model.Event) {
	if e.sink != nil {
		e.sink.Publish(ctx, ev)
	}
}
