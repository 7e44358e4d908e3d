package indicator

import (
	"fmt"
	"time"

	"contractbot/internal/model"
)

// MA type selectors for the three moving averages.
const (
	MATypeSMA = "SMA"
	MATypeEMA = "EMA"
)

// Config specifies the indicator windows for one engine.
type Config struct {
	ShortWindow  int
	MediumWindow int
	LongWindow   int
	RSIPeriod    int
	ATRPeriod    int
	VolWindow    int
	MAType       string // "SMA" or "EMA"
}

// Validate checks window ordering and positivity.
func (c Config) Validate() error {
	if c.ShortWindow <= 0 || c.MediumWindow <= 0 || c.LongWindow <= 0 {
		return fmt.Errorf("indicator: windows must be positive")
	}
	if c.ShortWindow >= c.MediumWindow || c.MediumWindow >= c.LongWindow {
		return fmt.Errorf("indicator: require short < medium < long window, got %d/%d/%d",
			c.ShortWindow, c.MediumWindow, c.LongWindow)
	}
	if c.RSIPeriod <= 1 || c.ATRPeriod <= 0 || c.VolWindow <= 1 {
		return fmt.Errorf("indicator: invalid rsi/atr/volatility period")
	}
	if c.MAType != MATypeSMA && c.MAType != MATypeEMA {
		return fmt.Errorf("indicator: unknown ma type %q", c.MAType)
	}
	return nil
}

// Snapshot is the point-in-time indicator state after an accepted price.
// Each value is meaningful only when its Ready flag is set; downstream
// consumers must treat unset fields as "no signal possible".
type Snapshot struct {
	ShortMA     float64
	MediumMA    float64
	LongMA      float64
	RSI         float64
	ATR         float64
	Volatility  float64
	ShortReady  bool
	MediumReady bool
	LongReady   bool
	RSIReady    bool
	ATRReady    bool
	VolReady    bool
}

// Ready reports whether every indicator window has filled.
func (s Snapshot) Ready() bool {
	return s.ShortReady && s.MediumReady && s.LongReady &&
		s.RSIReady && s.ATRReady && s.VolReady
}

// Engine maintains the full indicator set for one symbol from an incoming
// price sequence. Designed for single-goroutine usage — no locks needed.
type Engine struct {
	cfg Config

	short  Indicator
	medium Indicator
	long   Indicator
	rsi    *RSI
	atr    *ATR
	vol    *Volatility

	lastTS   time.Time
	haveLast bool
}

// NewEngine creates an indicator engine for the given windows.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	e.short = newMA(cfg.MAType, cfg.ShortWindow)
	e.medium = newMA(cfg.MAType, cfg.MediumWindow)
	e.long = newMA(cfg.MAType, cfg.LongWindow)
	e.rsi = NewRSI(cfg.RSIPeriod)
	e.atr = NewATR(cfg.ATRPeriod)
	e.vol = NewVolatility(cfg.VolWindow)
	return e, nil
}

func newMA(maType string, period int) Indicator {
	if maType == MATypeEMA {
		return NewEMA(period)
	}
	return NewSMA(period)
}

// Update feeds one price point and returns the resulting snapshot.
// A point whose timestamp is not strictly after the last accepted one is
// rejected with model.ErrStaleData and leaves all state untouched.
func (e *Engine) Update(p model.PricePoint) (Snapshot, error) {
	if e.haveLast && !p.TS.After(e.lastTS) {
		return e.Snapshot(), model.ErrStaleData
	}
	e.lastTS = p.TS
	e.haveLast = true

	e.short.Update(p.Price)
	e.medium.Update(p.Price)
	e.long.Update(p.Price)
	e.rsi.Update(p.Price)
	e.atr.Update(p.Price)
	e.vol.Update(p.Price)

	return e.Snapshot(), nil
}

// WarmUp replays historical points through the same update path, guaranteeing
// identical state to having observed them live. Stale points within the
// history are skipped. Returns the accepted points in order, so callers that
// keep derived state (e.g. a raw-price window) see exactly what the engine saw.
func (e *Engine) WarmUp(history []model.PricePoint) []model.PricePoint {
	accepted := make([]model.PricePoint, 0, len(history))
	for _, p := range history {
		if _, err := e.Update(p); err == nil {
			accepted = append(accepted, p)
		}
	}
	return accepted
}

// Snapshot returns the current indicator values without mutating state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		ShortMA:     e.short.Value(),
		MediumMA:    e.medium.Value(),
		LongMA:      e.long.Value(),
		RSI:         e.rsi.Value(),
		ATR:         e.atr.Value(),
		Volatility:  e.vol.Value(),
		ShortReady:  e.short.Ready(),
		MediumReady: e.medium.Ready(),
		LongReady:   e.long.Ready(),
		RSIReady:    e.rsi.Ready(),
		ATRReady:    e.atr.Ready(),
		VolReady:    e.vol.Ready(),
	}
}

// Reset clears all indicator state, e.g. before re-warming after a feed gap.
func (e *Engine) Reset() {
	e.short.Reset()
	e.medium.Reset()
	e.long.Reset()
	e.rsi.Reset()
	e.atr.Reset()
	e.vol.Reset()
	e.lastTS = time.Time{}
	e.haveLast = false
}

// LastTS returns the timestamp of the last accepted point.
func (e *Engine) LastTS() (time.Time, bool) {
	return e.lastTS, e.haveLast
}
