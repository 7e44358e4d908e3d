// Package strategy turns indicator state into directional trading signals.
//
// Three independent entry rule sets (MA crossover, mean reversion, momentum)
// are evaluated in a fixed priority order; the first rule that fires wins.
// Evaluation is a pure function of its inputs — the previous indicator
// snapshot is passed explicitly so crossover detection is edge-triggered
// without hidden state, enabling deterministic replay in tests.
package strategy

import (
	"fmt"
	"time"

	"contractbot/internal/indicator"
	"contractbot/internal/model"
)

// Source identifies the rule set that produced a signal.
type Source string

const (
	SourceCrossover     Source = "crossover"
	SourceMeanReversion Source = "mean_reversion"
	SourceMomentum      Source = "momentum"
)

// Signal is a directional trade intent. At most one live signal exists per
// symbol at a time — a newer evaluation overwrites, never queues.
type Signal struct {
	Symbol         string          `json:"symbol"`
	Direction      model.Direction `json:"direction"`
	Source         Source          `json:"source"`
	GeneratedAt    time.Time       `json:"generated_at"`
	ReferencePrice float64         `json:"reference_price"`
	Reason         string          `json:"reason"`
}

// Config holds all signal-generation thresholds.
type Config struct {
	RSIOverbought       float64
	RSIOversold         float64
	VolatilityThreshold float64

	MeanReversionEnabled  bool
	MeanReversionDistance float64 // min fractional distance below/above the medium MA

	MomentumEnabled   bool
	MomentumThreshold float64 // min fractional price change over the lookback

	PriceLookback int // points for momentum / mean-reversion turn detection

	// RuleOrder sets the tie-break priority. Defaults to
	// crossover, mean_reversion, momentum when empty.
	RuleOrder []Source
}

// DefaultRuleOrder is the documented rule priority: the crossover rule beats
// mean reversion, which beats momentum, when more than one would fire.
var DefaultRuleOrder = []Source{SourceCrossover, SourceMeanReversion, SourceMomentum}

// ParseRuleOrder parses a comma-separated rule order ("crossover,momentum").
func ParseRuleOrder(sources []string) ([]Source, error) {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		switch Source(s) {
		case SourceCrossover, SourceMeanReversion, SourceMomentum:
			out = append(out, Source(s))
		default:
			return nil, fmt.Errorf("strategy: unknown rule %q", s)
		}
	}
	return out, nil
}

// Input is everything one evaluation may look at.
type Input struct {
	Symbol string
	Prev   indicator.Snapshot // snapshot from the previous evaluation
	Curr   indicator.Snapshot
	Recent []float64 // bounded recent price window, oldest first, last = current
	Now    time.Time
}

func (in Input) price() float64 {
	return in.Recent[len(in.Recent)-1]
}

// rule is a pure predicate over one evaluation input.
type rule func(cfg Config, in Input) *Signal

// Generator evaluates the configured rules in priority order.
type Generator struct {
	cfg   Config
	rules []rule
}

// NewGenerator builds a generator with the configured rule order, skipping
// disabled rule sets.
func NewGenerator(cfg Config) *Generator {
	order := cfg.RuleOrder
	if len(order) == 0 {
		order = DefaultRuleOrder
	}
	g := &Generator{cfg: cfg}
	for _, src := range order {
		switch src {
		case SourceCrossover:
			g.rules = append(g.rules, crossoverRule)
		case SourceMeanReversion:
			if cfg.MeanReversionEnabled {
				g.rules = append(g.rules, meanReversionRule)
			}
		case SourceMomentum:
			if cfg.MomentumEnabled {
				g.rules = append(g.rules, momentumRule)
			}
		}
	}
	return g
}

// Evaluate runs the rules in order and returns the first signal, or nil.
//
// A single guard covers all rules: no signal is possible until every
// indicator window has filled on both snapshots, and volatility must clear
// the trade-enable threshold before any rule runs.
func (g *Generator) Evaluate(in Input) *Signal {
	if !in.Prev.Ready() || !in.Curr.Ready() || len(in.Recent) == 0 {
		return nil
	}
	if in.Curr.Volatility < g.cfg.VolatilityThreshold {
		return nil
	}
	for _, r := range g.rules {
		if sig := r(g.cfg, in); sig != nil {
			return sig
		}
	}
	return nil
}
