// Package risk gates approved signals into sized orders. Every signal passes
// through a fixed sequence of account-level checks; the first failing check
// rejects the trade with its reason, and only a fully clean pass produces a
// position size and protective levels.
package risk

import (
	"fmt"
	"math"
	"time"

	"contractbot/internal/markethours"
	"contractbot/internal/model"
	"contractbot/internal/strategy"
)

// Rejection reasons, in the order the checks run.
const (
	ReasonOutsideTradingHours = "outside trading window"
	ReasonTooManyOpenTrades   = "too many open trades"
	ReasonDailyLossLimit      = "daily loss limit reached"
	ReasonInsufficientBudget  = "insufficient risk budget"
	ReasonDrawdownProtection  = "drawdown protection"
	ReasonNonPositiveStake    = "non-positive stake"
)

// Limits holds the account-protection parameters.
type Limits struct {
	MaxRisk         float64 // max fraction of balance concurrently at risk
	MaxDailyLoss    float64 // daily loss cutoff as a fraction of balance
	RiskPerTrade    float64 // fraction of balance risked per trade
	MaxOpenTrades   int
	ATRMultiplier   float64 // stop distance in ATR units
	RiskRewardRatio float64 // target distance as a multiple of stop distance
	MaxDrawdown     float64 // peak-to-trough equity fraction that halts trading
	StakePrecision  int     // decimal places the broker accepts for stakes

	Window markethours.Window
}

// Validate rejects limit combinations that would approve every trade or none.
func (l Limits) Validate() error {
	if l.RiskPerTrade <= 0 || l.RiskPerTrade > 1 {
		return fmt.Errorf("risk: risk per trade %v out of (0,1]", l.RiskPerTrade)
	}
	if l.MaxRisk <= 0 || l.MaxRisk > 1 {
		return fmt.Errorf("risk: max risk %v out of (0,1]", l.MaxRisk)
	}
	if l.MaxOpenTrades <= 0 {
		return fmt.Errorf("risk: max open trades must be positive, got %d", l.MaxOpenTrades)
	}
	if l.ATRMultiplier <= 0 {
		return fmt.Errorf("risk: ATR multiplier must be positive, got %v", l.ATRMultiplier)
	}
	if l.RiskRewardRatio <= 0 {
		return fmt.Errorf("risk: risk/reward ratio must be positive, got %v", l.RiskRewardRatio)
	}
	return nil
}

// Decision is the outcome of assessing one signal.
type Decision struct {
	Approved bool
	Reason   string // populated on rejection

	PositionSize float64
	StopLoss     float64
	TakeProfit   float64
}

// StatsProvider supplies the realized drawdown of the account's equity curve.
type StatsProvider interface {
	MaxDrawdown() float64
}

// Gate applies the layered risk checks.
type Gate struct {
	limits Limits
	stats  StatsProvider
}

// NewGate builds a gate. stats may be nil, which disables the drawdown check.
func NewGate(limits Limits, stats StatsProvider) *Gate {
	return &Gate{limits: limits, stats: stats}
}

// Assess runs the checks in order against the current account state and
// returns either an approved decision with sizing and protective levels or
// the first rejection reason hit.
func (g *Gate) Assess(sig *strategy.Signal, atr float64, acct model.AccountState, now time.Time) Decision {
	l := g.limits

	if !l.Window.Contains(now) {
		return Decision{Reason: ReasonOutsideTradingHours}
	}

	if acct.OpenTradeCount >= l.MaxOpenTrades {
		return Decision{Reason: ReasonTooManyOpenTrades}
	}

	if acct.DailyPnL <= -l.MaxDailyLoss*acct.Balance {
		return Decision{Reason: ReasonDailyLossLimit}
	}

	size := g.positionSize(acct.Balance)
	if size <= 0 {
		return Decision{Reason: ReasonNonPositiveStake}
	}

	budget := l.MaxRisk*acct.Balance - acct.OpenRiskSum
	if size > budget {
		return Decision{Reason: ReasonInsufficientBudget}
	}

	if g.stats != nil && l.MaxDrawdown > 0 && g.stats.MaxDrawdown() >= l.MaxDrawdown {
		return Decision{Reason: ReasonDrawdownProtection}
	}

	stop, target := g.protectiveLevels(sig.Direction, sig.ReferencePrice, atr)
	return Decision{
		Approved:     true,
		PositionSize: size,
		StopLoss:     stop,
		TakeProfit:   target,
	}
}

// positionSize splits the per-trade risk budget evenly across the allowed
// slots and rounds to the broker's stake precision.
func (g *Gate) positionSize(balance float64) float64 {
	slots := g.limits.MaxOpenTrades
	if slots < 1 {
		slots = 1
	}
	raw := balance * g.limits.RiskPerTrade / float64(slots)
	return roundTo(raw, g.limits.StakePrecision)
}

// protectiveLevels derives the stop from the current ATR and places the
// target so that reward/risk equals the configured ratio.
func (g *Gate) protectiveLevels(dir model.Direction, entry, atr float64) (stop, target float64) {
	dist := atr * g.limits.ATRMultiplier
	if dir == model.DirectionBuy {
		stop = entry - dist
		target = entry + dist*g.limits.RiskRewardRatio
		return stop, target
	}
	stop = entry + dist
	target = entry - dist*g.limits.RiskRewardRatio
	return stop, target
}

func roundTo(v float64, places int) float64 {
	if places < 0 {
		places = 0
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
