package risk

import (
	"math"
	"testing"
	"time"

	"contractbot/internal/markethours"
	"contractbot/internal/model"
	"contractbot/internal/strategy"
)

type fixedStats struct{ dd float64 }

func (f fixedStats) MaxDrawdown() float64 { return f.dd }

func testLimits() Limits {
	return Limits{
		MaxRisk:         0.10,
		MaxDailyLoss:    0.05,
		RiskPerTrade:    0.02,
		MaxOpenTrades:   3,
		ATRMultiplier:   1.5,
		RiskRewardRatio: 1.5,
		MaxDrawdown:     0.20,
		StakePrecision:  3,
		Window:          markethours.FullDay,
	}
}

func buySignal() *strategy.Signal {
	return &strategy.Signal{
		Symbol:         "R_100",
		Direction:      model.DirectionBuy,
		Source:         strategy.SourceCrossover,
		ReferencePrice: 100.0,
	}
}

func freshAccount() model.AccountState {
	return model.AccountState{Balance: 1000, PeakBalance: 1000}
}

var noon = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func TestAssess_ApprovedSizingAndLevels(t *testing.T) {
	g := NewGate(testLimits(), fixedStats{})

	dec := g.Assess(buySignal(), 2.0, freshAccount(), noon)
	if !dec.Approved {
		t.Fatalf("expected approval, got rejection %q", dec.Reason)
	}

	// 1000 * 0.02 / 3 slots = 6.666..., rounded to 3 places.
	if dec.PositionSize != 6.667 {
		t.Errorf("expected stake 6.667, got %v", dec.PositionSize)
	}

	// ATR 2.0 * multiplier 1.5 = stop distance 3; target at 1.5x that.
	if math.Abs(dec.StopLoss-97.0) > 1e-9 {
		t.Errorf("expected stop 97, got %v", dec.StopLoss)
	}
	if math.Abs(dec.TakeProfit-104.5) > 1e-9 {
		t.Errorf("expected target 104.5, got %v", dec.TakeProfit)
	}
}

func TestAssess_SellLevelsMirror(t *testing.T) {
	g := NewGate(testLimits(), nil)

	sig := buySignal()
	sig.Direction = model.DirectionSell

	dec := g.Assess(sig, 2.0, freshAccount(), noon)
	if !dec.Approved {
		t.Fatalf("expected approval, got rejection %q", dec.Reason)
	}
	if math.Abs(dec.StopLoss-103.0) > 1e-9 || math.Abs(dec.TakeProfit-95.5) > 1e-9 {
		t.Errorf("sell levels wrong: stop %v target %v", dec.StopLoss, dec.TakeProfit)
	}
}

func TestAssess_OpenTradeCap(t *testing.T) {
	g := NewGate(testLimits(), fixedStats{})

	acct := freshAccount()
	acct.OpenTradeCount = 3

	// The cap applies regardless of available balance or risk budget.
	dec := g.Assess(buySignal(), 2.0, acct, noon)
	if dec.Approved || dec.Reason != ReasonTooManyOpenTrades {
		t.Errorf("expected %q, got %+v", ReasonTooManyOpenTrades, dec)
	}
}

func TestAssess_DailyLossLimit(t *testing.T) {
	g := NewGate(testLimits(), fixedStats{})

	acct := freshAccount()
	acct.DailyPnL = -50 // exactly 5% of balance

	dec := g.Assess(buySignal(), 2.0, acct, noon)
	if dec.Approved || dec.Reason != ReasonDailyLossLimit {
		t.Errorf("expected %q, got %+v", ReasonDailyLossLimit, dec)
	}

	acct.DailyPnL = -49.99
	if dec := g.Assess(buySignal(), 2.0, acct, noon); !dec.Approved {
		t.Errorf("loss under the limit should pass, got %q", dec.Reason)
	}
}

func TestAssess_RiskBudget(t *testing.T) {
	g := NewGate(testLimits(), fixedStats{})

	acct := freshAccount()
	acct.OpenTradeCount = 2
	acct.OpenRiskSum = 95 // budget left: 100 - 95 = 5, next stake needs 6.667

	dec := g.Assess(buySignal(), 2.0, acct, noon)
	if dec.Approved || dec.Reason != ReasonInsufficientBudget {
		t.Errorf("expected %q, got %+v", ReasonInsufficientBudget, dec)
	}
}

func TestAssess_DrawdownProtection(t *testing.T) {
	g := NewGate(testLimits(), fixedStats{dd: 0.25})

	dec := g.Assess(buySignal(), 2.0, freshAccount(), noon)
	if dec.Approved || dec.Reason != ReasonDrawdownProtection {
		t.Errorf("expected %q, got %+v", ReasonDrawdownProtection, dec)
	}

	// nil stats provider disables the check entirely.
	if dec := NewGate(testLimits(), nil).Assess(buySignal(), 2.0, freshAccount(), noon); !dec.Approved {
		t.Errorf("nil stats should skip drawdown check, got %q", dec.Reason)
	}
}

func TestAssess_TradingWindow(t *testing.T) {
	l := testLimits()
	w, err := markethours.ParseWindow("09:00-17:00")
	if err != nil {
		t.Fatal(err)
	}
	l.Window = w
	g := NewGate(l, fixedStats{})

	night := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	dec := g.Assess(buySignal(), 2.0, freshAccount(), night)
	if dec.Approved || dec.Reason != ReasonOutsideTradingHours {
		t.Errorf("expected %q, got %+v", ReasonOutsideTradingHours, dec)
	}

	if dec := g.Assess(buySignal(), 2.0, freshAccount(), noon); !dec.Approved {
		t.Errorf("in-window signal should pass, got %q", dec.Reason)
	}
}

func TestAssess_ZeroBalance(t *testing.T) {
	g := NewGate(testLimits(), fixedStats{})

	// With a zero balance the loss limit is also zero, so the daily-loss
	// check trips first (0 <= -0) and the account can never trade again
	// regardless of sizing.
	acct := model.AccountState{Balance: 0}
	dec := g.Assess(buySignal(), 2.0, acct, noon)
	if dec.Approved || dec.Reason != ReasonDailyLossLimit {
		t.Errorf("expected %q, got %+v", ReasonDailyLossLimit, dec)
	}
}

func TestAssess_StakeRoundsToZero(t *testing.T) {
	g := NewGate(testLimits(), fixedStats{})

	// 0.01 * 0.02 / 3 rounds to 0 at three decimals while every earlier
	// check still passes.
	acct := model.AccountState{Balance: 0.01, PeakBalance: 0.01}
	dec := g.Assess(buySignal(), 2.0, acct, noon)
	if dec.Approved || dec.Reason != ReasonNonPositiveStake {
		t.Errorf("expected %q, got %+v", ReasonNonPositiveStake, dec)
	}
}

func TestLimitsValidate(t *testing.T) {
	if err := testLimits().Validate(); err != nil {
		t.Errorf("default limits should validate: %v", err)
	}

	bad := testLimits()
	bad.RiskPerTrade = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero risk per trade should fail validation")
	}

	bad = testLimits()
	bad.MaxOpenTrades = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero open trade cap should fail validation")
	}
}
