package indicator

import (
	"math"
	"testing"
)

func TestSMA_RollingWindow(t *testing.T) {
	sma := NewSMA(3)

	prices := []float64{10, 20, 30, 40, 50}
	want := []float64{0, 0, 20, 30, 40} // ready from the 3rd value

	for i, p := range prices {
		sma.Update(p)
		if i < 2 {
			if sma.Ready() {
				t.Fatalf("value %d: SMA should not be ready", i)
			}
			continue
		}
		if !sma.Ready() {
			t.Fatalf("value %d: SMA should be ready", i)
		}
		if math.Abs(sma.Value()-want[i]) > 1e-9 {
			t.Errorf("value %d: expected SMA=%.1f, got %.4f", i, want[i], sma.Value())
		}
	}
}

func TestEMA_SeedAndUpdate(t *testing.T) {
	ema := NewEMA(4) // k = 0.4

	for _, p := range []float64{10, 20, 30, 40} {
		ema.Update(p)
	}
	if math.Abs(ema.Value()-25.0) > 1e-9 {
		t.Fatalf("expected SMA seed 25, got %.4f", ema.Value())
	}

	ema.Update(35)
	// 35*0.4 + 25*0.6 = 29
	if math.Abs(ema.Value()-29.0) > 1e-9 {
		t.Errorf("expected EMA=29, got %.4f", ema.Value())
	}
}

func TestRSI_AllGains(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(float64(100 + i))
	}
	if !rsi.Ready() {
		t.Fatal("RSI should be ready")
	}
	if rsi.Value() != 100.0 {
		t.Errorf("monotonic rises: expected RSI=100, got %.4f", rsi.Value())
	}
}

func TestRSI_AlternatingEqualMoves(t *testing.T) {
	rsi := NewRSI(4)
	// Equal-magnitude up/down moves over the seed period: gains == losses.
	prices := []float64{100, 101, 100, 101, 100}
	for _, p := range prices {
		rsi.Update(p)
	}
	if !rsi.Ready() {
		t.Fatal("RSI should be ready after period+1 prices")
	}
	if math.Abs(rsi.Value()-50.0) > 1e-9 {
		t.Errorf("balanced moves: expected RSI=50, got %.4f", rsi.Value())
	}
}

func TestATR_CloseOnlyTrueRange(t *testing.T) {
	atr := NewATR(3)
	// Moves: +2, -1, +3 -> ATR = (2+1+3)/3 = 2
	for _, p := range []float64{100, 102, 101, 104} {
		atr.Update(p)
	}
	if !atr.Ready() {
		t.Fatal("ATR should be ready after period+1 prices")
	}
	if math.Abs(atr.Value()-2.0) > 1e-9 {
		t.Errorf("expected ATR=2, got %.4f", atr.Value())
	}
}

func TestVolatility_KnownReturns(t *testing.T) {
	vol := NewVolatility(2)
	// Returns: +10%, -10%. Sample stddev of {0.1, -0.1} = 0.1*sqrt(2).
	for _, p := range []float64{100, 110, 99} {
		vol.Update(p)
	}
	if !vol.Ready() {
		t.Fatal("volatility should be ready")
	}
	want := 0.1 * math.Sqrt2
	if math.Abs(vol.Value()-want) > 1e-9 {
		t.Errorf("expected vol=%.6f, got %.6f", want, vol.Value())
	}
}

func TestReset_AllIndicators(t *testing.T) {
	inds := []Indicator{NewSMA(3), NewEMA(3), NewRSI(3), NewATR(3), NewVolatility(3)}
	for _, ind := range inds {
		for i := 0; i < 10; i++ {
			ind.Update(float64(100 + i))
		}
		ind.Reset()
		if ind.Ready() {
			t.Errorf("%T still ready after Reset", ind)
		}
		if ind.Value() != 0 {
			t.Errorf("%T value not cleared after Reset: %v", ind, ind.Value())
		}
	}
}
