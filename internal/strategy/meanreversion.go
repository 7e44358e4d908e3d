package strategy

import (
	"fmt"

	"contractbot/internal/model"
)

// RSI band edges for the mean-reversion rule: entries are only taken while
// momentum oscillators sit in neutral territory, never at exhaustion.
const (
	meanRevNeutralLow  = 40.0
	meanRevNeutralHigh = 60.0
)

// meanReversionRule fires when price has stretched away from the medium MA by
// at least the configured fraction and the short-horizon move is turning back
// toward it.
func meanReversionRule(cfg Config, in Input) *Signal {
	turn, ok := priceChange(in.Recent, cfg.PriceLookback)
	if !ok || in.Curr.MediumMA == 0 {
		return nil
	}

	price := in.price()
	distance := (price - in.Curr.MediumMA) / in.Curr.MediumMA
	rsi := in.Curr.RSI

	// Stretched below the mean, turning up, RSI off the floor but not hot.
	if distance <= -cfg.MeanReversionDistance && turn > 0 &&
		rsi > cfg.RSIOversold && rsi < meanRevNeutralHigh {
		return &Signal{
			Symbol:         in.Symbol,
			Direction:      model.DirectionBuy,
			Source:         SourceMeanReversion,
			GeneratedAt:    in.Now,
			ReferencePrice: price,
			Reason: fmt.Sprintf("price %.3f%% below medium MA, turning up, RSI %.1f",
				-distance*100, rsi),
		}
	}

	// Mirror: stretched above the mean, turning down.
	if distance >= cfg.MeanReversionDistance && turn < 0 &&
		rsi < cfg.RSIOverbought && rsi > meanRevNeutralLow {
		return &Signal{
			Symbol:         in.Symbol,
			Direction:      model.DirectionSell,
			Source:         SourceMeanReversion,
			GeneratedAt:    in.Now,
			ReferencePrice: price,
			Reason: fmt.Sprintf("price %.3f%% above medium MA, turning down, RSI %.1f",
				distance*100, rsi),
		}
	}

	return nil
}

// priceChange returns the absolute change over the last lookback steps of the
// recent window. ok is false when the window is too short.
func priceChange(recent []float64, lookback int) (float64, bool) {
	if lookback <= 0 || len(recent) < lookback+1 {
		return 0, false
	}
	return recent[len(recent)-1] - recent[len(recent)-1-lookback], true
}
