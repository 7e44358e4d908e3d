package strategy

import (
	"fmt"

	"contractbot/internal/model"
)

// Permissive RSI range for momentum entries: wide enough to ride a move,
// bounded to avoid chasing blow-offs.
const (
	momentumRSIFloor = 35.0
	momentumRSICeil  = 65.0
)

// momentumRule fires on a sharp fractional price change over the lookback
// window, confirmed by RSI sitting in a permissive range.
func momentumRule(cfg Config, in Input) *Signal {
	if cfg.PriceLookback <= 0 || len(in.Recent) < cfg.PriceLookback+1 {
		return nil
	}

	price := in.price()
	base := in.Recent[len(in.Recent)-1-cfg.PriceLookback]
	if base == 0 {
		return nil
	}
	pct := price/base - 1
	rsi := in.Curr.RSI

	if pct > cfg.MomentumThreshold && rsi > momentumRSIFloor && rsi < cfg.RSIOverbought {
		return &Signal{
			Symbol:         in.Symbol,
			Direction:      model.DirectionBuy,
			Source:         SourceMomentum,
			GeneratedAt:    in.Now,
			ReferencePrice: price,
			Reason: fmt.Sprintf("+%.3f%% over %d points, RSI %.1f",
				pct*100, cfg.PriceLookback, rsi),
		}
	}

	if pct < -cfg.MomentumThreshold && rsi < momentumRSICeil && rsi > cfg.RSIOversold {
		return &Signal{
			Symbol:         in.Symbol,
			Direction:      model.DirectionSell,
			Source:         SourceMomentum,
			GeneratedAt:    in.Now,
			ReferencePrice: price,
			Reason: fmt.Sprintf("%.3f%% over %d points, RSI %.1f",
				pct*100, cfg.PriceLookback, rsi),
		}
	}

	return nil
}
