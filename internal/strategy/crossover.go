package strategy

import (
	"fmt"

	"contractbot/internal/model"
)

// crossoverRule fires when the short MA crosses the medium MA between the
// previous and current evaluation (edge-triggered, so the signal cannot
// re-fire every tick while the condition holds), with trend confirmation
// from the long MA and an RSI exhaustion filter.
func crossoverRule(cfg Config, in Input) *Signal {
	prev, curr := in.Prev, in.Curr

	crossedAbove := prev.ShortMA <= prev.MediumMA && curr.ShortMA > curr.MediumMA
	crossedBelow := prev.ShortMA >= prev.MediumMA && curr.ShortMA < curr.MediumMA

	if crossedAbove && curr.MediumMA > curr.LongMA && curr.RSI < cfg.RSIOverbought {
		return &Signal{
			Symbol:         in.Symbol,
			Direction:      model.DirectionBuy,
			Source:         SourceCrossover,
			GeneratedAt:    in.Now,
			ReferencePrice: in.price(),
			Reason: fmt.Sprintf("short MA crossed above medium (%.5f > %.5f), uptrend, RSI %.1f",
				curr.ShortMA, curr.MediumMA, curr.RSI),
		}
	}

	if crossedBelow && curr.MediumMA < curr.LongMA && curr.RSI > cfg.RSIOversold {
		return &Signal{
			Symbol:         in.Symbol,
			Direction:      model.DirectionSell,
			Source:         SourceCrossover,
			GeneratedAt:    in.Now,
			ReferencePrice: in.price(),
			Reason: fmt.Sprintf("short MA crossed below medium (%.5f < %.5f), downtrend, RSI %.1f",
				curr.ShortMA, curr.MediumMA, curr.RSI),
		}
	}

	return nil
}
