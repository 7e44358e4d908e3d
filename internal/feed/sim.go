// Package feed provides price sources. Sim is a seedable random-walk feed
// used for paper trading and development without a broker connection.
package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"contractbot/internal/model"
)

// SimConfig parameterizes the random walk.
type SimConfig struct {
	StartPrice float64       // initial price level
	StepVol    float64       // stddev of each step as a fraction of price
	Interval   time.Duration // spacing between live ticks
	Seed       int64         // 0 seeds from the wall clock
}

// Sim is a geometric random-walk price source. It serves history and a live
// stream from the same walk, so warm-up and live ticks form one continuous
// series.
type Sim struct {
	cfg SimConfig

	mu    sync.Mutex
	rng   *rand.Rand
	price float64
	ts    time.Time
}

// NewSim builds a simulated feed.
func NewSim(cfg SimConfig) *Sim {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 100
	}
	if cfg.StepVol <= 0 {
		cfg.StepVol = 0.001
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sim{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		price: cfg.StartPrice,
		ts:    time.Now().UTC().Add(-time.Duration(1) * cfg.Interval),
	}
}

// step advances the walk by one tick and returns the new point.
func (s *Sim) step(symbol string) model.PricePoint {
	s.price *= 1 + s.cfg.StepVol*s.rng.NormFloat64()
	s.ts = s.ts.Add(s.cfg.Interval)
	return model.PricePoint{Symbol: symbol, TS: s.ts, Price: s.price}
}

// FetchHistory generates the next count points of the walk in ascending
// order. A following Subscribe continues the same series.
func (s *Sim) FetchHistory(_ context.Context, symbol string, count int) ([]model.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PricePoint, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.step(symbol))
	}
	return out, nil
}

// Subscribe emits one point per interval until ctx is cancelled.
func (s *Sim) Subscribe(ctx context.Context, symbol string, out chan<- model.PricePoint) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			p := s.step(symbol)
			s.mu.Unlock()

			select {
			case out <- p:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
