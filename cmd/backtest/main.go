// Command backtest replays a historical price series through the full
// decision pipeline with a deterministic tick-settled broker, then prints a
// performance summary. Strategy and risk parameters come from the same
// environment variables the live trader uses.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"contractbot/config"
	"contractbot/internal/engine"
	"contractbot/internal/execution"
	"contractbot/internal/feed"
	"contractbot/internal/indicator"
	"contractbot/internal/lifecycle"
	"contractbot/internal/logger"
	"contractbot/internal/markethours"
	"contractbot/internal/model"
	"contractbot/internal/perf"
	"contractbot/internal/risk"
	"contractbot/internal/strategy"
)

// replayClock makes the lifecycle manager live on replay time instead of the
// wall clock, so ack timeouts and daily rollovers follow the data.
type replayClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *replayClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t.IsZero() {
		return time.Now()
	}
	return c.t
}

func main() {
	csvPath := flag.String("csv", "", "CSV file of ts,price rows; empty runs the simulated feed")
	simTicks := flag.Int("sim-ticks", 10000, "number of simulated ticks when no CSV is given")
	durationTicks := flag.Int("duration-ticks", 60, "ticks until each contract settles")
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	cfg := config.Load()
	slogger := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	points, err := loadSeries(cfg, *csvPath, *simTicks)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	if len(points) <= cfg.WarmupCount {
		log.Fatalf("[backtest] series too short: %d points, warm-up needs %d",
			len(points), cfg.WarmupCount)
	}
	log.Printf("[backtest] replaying %d points of %s", len(points), cfg.Symbol)

	// ---- Pipeline, wired like the trader but without network adapters ----
	ind, err := indicator.NewEngine(indicator.Config{
		ShortWindow:  cfg.ShortWindow,
		MediumWindow: cfg.MediumWindow,
		LongWindow:   cfg.LongWindow,
		RSIPeriod:    cfg.RSIPeriod,
		ATRPeriod:    cfg.ATRPeriod,
		VolWindow:    cfg.VolWindow,
		MAType:       cfg.MAType,
	})
	if err != nil {
		log.Fatalf("[backtest] indicators: %v", err)
	}

	ruleOrder, err := strategy.ParseRuleOrder(cfg.ParseRuleOrder())
	if err != nil {
		log.Fatalf("[backtest] rules: %v", err)
	}
	gen := strategy.NewGenerator(strategy.Config{
		RSIOverbought:         cfg.RSIOverbought,
		RSIOversold:           cfg.RSIOversold,
		VolatilityThreshold:   cfg.VolatilityThreshold,
		MeanReversionEnabled:  cfg.MeanReversionEnabled,
		MeanReversionDistance: cfg.MeanReversionDistance,
		MomentumEnabled:       cfg.MomentumEnabled,
		MomentumThreshold:     cfg.MomentumThreshold,
		PriceLookback:         cfg.PriceLookback,
		RuleOrder:             ruleOrder,
	})

	window, err := markethours.ParseWindow(cfg.TradingWindow)
	if err != nil {
		log.Fatalf("[backtest] trading window: %v", err)
	}
	recorder := perf.NewRecorder(cfg.InitialBalance)
	gate := risk.NewGate(risk.Limits{
		MaxRisk:         cfg.MaxRisk,
		MaxDailyLoss:    cfg.MaxDailyLoss,
		RiskPerTrade:    cfg.RiskPerTrade,
		MaxOpenTrades:   cfg.MaxOpenTrades,
		ATRMultiplier:   cfg.ATRMultiplier,
		RiskRewardRatio: cfg.RiskRewardRatio,
		MaxDrawdown:     cfg.MaxDrawdown,
		StakePrecision:  cfg.StakePrecision,
		Window:          window,
	}, recorder)

	clock := &replayClock{}
	gw := execution.NewBacktestGateway(cfg.Payout, *durationTicks)
	mgr := lifecycle.NewManager(lifecycle.Config{
		InitialBalance: cfg.InitialBalance,
		// Acks are synchronous in the replay broker; no timeout needed.
		AckTimeout: 0,
		Now:        clock.Now,
	}, gw, lifecycle.Sinks{Recorder: recorder}, slogger)

	eng := engine.New(engine.Config{
		Symbol:           cfg.Symbol,
		ContractDuration: cfg.ContractDuration,
		WarmupCount:      cfg.WarmupCount,
	}, ind, gen, gate, mgr, recorder, nil, nil, slogger)

	// ---- Replay ----
	ctx := context.Background()
	warm, rest := points[:cfg.WarmupCount], points[cfg.WarmupCount:]
	clock.Set(warm[len(warm)-1].TS)
	for _, p := range warm {
		gw.OnPrice(p)
	}
	gw.Drain() // nothing is open during warm-up, discard
	if _, err := eng.WarmUp(ctx, sliceHistory(warm)); err != nil {
		log.Fatalf("[backtest] warm-up: %v", err)
	}

	for _, p := range rest {
		clock.Set(p.TS)
		gw.OnPrice(p)
		for _, ev := range gw.Drain() {
			eng.OnExec(ctx, ev)
		}
		eng.OnPrice(ctx, p)
		for _, ev := range gw.Drain() {
			eng.OnExec(ctx, ev)
		}
	}
	mgr.FailPending(ctx, "end of series")

	printSummary(cfg, recorder.Stats(), mgr.AccountSnapshot())
}

// sliceHistory adapts a pre-loaded slice to the history-fetch capability.
type sliceHistory []model.PricePoint

func (s sliceHistory) FetchHistory(context.Context, string, int) ([]model.PricePoint, error) {
	return s, nil
}

// loadSeries reads the CSV when given, otherwise generates a seeded walk.
func loadSeries(cfg *config.Config, csvPath string, simTicks int) ([]model.PricePoint, error) {
	if csvPath == "" {
		sim := feed.NewSim(feed.SimConfig{
			StepVol:  cfg.SimStepVol,
			Interval: time.Second,
			Seed:     cfg.SimSeed,
		})
		return sim.FetchHistory(context.Background(), cfg.Symbol, simTicks)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	var out []model.PricePoint
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", csvPath, line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%s line %d: want ts,price", csvPath, line)
		}
		ts, err := parseTS(rec[0])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("%s line %d: %w", csvPath, line, err)
		}
		price, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", csvPath, line, err)
		}
		out = append(out, model.PricePoint{Symbol: cfg.Symbol, TS: ts, Price: price})
	}
	return out, nil
}

// parseTS accepts unix seconds or RFC3339.
func parseTS(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func printSummary(cfg *config.Config, s perf.Stats, acct model.AccountState) {
	fmt.Println("----------------------------------------")
	fmt.Printf(" Backtest: %s\n", cfg.Symbol)
	fmt.Println("----------------------------------------")
	fmt.Printf(" Trades          %d (W %d / L %d / BE %d)\n", s.Trades, s.Wins, s.Losses, s.Breakevens)
	fmt.Printf(" Win rate        %.1f%%\n", s.WinRate*100)
	fmt.Printf(" Net P/L         %+.2f\n", s.NetPnL)
	fmt.Printf(" Avg win/loss    %+.2f / %+.2f\n", s.AvgWin, s.AvgLoss)
	fmt.Printf(" Max drawdown    %.1f%%\n", s.MaxDrawdown*100)
	fmt.Printf(" Sharpe          %.2f\n", s.Sharpe)
	fmt.Printf(" Final balance   %.2f (start %.2f)\n", acct.Balance, cfg.InitialBalance)
	fmt.Println("----------------------------------------")
}
