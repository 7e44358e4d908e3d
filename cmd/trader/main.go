package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"contractbot/config"
	"contractbot/internal/engine"
	"contractbot/internal/execution"
	"contractbot/internal/feed"
	"contractbot/internal/indicator"
	"contractbot/internal/lifecycle"
	"contractbot/internal/logger"
	"contractbot/internal/markethours"
	"contractbot/internal/metrics"
	"contractbot/internal/model"
	"contractbot/internal/perf"
	"contractbot/internal/risk"
	redisstore "contractbot/internal/store/redis"
	"contractbot/internal/strategy"
	"contractbot/pkg/binaryws"
)

const reconnectMaxBackoff = time.Minute

// swappableGateway lets the lifecycle manager survive broker reconnects: the
// manager keeps one reference while main swaps the live client underneath.
type swappableGateway struct {
	mu sync.Mutex
	gw model.OrderGateway
}

func (s *swappableGateway) set(gw model.OrderGateway) {
	s.mu.Lock()
	s.gw = gw
	s.mu.Unlock()
}

func (s *swappableGateway) SubmitOrder(ctx context.Context, req model.OrderRequest) error {
	s.mu.Lock()
	gw := s.gw
	s.mu.Unlock()
	if gw == nil {
		return errors.New("no broker connection")
	}
	return gw.SubmitOrder(ctx, req)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[trader] starting...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[trader] %v", err)
	}
	slogger := logger.Init("trader", logger.ParseLevel(cfg.LogLevel))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Event fan-out: prometheus always, redis when configured ----
	sinks := model.MultiSink{prom}
	var pub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		var err error
		pub, err = redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.RedisStream,
		})
		if err != nil {
			log.Fatalf("[trader] redis: %v", err)
		}
		defer pub.Close()
		health.SetRedisConnected(true)
		sinks = append(sinks, pub)
	}

	// ---- Trade journal ----
	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
		log.Fatalf("[trader] journal dir: %v", err)
	}
	journal, err := execution.NewJournal(execution.JournalConfig{DBPath: cfg.JournalPath})
	if err != nil {
		log.Fatalf("[trader] journal: %v", err)
	}
	defer journal.Close()
	health.CheckSQLite(context.Background(), journal.DB())

	// ---- Decision pipeline ----
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
		log.Fatalf("[trader] indicators: %v", err)
	}

	ruleOrder, err := strategy.ParseRuleOrder(cfg.ParseRuleOrder())
	if err != nil {
		log.Fatalf("[trader] rules: %v", err)
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
		log.Fatalf("[trader] trading window: %v", err)
	}
	recorder := perf.NewRecorder(cfg.InitialBalance)
	limits := risk.Limits{
		MaxRisk:         cfg.MaxRisk,
		MaxDailyLoss:    cfg.MaxDailyLoss,
		RiskPerTrade:    cfg.RiskPerTrade,
		MaxOpenTrades:   cfg.MaxOpenTrades,
		ATRMultiplier:   cfg.ATRMultiplier,
		RiskRewardRatio: cfg.RiskRewardRatio,
		MaxDrawdown:     cfg.MaxDrawdown,
		StakePrecision:  cfg.StakePrecision,
		Window:          window,
	}
	if err := limits.Validate(); err != nil {
		log.Fatalf("[trader] risk limits: %v", err)
	}
	gate := risk.NewGate(limits, recorder)

	gwHolder := &swappableGateway{}
	mgr := lifecycle.NewManager(lifecycle.Config{
		InitialBalance: cfg.InitialBalance,
		AckTimeout:     cfg.AckTimeout,
	}, gwHolder, lifecycle.Sinks{
		Recorder: recorder,
		Journal:  journal,
		Events:   sinks,
	}, slogger)

	eng := engine.New(engine.Config{
		Symbol:           cfg.Symbol,
		ContractDuration: cfg.ContractDuration,
		WarmupCount:      cfg.WarmupCount,
	}, ind, gen, gate, mgr, recorder, prom, sinks, slogger)

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[trader] received %v, shutting down", sig)
		cancel()
	}()

	// Periodic journal probe keeps /healthz honest about the database.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, probeCancel := context.WithTimeout(ctx, 2*time.Second)
				health.CheckSQLite(probeCtx, journal.DB())
				probeCancel()
			}
		}
	}()

	switch cfg.Mode {
	case "paper":
		runPaper(ctx, cfg, eng, gwHolder, health)
	case "live":
		runLive(ctx, cfg, eng, gwHolder, prom, health)
	}

	// ---- Drain and report ----
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, tr := range mgr.OpenTrades() {
		log.Printf("[trader] trade %s still open at shutdown (broker ref %s, stake %.3f)",
			tr.ID, tr.BrokerRef, tr.Stake)
	}
	mgr.FailPending(shutdownCtx, "shutdown")
	metricsSrv.Stop(shutdownCtx)

	stats := recorder.Stats()
	log.Printf("[trader] session summary: trades=%d win_rate=%.1f%% net_pnl=%.2f max_dd=%.1f%%",
		stats.Trades, stats.WinRate*100, stats.NetPnL, stats.MaxDrawdown*100)
	log.Println("[trader] stopped")
}

// runPaper trades against the simulated feed and broker. The sim never
// disconnects, so one session covers the whole run.
func runPaper(ctx context.Context, cfg *config.Config, eng *engine.Engine,
	gwHolder *swappableGateway, health *metrics.HealthStatus) {

	sim := feed.NewSim(feed.SimConfig{
		StepVol:  cfg.SimStepVol,
		Interval: time.Second,
		Seed:     cfg.SimSeed,
	})
	paper := execution.NewPaperGateway(execution.PaperConfig{
		AckDelay: cfg.PaperAck,
		Payout:   cfg.Payout,
	})
	gwHolder.set(paper)

	if _, err := eng.WarmUp(ctx, sim); err != nil {
		log.Fatalf("[trader] warm-up: %v", err)
	}
	health.SetWSConnected(true)

	rawCh := make(chan model.PricePoint, 1024)
	priceCh := make(chan model.PricePoint, 1024)
	go func() {
		defer close(priceCh)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-rawCh:
				paper.OnPrice(p)
				health.Tick(p.TS)
				priceCh <- p
			}
		}
	}()
	go sim.Subscribe(ctx, cfg.Symbol, rawCh)

	eng.Run(ctx, priceCh, paper.Events())
}

// runLive connects to the broker and keeps reconnecting with exponential
// backoff. Every new session re-warms indicator state from history so a feed
// gap can never produce a bogus crossover.
func runLive(ctx context.Context, cfg *config.Config, eng *engine.Engine,
	gwHolder *swappableGateway, prom *metrics.Metrics, health *metrics.HealthStatus) {

	backoff := time.Second
	for ctx.Err() == nil {
		client, err := binaryws.Dial(ctx, binaryws.Config{
			URL:        cfg.BrokerWSURL,
			AppID:      cfg.BrokerAppID,
			APIToken:   cfg.BrokerAPIToken,
			TOTPSecret: cfg.BrokerTOTPSecret,
		})
		if err != nil {
			log.Printf("[trader] broker dial failed: %v, retrying in %v", err, backoff)
			prom.WSReconnects.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > reconnectMaxBackoff {
				backoff = reconnectMaxBackoff
			}
			continue
		}
		backoff = time.Second
		gwHolder.set(client)
		health.SetWSConnected(true)

		runLiveSession(ctx, cfg, eng, client, health)

		gwHolder.set(nil)
		health.SetWSConnected(false)
		client.Close()
		if ctx.Err() == nil {
			log.Println("[trader] broker session ended, reconnecting")
			prom.WSReconnects.Inc()
		}
	}
}

// runLiveSession runs one broker connection to completion.
func runLiveSession(ctx context.Context, cfg *config.Config, eng *engine.Engine,
	client *binaryws.Client, health *metrics.HealthStatus) {

	sctx, scancel := context.WithCancel(ctx)
	defer scancel()

	// Fresh indicator series for this connection.
	eng.Reset()
	if _, err := eng.WarmUp(sctx, client); err != nil {
		log.Printf("[trader] warm-up failed: %v", err)
		return
	}

	rawCh := make(chan model.PricePoint, 1024)
	priceCh := make(chan model.PricePoint, 1024)
	go func() {
		defer close(priceCh)
		for {
			select {
			case <-sctx.Done():
				return
			case p := <-rawCh:
				health.Tick(p.TS)
				priceCh <- p
			}
		}
	}()
	go func() {
		defer scancel()
		if err := client.Subscribe(sctx, cfg.Symbol, rawCh); err != nil && ctx.Err() == nil {
			log.Printf("[trader] feed ended: %v", err)
		}
	}()

	eng.Run(sctx, priceCh, client.Events())
}
