// Package config loads all application configuration from environment
// variables with sensible defaults. Broker credentials are only required in
// live mode.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Run mode: "paper" or "live"
	Mode string

	// Instrument
	Symbol           string
	ContractDuration time.Duration
	WarmupCount      int

	// Broker (live mode)
	BrokerWSURL      string
	BrokerAppID      string
	BrokerAPIToken   string
	BrokerTOTPSecret string

	// Indicators
	ShortWindow  int
	MediumWindow int
	LongWindow   int
	RSIPeriod    int
	ATRPeriod    int
	VolWindow    int
	MAType       string

	// Signal rules
	RSIOverbought         float64
	RSIOversold           float64
	VolatilityThreshold   float64
	MeanReversionEnabled  bool
	MeanReversionDistance float64
	MomentumEnabled       bool
	MomentumThreshold     float64
	PriceLookback         int
	RuleOrder             string // comma-separated, e.g. "crossover,mean_reversion,momentum"

	// Risk
	MaxRisk         float64
	MaxDailyLoss    float64
	RiskPerTrade    float64
	MaxOpenTrades   int
	ATRMultiplier   float64
	RiskRewardRatio float64
	MaxDrawdown     float64
	StakePrecision  int
	TradingWindow   string
	AckTimeout      time.Duration

	// Account
	InitialBalance float64

	// Paper feed
	SimSeed    int64
	SimStepVol float64
	PaperAck   time.Duration
	Payout     float64

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisStream   string
	JournalPath   string
	MetricsAddr   string
	LogLevel      string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		Mode: getEnv("MODE", "paper"),

		Symbol:           getEnv("SYMBOL", "R_100"),
		ContractDuration: getEnvDuration("CONTRACT_DURATION", time.Minute),
		WarmupCount:      getEnvInt("WARMUP_COUNT", 120),

		BrokerWSURL:      getEnv("BROKER_WS_URL", "wss://ws.derivws.com/websockets/v3"),
		BrokerAppID:      getEnv("BROKER_APP_ID", ""),
		BrokerAPIToken:   getEnv("BROKER_API_TOKEN", ""),
		BrokerTOTPSecret: getEnv("BROKER_TOTP_SECRET", ""),

		ShortWindow:  getEnvInt("SHORT_WINDOW", 3),
		MediumWindow: getEnvInt("MEDIUM_WINDOW", 10),
		LongWindow:   getEnvInt("LONG_WINDOW", 30),
		RSIPeriod:    getEnvInt("RSI_PERIOD", 10),
		ATRPeriod:    getEnvInt("ATR_PERIOD", 10),
		VolWindow:    getEnvInt("VOLATILITY_WINDOW", 20),
		MAType:       getEnv("MA_TYPE", "EMA"),

		RSIOverbought:         getEnvFloat("RSI_OVERBOUGHT", 75),
		RSIOversold:           getEnvFloat("RSI_OVERSOLD", 25),
		VolatilityThreshold:   getEnvFloat("VOLATILITY_THRESHOLD", 0.005),
		MeanReversionEnabled:  getEnvBool("MEAN_REVERSION_ENABLED", true),
		MeanReversionDistance: getEnvFloat("MEAN_REVERSION_DISTANCE", 0.001),
		MomentumEnabled:       getEnvBool("MOMENTUM_ENABLED", true),
		MomentumThreshold:     getEnvFloat("MOMENTUM_THRESHOLD", 0.001),
		PriceLookback:         getEnvInt("PRICE_LOOKBACK", 3),
		RuleOrder:             getEnv("RULE_ORDER", "crossover,mean_reversion,momentum"),

		MaxRisk:         getEnvFloat("MAX_RISK", 0.10),
		MaxDailyLoss:    getEnvFloat("MAX_DAILY_LOSS", 0.05),
		RiskPerTrade:    getEnvFloat("RISK_PER_TRADE", 0.02),
		MaxOpenTrades:   getEnvInt("MAX_OPEN_TRADES", 3),
		ATRMultiplier:   getEnvFloat("ATR_MULTIPLIER", 1.5),
		RiskRewardRatio: getEnvFloat("RISK_REWARD_RATIO", 1.5),
		MaxDrawdown:     getEnvFloat("MAX_DRAWDOWN", 0.20),
		StakePrecision:  getEnvInt("STAKE_PRECISION", 3),
		TradingWindow:   getEnv("TRADING_WINDOW", "00:00-24:00"),
		AckTimeout:      getEnvDuration("ACK_TIMEOUT", 5*time.Second),

		InitialBalance: getEnvFloat("INITIAL_BALANCE", 1000),

		SimSeed:    int64(getEnvInt("SIM_SEED", 0)),
		SimStepVol: getEnvFloat("SIM_STEP_VOL", 0.001),
		PaperAck:   getEnvDuration("PAPER_ACK_DELAY", 100*time.Millisecond),
		Payout:     getEnvFloat("PAYOUT", 0.95),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisStream:   getEnv("REDIS_STREAM", "bot:events"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// Validate checks cross-field constraints before anything is wired up.
func (c *Config) Validate() error {
	if c.Mode != "paper" && c.Mode != "live" {
		return fmt.Errorf("config: MODE must be paper or live, got %q", c.Mode)
	}
	if c.Mode == "live" && c.BrokerAPIToken == "" {
		return fmt.Errorf("config: BROKER_API_TOKEN required in live mode")
	}
	if c.ContractDuration <= 0 {
		return fmt.Errorf("config: CONTRACT_DURATION must be positive")
	}
	if c.WarmupCount < c.LongWindow+1 {
		return fmt.Errorf("config: WARMUP_COUNT %d too small for LONG_WINDOW %d",
			c.WarmupCount, c.LongWindow)
	}
	return nil
}

// ParseRuleOrder splits the RULE_ORDER value into trimmed rule names.
func (c *Config) ParseRuleOrder() []string {
	parts := strings.Split(c.RuleOrder, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
