package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contractbot/internal/model"
)

// Metrics holds all Prometheus metrics for the trading core.
type Metrics struct {
	TicksTotal   prometheus.Counter
	StaleTicks   prometheus.Counter
	WSReconnects prometheus.Counter

	SignalsTotal        *prometheus.CounterVec // labels: rule, direction
	RiskRejectionsTotal *prometheus.CounterVec // labels: reason
	TradesOpenedTotal   prometheus.Counter
	TradesSettledTotal  *prometheus.CounterVec // labels: outcome
	TradesFailedTotal   prometheus.Counter
	OrderRejectsTotal   prometheus.Counter

	Balance     prometheus.Gauge
	DailyPnL    prometheus.Gauge
	OpenTrades  prometheus.Gauge
	MaxDrawdown prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Total price points processed",
		}),
		StaleTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_stale_ticks_total",
			Help: "Price points rejected as stale or duplicate",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ws_reconnects_total",
			Help: "Broker WebSocket reconnection attempts",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Signals generated, by entry rule and direction",
		}, []string{"rule", "direction"}),
		RiskRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_risk_rejections_total",
			Help: "Signals rejected by the risk gate, by reason",
		}, []string{"reason"}),
		TradesOpenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_trades_opened_total",
			Help: "Trades acknowledged open by the broker",
		}),
		TradesSettledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trades_settled_total",
			Help: "Settled trades, by outcome",
		}, []string{"outcome"}),
		TradesFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_trades_failed_total",
			Help: "Trades failed by submit errors, ack timeouts or shutdown",
		}),
		OrderRejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_order_rejects_total",
			Help: "Orders rejected by the broker",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_balance",
			Help: "Current account balance",
		}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_daily_pnl",
			Help: "Realized P/L for the current broker day",
		}),
		OpenTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_trades",
			Help: "Trades currently open",
		}),
		MaxDrawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_max_drawdown",
			Help: "Worst peak-to-trough equity fraction since start",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.StaleTicks,
		m.WSReconnects,
		m.SignalsTotal,
		m.RiskRejectionsTotal,
		m.TradesOpenedTotal,
		m.TradesSettledTotal,
		m.TradesFailedTotal,
		m.OrderRejectsTotal,
		m.Balance,
		m.DailyPnL,
		m.OpenTrades,
		m.MaxDrawdown,
	)

	return m
}

// Publish lets Metrics sit in the event fan-out next to the Redis publisher.
func (m *Metrics) Publish(_ context.Context, ev model.Event) {
	switch ev.Type {
	case model.EventSignalGenerated:
		m.SignalsTotal.WithLabelValues(ev.Rule, string(ev.Direction)).Inc()
	case model.EventTradeRejected:
		if ev.TradeID != "" {
			m.OrderRejectsTotal.Inc()
		} else {
			m.RiskRejectionsTotal.WithLabelValues(ev.Reason).Inc()
		}
	case model.EventTradeOpened:
		m.TradesOpenedTotal.Inc()
	case model.EventTradeClosed:
		m.TradesSettledTotal.WithLabelValues(string(ev.Outcome)).Inc()
		m.Balance.Set(ev.Balance)
	case model.EventTradeFailed:
		m.TradesFailedTotal.Inc()
	}
}

// UpdateAccount refreshes the account-level gauges.
func (m *Metrics) UpdateAccount(acct model.AccountState, maxDrawdown float64) {
	m.Balance.Set(acct.Balance)
	m.DailyPnL.Set(acct.DailyPnL)
	m.OpenTrades.Set(float64(acct.OpenTradeCount))
	m.MaxDrawdown.Set(maxDrawdown)
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt      time.Time
	WSConnected    bool
	LastTickTime   time.Time
	RedisConnected bool
	SQLiteOK       bool
}

// NewHealthStatus initializes health tracking.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// SetWSConnected flips the feed connectivity flag.
func (h *HealthStatus) SetWSConnected(up bool) {
	h.mu.Lock()
	h.WSConnected = up
	h.mu.Unlock()
}

// Tick records the arrival time of the latest price point.
func (h *HealthStatus) Tick(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// CheckSQLite probes the journal database.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	err := db.PingContext(ctx)
	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.mu.Unlock()
}

// SetRedisConnected flips the event-stream connectivity flag.
func (h *HealthStatus) SetRedisConnected(up bool) {
	h.mu.Lock()
	h.RedisConnected = up
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if !h.WSConnected {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	body := struct {
		Status         string `json:"status"`
		Uptime         string `json:"uptime"`
		WSConnected    bool   `json:"ws_connected"`
		LastTickTime   string `json:"last_tick_time"`
		TickAge        string `json:"tick_age"`
		RedisConnected bool   `json:"redis_connected"`
		SQLiteOK       bool   `json:"sqlite_ok"`
	}{
		Status:         status,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:    h.WSConnected,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		RedisConnected: h.RedisConnected,
		SQLiteOK:       h.SQLiteOK,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
