package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading bot.
type Metrics struct {
	CandlesTotal   prometheus.Counter
	CandlesDropped prometheus.Counter
	CandleLag      prometheus.Gauge
	WSReconnects   prometheus.Counter

	DecisionsTotal *prometheus.CounterVec // labels: side
	OrdersTotal    *prometheus.CounterVec // labels: outcome=filled|failed|skipped
	FillLatency    prometheus.Histogram   // decision-to-fill round trip

	BackfillDur    prometheus.Histogram
	RedisWriteDur  prometheus.Histogram
	PositionState  prometheus.Gauge // 0=BUY, 1=SELL, 2=PENDING
	NetGainPercent prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_candles_total",
			Help: "Total finalized candles processed",
		}),
		CandlesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_candles_dropped_total",
			Help: "Finalized candles dropped (stale bucket or order in flight)",
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_candle_lag_seconds",
			Help: "Lag between candle open time and processing time",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_ws_reconnects_total",
			Help: "Total kline stream reconnection attempts",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_decisions_total",
			Help: "Trade decisions emitted by the strategy (by side)",
		}, []string{"side"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_orders_total",
			Help: "Order outcomes (filled, failed, skipped)",
		}, []string{"outcome"}),
		FillLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_fill_latency_seconds",
			Help:    "Decision-to-fill round trip latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		BackfillDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_backfill_duration_seconds",
			Help:    "Historical candle backfill latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_redis_write_duration_seconds",
			Help:    "Redis stream publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		PositionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_position_state",
			Help: "Current position (0=BUY, 1=SELL, 2=PENDING)",
		}),
		NetGainPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_net_gain_percent",
			Help: "Session net gain of the quote balance (percent)",
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.CandlesDropped,
		m.CandleLag,
		m.WSReconnects,
		m.DecisionsTotal,
		m.OrdersTotal,
		m.FillLatency,
		m.BackfillDur,
		m.RedisWriteDur,
		m.PositionState,
		m.NetGainPercent,
	)

	return m
}

// HealthStatus represents the bot's health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastCandleTime  time.Time `json:"last_candle_time"`
	RedisConnected  bool      `json:"redis_connected"`
	JournalOK       bool      `json:"journal_ok"`
	Position        string    `json:"position"`
	Simulation      bool      `json:"simulation"`

	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(simulation bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		Simulation: simulation,
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetPosition(pos string) {
	h.mu.Lock()
	h.Position = pos
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal runs a trivial query and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckJournal(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.StreamConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		StreamConnected  bool    `json:"stream_connected"`
		LastCandleTime   string  `json:"last_candle_time"`
		CandleAge        string  `json:"candle_age"`
		Position         string  `json:"position"`
		Simulation       bool    `json:"simulation"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		JournalOK        bool    `json:"journal_ok"`
		JournalLatencyMs float64 `json:"journal_latency_ms"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected:  h.StreamConnected,
		LastCandleTime:   h.LastCandleTime.Format(time.RFC3339),
		CandleAge:        candleAge,
		Position:         h.Position,
		Simulation:       h.Simulation,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
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
