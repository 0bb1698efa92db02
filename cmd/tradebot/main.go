package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jerbotron/binance-bot/config"
	"github.com/jerbotron/binance-bot/internal/engine"
	"github.com/jerbotron/binance-bot/internal/eventlog"
	"github.com/jerbotron/binance-bot/internal/exchange"
	"github.com/jerbotron/binance-bot/internal/execution"
	"github.com/jerbotron/binance-bot/internal/logger"
	"github.com/jerbotron/binance-bot/internal/metrics"
	"github.com/jerbotron/binance-bot/internal/model"
	"github.com/jerbotron/binance-bot/internal/notification"
	"github.com/jerbotron/binance-bot/internal/orderbook"
	redisstore "github.com/jerbotron/binance-bot/internal/store/redis"
)

func positionGauge(pos model.Position) float64 {
	switch pos {
	case model.PositionBuy:
		return 0
	case model.PositionSell:
		return 1
	default:
		return 2
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tradebot] starting...")

	cfgDir := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*cfgDir)
	if err != nil {
		log.Fatalf("[tradebot] config load failed: %v", err)
	}
	logger.Init("tradebot", logger.ParseLevel(cfg.Log.Level))

	tradeCfg, err := cfg.TradeModel()
	if err != nil {
		log.Fatalf("[tradebot] bad trade config: %v", err)
	}
	log.Printf("[tradebot] trading %s (window=%d vw=%d bb=%.2f stop=%.4f sim=%v)",
		tradeCfg.Symbol, tradeCfg.WindowSize, tradeCfg.VelWindowSize,
		tradeCfg.BBFactor, tradeCfg.StopLoss, tradeCfg.Simulation)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(tradeCfg.Simulation)
	health.SetPosition(string(tradeCfg.InitialPos))
	prom.PositionState.Set(positionGauge(tradeCfg.InitialPos))
	metricsSrv := metrics.NewServer(cfg.Metrics.Addr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Exchange client ----
	client := exchange.NewClient(cfg.Binance.APIKey, cfg.Binance.APISecret)
	client.OnReconnect = func() {
		prom.WSReconnects.Inc()
		health.SetStreamConnected(false)
	}

	// ---- Fill journal (SQLite) ----
	journal, err := execution.NewJournal(cfg.Journal.Path)
	if err != nil {
		log.Fatalf("[tradebot] journal init failed: %v", err)
	}
	defer journal.Close()

	// ---- Redis publisher (optional) ----
	var pub *redisstore.Publisher
	if cfg.Redis.Enabled {
		pub, err = redisstore.New(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Printf("[tradebot] WARNING: redis init failed: %v (continuing without redis)", err)
			pub = nil
		}
	}

	// ---- Liveness checks ----
	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), journal.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, journal.DB(), 10*time.Second)
	}

	// ---- Notifications ----
	var notifier notification.Notifier = notification.LogNotifier{}
	if cfg.Alerts.TelegramToken != "" {
		notifier = notification.NewTelegram(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID)
	}

	// ---- Event log (CSV audit trail) ----
	events, err := eventlog.New(cfg.Log.EventDir, tradeCfg.Symbol)
	if err != nil {
		log.Fatalf("[tradebot] event log init failed: %v", err)
	}

	// ---- Order book ----
	book, err := orderbook.New(ctx, client, tradeCfg.Symbol)
	if err != nil {
		log.Fatalf("[tradebot] order book init failed: %v", err)
	}
	events.Start(book.BaseAsset(), book.BaseFree().String(), book.QuoteAsset(), book.QuoteFree().String())

	// decisionAt tracks the last decision time for fill latency.
	var decisionMu sync.Mutex
	var decisionAt time.Time

	// ---- Auto trader ----
	trader := execution.New(execution.Config{
		Client:     client,
		Book:       book,
		Symbol:     tradeCfg.Symbol,
		Simulation: tradeCfg.Simulation,
		Journal:    journal,
		Notifier:   notifier,
		OnOutcome: func(outcome string) {
			prom.OrdersTotal.WithLabelValues(outcome).Inc()
		},
		OnFill: func(f model.FillReport) {
			decisionMu.Lock()
			if !decisionAt.IsZero() {
				prom.FillLatency.Observe(time.Since(decisionAt).Seconds())
				decisionAt = time.Time{}
			}
			decisionMu.Unlock()

			prom.NetGainPercent.Set(book.NetGainPct())
			next := f.Side.Opposite()
			health.SetPosition(string(model.Position(next)))
			prom.PositionState.Set(positionGauge(model.Position(next)))

			events.Order(f)
			if pub != nil {
				pub.PublishFill(ctx, f)
			}
		},
	})

	// ---- Engine ----
	eng := engine.New(engine.Config{
		Trade:   tradeCfg,
		History: client,
		Stream:  client,
		OnBackfill: func(took time.Duration, candles int) {
			prom.BackfillDur.Observe(took.Seconds())
			health.SetStreamConnected(true)
			events.Info(fmt.Sprintf("backfilled %d candles in %s", candles, took))
		},
		OnCandle: func(c model.Candle) {
			prom.CandlesTotal.Inc()
			prom.CandleLag.Set(time.Since(c.OpenTime).Seconds())
			health.SetStreamConnected(true)
			health.SetLastCandleTime(c.OpenTime)
			events.Candle(c)
			if pub != nil {
				start := time.Now()
				pub.PublishCandle(ctx, c)
				prom.RedisWriteDur.Observe(time.Since(start).Seconds())
			}
		},
		OnDropped: func(model.Candle) {
			prom.CandlesDropped.Inc()
		},
		OnDecision: func(d model.TradeDecision) {
			decisionMu.Lock()
			decisionAt = time.Now()
			decisionMu.Unlock()

			prom.DecisionsTotal.WithLabelValues(string(d.Position)).Inc()
			health.SetPosition(string(model.PositionPending))
			prom.PositionState.Set(positionGauge(model.PositionPending))
			if pub != nil {
				pub.PublishDecision(ctx, d)
			}
		},
	})

	go trader.Run(ctx, eng.Decisions())

	engineErr := make(chan error, 1)
	go func() { engineErr <- eng.Start(ctx, trader.Fills()) }()

	notification.Send(notifier, notification.LevelInfo, "tradebot started",
		fmt.Sprintf("%s sim=%v pos=%s", tradeCfg.Symbol, tradeCfg.Simulation, tradeCfg.InitialPos))

	select {
	case sig := <-sigCh:
		log.Printf("[tradebot] received %v, shutting down...", sig)
	case err := <-engineErr:
		if err != nil {
			log.Printf("[tradebot] engine failed: %v", err)
			events.Error(err)
			notification.Send(notifier, notification.LevelError, "engine failed", err.Error())
		}
	}

	// ---- Shutdown ----
	eng.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	events.Stop(book.BaseAsset(), book.BaseFree().String(),
		book.QuoteAsset(), book.QuoteFree().String(), book.NetGainPct())
	if pub != nil {
		pub.Close()
	}
	notification.Send(notifier, notification.LevelInfo, "tradebot stopped",
		fmt.Sprintf("%s net gain %.4f%%", tradeCfg.Symbol, book.NetGainPct()))
	log.Println("[tradebot] shutdown complete")
}
