// Package engine drives the candle pipeline for one symbol.
//
// The Engine backfills history, seeds the strategy snapshot, then consumes
// live candles. It owns the position state machine: BUY or SELL while waiting
// for a signal, PENDING while an order is in flight. PENDING is the sole
// admission gate; candles that arrive while an order is pending are dropped.
// A fill report flips the position to the opposite side of the fill.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jerbotron/binance-bot/internal/model"
	"github.com/jerbotron/binance-bot/internal/strategy"
)

const klineInterval = "1m"

// Config wires an Engine's dependencies and observer hooks.
type Config struct {
	Trade   model.TradeConfig
	History model.HistoricalSource
	Stream  model.MarketStream

	// Interval is the candle bucket size. Zero takes one minute.
	Interval time.Duration

	// Observer hooks; nil hooks are skipped. Metrics, the event log, and
	// stream publishing hang off these.
	OnCandle   func(model.Candle)
	OnDropped  func(model.Candle)
	OnDecision func(model.TradeDecision)
	OnMomentum strategy.MomentumHandler
	OnBackfill func(took time.Duration, candles int)
}

// Engine runs the strategy over a live candle feed.
type Engine struct {
	cfg  Config
	snap *strategy.Snapshot

	mu         sync.Mutex
	pos        model.Position
	lastBucket int64

	decisions chan model.TradeDecision

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates an Engine. Start must be called before candles flow.
func New(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Engine{
		cfg:       cfg,
		pos:       cfg.Trade.InitialPos,
		decisions: make(chan model.TradeDecision, 1),
		stopped:   make(chan struct{}),
	}
}

// Decisions returns the channel of emitted trade decisions. It is buffered
// for exactly one in-flight decision; the PENDING gate guarantees no second
// decision can fire before the first resolves.
func (e *Engine) Decisions() <-chan model.TradeDecision {
	return e.decisions
}

// Position returns the current position state.
func (e *Engine) Position() model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// Snapshot exposes the strategy state for health reporting. Nil before Start.
func (e *Engine) Snapshot() *strategy.Snapshot {
	return e.snap
}

// Start backfills exactly one window of history ending at the current
// truncated minute, seeds the snapshot, then blocks consuming live candles
// and fill reports until ctx is cancelled, Stop is called, or the market
// stream fails.
func (e *Engine) Start(ctx context.Context, fills <-chan model.FillReport) error {
	end := time.Now().UTC().Truncate(time.Minute)
	start := end.Add(-time.Duration(e.cfg.Trade.WindowSize) * e.cfg.Interval)
	t0 := time.Now()
	history, err := e.cfg.History.Klines(ctx, e.cfg.Trade.Symbol, start, end)
	if err != nil {
		return fmt.Errorf("engine: backfill %s: %w", e.cfg.Trade.Symbol, err)
	}
	log.Printf("[engine] %s backfilled %d candles [%s, %s)",
		e.cfg.Trade.Symbol, len(history), start.Format(time.RFC3339), end.Format(time.RFC3339))
	if e.cfg.OnBackfill != nil {
		e.cfg.OnBackfill(time.Since(t0), len(history))
	}

	e.snap, err = strategy.New(e.cfg.Trade, history, e.cfg.OnMomentum)
	if err != nil {
		return fmt.Errorf("engine: seed snapshot: %w", err)
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		e.lastBucket = last.Bucket(e.cfg.Interval)
	}

	candles := make(chan model.Candle, 64)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- e.cfg.Stream.StreamCandles(ctx, e.cfg.Trade.Symbol, klineInterval, candles)
	}()

	log.Printf("[engine] %s running: pos=%s window=%d vw=%d sim=%v",
		e.cfg.Trade.Symbol, e.Position(), e.cfg.Trade.WindowSize,
		e.cfg.Trade.VelWindowSize, e.cfg.Trade.Simulation)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stopped:
			return nil
		case err := <-streamErr:
			if err != nil {
				return fmt.Errorf("engine: market stream: %w", err)
			}
			return nil
		case c := <-candles:
			e.processCandle(c)
		case f, ok := <-fills:
			if !ok {
				fills = nil
				continue
			}
			e.handleFill(f)
		}
	}
}

// Stop terminates the run loop. Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		log.Printf("[engine] %s stopped", e.cfg.Trade.Symbol)
	})
}

// processCandle feeds one candle through the gate and into the strategy.
// Only finalized candles in a new time bucket advance the statistics, and
// only while no order is in flight.
func (e *Engine) processCandle(c model.Candle) {
	if !c.Final {
		return
	}
	bucket := c.Bucket(e.cfg.Interval)
	if bucket <= e.lastBucket {
		e.dropped(c)
		return
	}

	e.mu.Lock()
	pos := e.pos
	e.mu.Unlock()
	if pos == model.PositionPending {
		log.Printf("[engine] %s dropping candle @ %.8f: order in flight", c.Symbol, c.Close)
		e.dropped(c)
		return
	}

	e.lastBucket = bucket
	e.snap.Update(pos, c, e.decide, e.cfg.OnMomentum)
	if e.cfg.OnCandle != nil {
		e.cfg.OnCandle(c)
	}
}

// dropped reports a finalized candle rejected by the admission gate.
func (e *Engine) dropped(c model.Candle) {
	if e.cfg.OnDropped != nil {
		e.cfg.OnDropped(c)
	}
}

// decide publishes a strategy decision and enters the PENDING state.
func (e *Engine) decide(d model.TradeDecision) {
	if _, err := d.Position.Side(); err != nil {
		log.Printf("[engine] %s ignoring decision: %v", e.cfg.Trade.Symbol, err)
		return
	}
	d.Simulated = e.cfg.Trade.Simulation

	e.mu.Lock()
	e.pos = model.PositionPending
	e.mu.Unlock()

	log.Printf("[engine] %s decision %s @ %.8f", d.Symbol, d.Position, d.Price)
	if e.cfg.OnDecision != nil {
		e.cfg.OnDecision(d)
	}

	select {
	case e.decisions <- d:
	default:
		// Unreachable while the PENDING gate holds.
		log.Printf("[engine] %s decision channel full, dropping %s", d.Symbol, d.Position)
	}
}

// handleFill flips the position to the opposite side of the confirmed fill.
func (e *Engine) handleFill(f model.FillReport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch f.Side {
	case model.SideBuy:
		e.pos = model.PositionSell
	case model.SideSell:
		e.pos = model.PositionBuy
	default:
		log.Printf("[engine] %s fill with unknown side %q, position unchanged", f.Symbol, f.Side)
		return
	}
	log.Printf("[engine] %s fill %s qty=%s @ %.8f, position -> %s",
		f.Symbol, f.Side, f.Qty, f.Price, e.pos)
}
