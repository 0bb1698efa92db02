// Package strategy implements the mean-reversion trade signal engine.
//
// A Snapshot consumes one finalized close price at a time, maintains an
// exponential moving average with a Bollinger volatility band plus a
// velocity/acceleration momentum filter, and emits at most one BUY/SELL
// decision per sample. The caller owns the position state and must not feed
// new samples while a previous decision is still being executed.
package strategy

import (
	"fmt"
	"time"

	"github.com/jerbotron/binance-bot/internal/model"
	"github.com/jerbotron/binance-bot/internal/window"
)

// DecisionHandler receives a trade decision the moment it fires.
type DecisionHandler func(model.TradeDecision)

// MomentumHandler observes velocity/acceleration recomputations. It has no
// effect on decision logic; observers (event log, metrics) hang off it.
type MomentumHandler func(ts time.Time, vel, acc float64)

// Snapshot holds the rolling statistical state for one symbol.
type Snapshot struct {
	cfg model.TradeConfig
	win *window.Window

	ema     float64
	floor   float64
	ceiling float64

	vel float64
	acc float64

	prevBuy    float64
	hasPrevBuy bool

	ts time.Time
}

// New seeds a snapshot from a batch of historical candles. The EMA is seeded
// to the last close of the batch; momentum references are warmed by replaying
// every close through the window. The batch must cover at least the
// configured window size.
func New(cfg model.TradeConfig, history []model.Candle, onMomentum MomentumHandler) (*Snapshot, error) {
	if len(history) < cfg.WindowSize {
		return nil, fmt.Errorf("strategy: need %d seed candles, got %d", cfg.WindowSize, len(history))
	}

	s := &Snapshot{
		cfg: cfg,
		win: window.New(cfg.WindowSize),
	}
	for i := range history {
		price := history[i].Close
		s.ema = price
		s.win.Push(price)
		s.updateMomentum(history[i].OpenTime, price, onMomentum)
	}
	s.ts = history[len(history)-1].OpenTime

	std := s.win.Std()
	s.floor = s.ema - cfg.BBFactor*std
	s.ceiling = s.ema + cfg.BBFactor*std
	return s, nil
}

// Update consumes one finalized candle: it refreshes EMA, band, and momentum
// state, then evaluates the decision rule against the caller's position.
// At most one decision is delivered to onDecision per call. PENDING (or any
// unrecognized) positions never produce a decision.
func (s *Snapshot) Update(pos model.Position, c model.Candle, onDecision DecisionHandler, onMomentum MomentumHandler) {
	price := c.Close
	s.win.Push(price)

	k := s.cfg.Smoothing / (1.0 + float64(s.cfg.WindowSize))
	s.ema = price*k + s.ema*(1-k)

	std := s.win.Std()
	s.floor = s.ema - s.cfg.BBFactor*std
	s.ceiling = s.ema + s.cfg.BBFactor*std

	s.updateMomentum(c.OpenTime, price, onMomentum)
	s.ts = c.OpenTime

	switch pos {
	case model.PositionBuy:
		if price <= s.floor && s.vel < 0 && s.acc > 0 {
			s.prevBuy = price
			s.hasPrevBuy = true
			s.emit(onDecision, model.PositionBuy, price)
		}

	case model.PositionSell:
		var gain, lossFrac float64
		if s.hasPrevBuy {
			gain = price - s.prevBuy
			lossFrac = 1 - price/s.prevBuy
		}
		ceilingExit := price >= s.ceiling && s.vel > 0 && s.acc < 0 && gain >= 0
		stopLossExit := s.hasPrevBuy && lossFrac >= s.cfg.StopLoss
		if ceilingExit || stopLossExit {
			s.emit(onDecision, model.PositionSell, price)
		}
	}
}

// updateMomentum recomputes velocity/acceleration once every velocity-window
// worth of samples. Between recomputations the previous values persist.
func (s *Snapshot) updateMomentum(ts time.Time, price float64, onMomentum MomentumHandler) {
	if !s.win.IsAtMultipleOf(s.cfg.VelWindowSize) {
		return
	}
	prevVel := s.vel
	s.vel = price - s.win.LastN(s.cfg.VelWindowSize)
	s.acc = s.vel - prevVel
	if onMomentum != nil {
		onMomentum(ts, s.vel, s.acc)
	}
}

func (s *Snapshot) emit(onDecision DecisionHandler, pos model.Position, price float64) {
	if onDecision == nil {
		return
	}
	onDecision(model.TradeDecision{
		Timestamp: s.ts,
		Symbol:    s.cfg.Symbol,
		Position:  pos,
		Price:     price,
	})
}

// EMA returns the current exponential moving average.
func (s *Snapshot) EMA() float64 { return s.ema }

// Floor returns the lower volatility band bound.
func (s *Snapshot) Floor() float64 { return s.floor }

// Ceiling returns the upper volatility band bound.
func (s *Snapshot) Ceiling() float64 { return s.ceiling }

// Velocity returns the last computed price velocity.
func (s *Snapshot) Velocity() float64 { return s.vel }

// Acceleration returns the last computed price acceleration.
func (s *Snapshot) Acceleration() float64 { return s.acc }

// Timestamp returns the open time of the last processed candle.
func (s *Snapshot) Timestamp() time.Time { return s.ts }

// LastBuyPrice returns the most recent BUY price and whether one exists.
func (s *Snapshot) LastBuyPrice() (float64, bool) { return s.prevBuy, s.hasPrevBuy }
