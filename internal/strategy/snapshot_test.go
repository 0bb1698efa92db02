package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/jerbotron/binance-bot/internal/model"
)

func testConfig() model.TradeConfig {
	return model.TradeConfig{
		Symbol:        "BTCUSDT",
		BBFactor:      1.0,
		Smoothing:     2.0, // k = 2/(1+4) = 0.4
		WindowSize:    4,
		VelWindowSize: 2,
		StopLoss:      0.1,
		InitialPos:    model.PositionBuy,
	}
}

func seedCandles(closes ...float64) []model.Candle {
	base := time.Date(2021, 3, 14, 9, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Symbol:   "BTCUSDT",
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Close:    c,
			Final:    true,
		}
	}
	return out
}

func liveCandle(after []model.Candle, offset int, close float64) model.Candle {
	last := after[len(after)-1].OpenTime
	return model.Candle{
		Symbol:   "BTCUSDT",
		OpenTime: last.Add(time.Duration(offset) * time.Minute),
		Close:    close,
		Final:    true,
	}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func TestNew_SeedsEMAToLastClose(t *testing.T) {
	hist := seedCandles(100, 102, 98, 103.5)
	s, err := New(testConfig(), hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertClose(t, "seed EMA", s.EMA(), 103.5, 0)
}

func TestNew_RejectsShortHistory(t *testing.T) {
	hist := seedCandles(100, 102)
	if _, err := New(testConfig(), hist, nil); err == nil {
		t.Fatal("expected error for history shorter than window size")
	}
}

func TestUpdate_BandContainment(t *testing.T) {
	// For every processed sample: floor <= EMA <= ceiling and
	// ceiling - floor == 2 * bbFactor * std.
	cfg := testConfig()
	cfg.BBFactor = 2.0
	hist := seedCandles(100, 100, 100, 100)
	s, err := New(cfg, hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	closes := []float64{101, 99, 103, 96, 104, 98, 100.5, 97.25}
	for i, c := range closes {
		s.Update(model.PositionPending, liveCandle(hist, i+1, c), nil, nil)
		if s.Floor() > s.EMA() || s.EMA() > s.Ceiling() {
			t.Errorf("sample %d: band violated: floor=%.4f ema=%.4f ceiling=%.4f",
				i, s.Floor(), s.EMA(), s.Ceiling())
		}
		halfWidth := (s.Ceiling() - s.Floor()) / 2
		wantHalf := s.Ceiling() - s.EMA()
		assertClose(t, "band symmetry", halfWidth, wantHalf, 1e-9)
	}
}

func TestUpdate_BuySignal(t *testing.T) {
	// Hand-traced scenario (window=4, vw=2, bb=1, k=0.4):
	//   seed: 100 100 100 100      (ema=100, vel=0, acc=0)
	//   90   -> no recompute, acc=0, no signal
	//   85   -> vel=-5 acc=-5, below floor but acc<0, no signal
	//   84   -> no recompute, no signal
	//   83.5 -> vel=-0.5 acc=+4.5; ema=86.536, std=2.583, floor=83.953
	//           close 83.5 <= floor with vel<0, acc>0 => BUY
	hist := seedCandles(100, 100, 100, 100)
	s, err := New(testConfig(), hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got []model.TradeDecision
	record := func(d model.TradeDecision) { got = append(got, d) }

	for i, c := range []float64{90, 85, 84, 83.5} {
		s.Update(model.PositionBuy, liveCandle(hist, i+1, c), record, nil)
	}

	if len(got) != 1 {
		t.Fatalf("decisions: got %d, want exactly 1", len(got))
	}
	if got[0].Position != model.PositionBuy {
		t.Errorf("decision side: got %s, want BUY", got[0].Position)
	}
	assertClose(t, "buy price", got[0].Price, 83.5, 0)

	prevBuy, ok := s.LastBuyPrice()
	if !ok {
		t.Fatal("LastBuyPrice not recorded after BUY")
	}
	assertClose(t, "recorded buy price", prevBuy, 83.5, 0)
}

func TestUpdate_StopLossIgnoresMomentum(t *testing.T) {
	// A SELL-position snapshot with lastBuyPrice=100 must fire on a close
	// below 100*(1-stopLoss) even when velocity/acceleration say otherwise.
	cfg := testConfig()
	hist := seedCandles(100, 100, 100, 100)
	s, err := New(cfg, hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.prevBuy = 100
	s.hasPrevBuy = true

	var got []model.TradeDecision
	record := func(d model.TradeDecision) { got = append(got, d) }

	// close = 100*(1-0.1) - 0.5; odd push count so momentum is not
	// recomputed and stays at vel=0, acc=0 (ceiling rule cannot fire).
	s.Update(model.PositionSell, liveCandle(hist, 1, 89.5), record, nil)

	if len(got) != 1 {
		t.Fatalf("decisions: got %d, want exactly 1 (stop-loss)", len(got))
	}
	if got[0].Position != model.PositionSell {
		t.Errorf("decision side: got %s, want SELL", got[0].Position)
	}
	assertClose(t, "stop-loss price", got[0].Price, 89.5, 0)
}

func TestUpdate_NoDecisionAboveStopLoss(t *testing.T) {
	cfg := testConfig()
	hist := seedCandles(100, 100, 100, 100)
	s, err := New(cfg, hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.prevBuy = 100
	s.hasPrevBuy = true

	fired := false
	s.Update(model.PositionSell, liveCandle(hist, 1, 91), func(model.TradeDecision) { fired = true }, nil)
	if fired {
		t.Error("SELL fired above the stop-loss threshold without ceiling conditions")
	}
}

func TestUpdate_PendingNeverEmits(t *testing.T) {
	hist := seedCandles(100, 100, 100, 100)
	s, err := New(testConfig(), hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.prevBuy = 100
	s.hasPrevBuy = true

	// Extreme inputs that would trigger either rule under BUY or SELL.
	for i, c := range []float64{50, 49.9, 200, 199.5} {
		s.Update(model.PositionPending, liveCandle(hist, i+1, c), func(d model.TradeDecision) {
			t.Errorf("decision %s emitted while PENDING", d.Position)
		}, nil)
	}
}

func TestUpdate_MomentumCadence(t *testing.T) {
	// With vw=2 and 4 seed candles, live pushes land on counts 5..10;
	// momentum must recompute exactly on even counts (6, 8, 10).
	hist := seedCandles(100, 100, 100, 100)
	s, err := New(testConfig(), hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int
	for i := 0; i < 6; i++ {
		s.Update(model.PositionPending, liveCandle(hist, i+1, 100+float64(i)), nil,
			func(time.Time, float64, float64) { calls++ })
	}
	if calls != 3 {
		t.Errorf("momentum recomputations: got %d, want 3", calls)
	}
}

func TestUpdate_VelocityValue(t *testing.T) {
	// vw=2: velocity = close - LastN(2) = close minus the close one bar ago.
	hist := seedCandles(100, 100, 100, 100)
	s, err := New(testConfig(), hist, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Update(model.PositionPending, liveCandle(hist, 1, 104), nil, nil) // count 5, no recompute
	s.Update(model.PositionPending, liveCandle(hist, 2, 101), nil, nil) // count 6: vel = 101-104
	assertClose(t, "velocity", s.Velocity(), -3, 1e-9)
	assertClose(t, "acceleration", s.Acceleration(), -3, 1e-9)
}
