// Package execution turns trade decisions into exchange orders and reports
// confirmed fills back to the driver.
//
// The AutoTrader consumes decisions from the strategy engine, sizes each
// order against the order book, and either simulates the fill (test-order
// endpoint plus a synthetic fill) or submits a live market order and polls
// until the order reaches a terminal state. Only fully filled orders produce
// a fill report; every other outcome is logged and leaves the driver holding
// its pending position.
package execution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jerbotron/binance-bot/internal/model"
	"github.com/jerbotron/binance-bot/internal/notification"
	"github.com/jerbotron/binance-bot/internal/orderbook"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultFillTimeout  = time.Minute
)

// Config wires an AutoTrader's dependencies. Client and Book are required;
// everything else is optional.
type Config struct {
	Client     model.OrderClient
	Book       *orderbook.Book
	Symbol     string
	Simulation bool

	Journal  *Journal
	Notifier notification.Notifier

	// OnFill observes every confirmed fill. Metrics and stream publishing
	// hang off this hook.
	OnFill func(model.FillReport)

	// OnOutcome observes every order outcome: "filled", "failed", or
	// "skipped".
	OnOutcome func(outcome string)

	// PollInterval/FillTimeout bound the live-order polling loop.
	// Zero values take the defaults.
	PollInterval time.Duration
	FillTimeout  time.Duration
}

// AutoTrader executes trade decisions one at a time.
type AutoTrader struct {
	cfg      Config
	fills    chan model.FillReport
	simOrder int64
}

// New creates an AutoTrader. The fill channel is buffered so the trader can
// finish an order even if the driver is mid-candle.
func New(cfg Config) *AutoTrader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = defaultFillTimeout
	}
	return &AutoTrader{
		cfg:   cfg,
		fills: make(chan model.FillReport, 1),
	}
}

// Fills returns the channel of confirmed fill reports.
func (t *AutoTrader) Fills() <-chan model.FillReport {
	return t.fills
}

// Run consumes decisions until ctx is cancelled or the channel closes.
// Decisions arrive strictly one at a time; the driver blocks new ones while
// an order is in flight.
func (t *AutoTrader) Run(ctx context.Context, decisions <-chan model.TradeDecision) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-decisions:
			if !ok {
				return
			}
			t.execute(ctx, d)
		}
	}
}

func (t *AutoTrader) outcome(s string) {
	if t.cfg.OnOutcome != nil {
		t.cfg.OnOutcome(s)
	}
}

func (t *AutoTrader) execute(ctx context.Context, d model.TradeDecision) {
	side, err := d.Position.Side()
	if err != nil {
		log.Printf("[trader] %s dropping decision: %v", t.cfg.Symbol, err)
		return
	}

	qty := t.cfg.Book.TradeQty(d.Position, d.Price)
	if qty.IsZero() {
		log.Printf("[trader] %s %s @ %.8f skipped: no tradable quantity", t.cfg.Symbol, side, d.Price)
		notification.Send(t.cfg.Notifier, notification.LevelError, "order skipped",
			fmt.Sprintf("%s %s at %.8f: no tradable quantity", t.cfg.Symbol, side, d.Price))
		t.outcome("skipped")
		return
	}
	if !t.cfg.Book.MeetsNotional(qty, d.Price) {
		log.Printf("[trader] %s %s qty=%s @ %.8f skipped: below minimum notional", t.cfg.Symbol, side, qty, d.Price)
		t.outcome("skipped")
		return
	}

	req := model.OrderRequest{
		Symbol: t.cfg.Symbol,
		Side:   side,
		Type:   model.OrderTypeMarket,
		Qty:    qty,
	}
	if t.cfg.Simulation {
		t.simulate(ctx, d, req)
		return
	}
	t.submit(ctx, d, req)
}

// simulate validates the order against the exchange's test endpoint, then
// synthesizes a fill at the decision price and applies it to the book.
func (t *AutoTrader) simulate(ctx context.Context, d model.TradeDecision, req model.OrderRequest) {
	if err := t.cfg.Client.TestOrder(ctx, req); err != nil {
		log.Printf("[trader] %s test order rejected: %v", t.cfg.Symbol, err)
		notification.Send(t.cfg.Notifier, notification.LevelError, "test order rejected",
			fmt.Sprintf("%s %s qty=%s: %v", t.cfg.Symbol, req.Side, req.Qty, err))
		t.outcome("failed")
		return
	}

	t.simOrder++
	t.cfg.Book.ApplyFill(req.Side, req.Qty, d.Price)
	t.finish(ctx, model.FillReport{
		Symbol:       t.cfg.Symbol,
		Side:         req.Side,
		Price:        d.Price,
		Qty:          req.Qty,
		OrderID:      t.simOrder,
		TransactTime: time.Now().UTC(),
		Simulated:    true,
	})
}

// submit places a live market order and waits for a terminal status.
func (t *AutoTrader) submit(ctx context.Context, d model.TradeDecision, req model.OrderRequest) {
	res, err := t.cfg.Client.SubmitOrder(ctx, req)
	if err != nil {
		log.Printf("[trader] %s submit failed: %v", t.cfg.Symbol, err)
		notification.Send(t.cfg.Notifier, notification.LevelError, "order submit failed",
			fmt.Sprintf("%s %s qty=%s: %v", t.cfg.Symbol, req.Side, req.Qty, err))
		t.outcome("failed")
		return
	}

	if !res.Status.Terminal() {
		res, err = t.awaitFill(ctx, res)
		if err != nil {
			log.Printf("[trader] %s order %d not confirmed: %v", t.cfg.Symbol, res.OrderID, err)
			notification.Send(t.cfg.Notifier, notification.LevelError, "order unconfirmed",
				fmt.Sprintf("%s order %d: %v", t.cfg.Symbol, res.OrderID, err))
			t.outcome("failed")
			return
		}
	}

	if res.Status != model.OrderStatusFilled {
		log.Printf("[trader] %s order %d ended %s, no fill", t.cfg.Symbol, res.OrderID, res.Status)
		notification.Send(t.cfg.Notifier, notification.LevelError, "order not filled",
			fmt.Sprintf("%s order %d ended %s", t.cfg.Symbol, res.OrderID, res.Status))
		t.outcome("failed")
		return
	}

	price := res.Price
	if price == 0 && !res.ExecutedQty.IsZero() {
		avg, _ := res.QuoteQty.Div(res.ExecutedQty).Float64()
		price = avg
	}
	if price == 0 {
		price = d.Price
	}

	t.cfg.Book.ApplyFill(res.Side, res.ExecutedQty, price)
	if err := t.cfg.Book.UpdateBalances(ctx); err != nil {
		log.Printf("[trader] %s balance refresh failed: %v", t.cfg.Symbol, err)
	}
	t.finish(ctx, model.FillReport{
		Symbol:       t.cfg.Symbol,
		Side:         res.Side,
		Price:        price,
		Qty:          res.ExecutedQty,
		OrderID:      res.OrderID,
		TransactTime: res.TransactTime,
	})
}

// awaitFill polls the order until it reaches a terminal status or the
// timeout expires.
func (t *AutoTrader) awaitFill(ctx context.Context, res model.OrderResult) (model.OrderResult, error) {
	deadline := time.NewTimer(t.cfg.FillTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(t.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-deadline.C:
			return res, fmt.Errorf("timed out after %s in status %s", t.cfg.FillTimeout, res.Status)
		case <-tick.C:
			cur, err := t.cfg.Client.QueryOrder(ctx, res.Symbol, res.OrderID)
			if err != nil {
				log.Printf("[trader] %s order %d poll failed: %v", t.cfg.Symbol, res.OrderID, err)
				continue
			}
			if cur.Status.Terminal() {
				return cur, nil
			}
			res = cur
		}
	}
}

// finish journals, notifies, and hands the fill to the driver.
func (t *AutoTrader) finish(ctx context.Context, f model.FillReport) {
	log.Printf("[trader] %s FILLED %s qty=%s @ %.8f order=%d sim=%v",
		f.Symbol, f.Side, f.Qty, f.Price, f.OrderID, f.Simulated)

	if t.cfg.Journal != nil {
		if err := t.cfg.Journal.RecordFill(f); err != nil {
			log.Printf("[trader] journal write failed: %v", err)
		}
	}
	notification.Send(t.cfg.Notifier, notification.LevelTrade, "order filled",
		fmt.Sprintf("%s %s qty=%s at %.8f", f.Symbol, f.Side, f.Qty, f.Price))
	t.outcome("filled")
	if t.cfg.OnFill != nil {
		t.cfg.OnFill(f)
	}

	select {
	case t.fills <- f:
	case <-ctx.Done():
	}
}
