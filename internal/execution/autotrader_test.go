package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jerbotron/binance-bot/internal/model"
	"github.com/jerbotron/binance-bot/internal/orderbook"
)

type fakeExchange struct {
	balances []model.AssetBalance

	testErr   error
	submitRes model.OrderResult
	submitErr error
	queryRes  []model.OrderResult
	queryIdx  int

	submitted []model.OrderRequest
}

func (f *fakeExchange) ExchangeInfo(ctx context.Context, symbol string) (model.ExchangeInfo, error) {
	return model.ExchangeInfo{Symbols: []model.SymbolInfo{{
		Symbol:     "ETHUSDT",
		BaseAsset:  "ETH",
		QuoteAsset: "USDT",
		Filters: []model.SymbolFilter{
			{Type: model.FilterLotSize, MinQty: dec("0.001"), StepSize: dec("0.001")},
		},
	}}}, nil
}

func (f *fakeExchange) AccountInfo(ctx context.Context) (model.AccountInfo, error) {
	return model.AccountInfo{Balances: f.balances}, nil
}

func (f *fakeExchange) TestOrder(ctx context.Context, req model.OrderRequest) error {
	f.submitted = append(f.submitted, req)
	return f.testErr
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	f.submitted = append(f.submitted, req)
	return f.submitRes, f.submitErr
}

func (f *fakeExchange) QueryOrder(ctx context.Context, symbol string, orderID int64) (model.OrderResult, error) {
	if f.queryIdx >= len(f.queryRes) {
		return model.OrderResult{}, errors.New("no more query results")
	}
	res := f.queryRes[f.queryIdx]
	f.queryIdx++
	return res, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTrader(t *testing.T, ex *fakeExchange, sim bool) *AutoTrader {
	t.Helper()
	book, err := orderbook.New(context.Background(), ex, "ETHUSDT")
	if err != nil {
		t.Fatalf("orderbook.New: %v", err)
	}
	return New(Config{
		Client:       ex,
		Book:         book,
		Symbol:       "ETHUSDT",
		Simulation:   sim,
		PollInterval: 5 * time.Millisecond,
		FillTimeout:  200 * time.Millisecond,
	})
}

func runAndDecide(t *testing.T, tr *AutoTrader, d model.TradeDecision) (model.FillReport, bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decisions := make(chan model.TradeDecision, 1)
	decisions <- d
	close(decisions)

	done := make(chan struct{})
	go func() {
		tr.Run(ctx, decisions)
		close(done)
	}()

	var fill model.FillReport
	var got bool
	select {
	case fill = <-tr.Fills():
		got = true
	case <-done:
		// trader exited without producing a fill; drain a buffered one if any
		select {
		case fill = <-tr.Fills():
			got = true
		default:
		}
	case <-time.After(time.Second):
		t.Fatal("trader did not finish in time")
	}
	return fill, got
}

func TestSimulatedFill_FlowsThrough(t *testing.T) {
	ex := &fakeExchange{balances: []model.AssetBalance{
		{Asset: "ETH", Free: dec("0")},
		{Asset: "USDT", Free: dec("1000")},
	}}
	tr := newTrader(t, ex, true)

	fill, got := runAndDecide(t, tr, model.TradeDecision{
		Symbol: "ETHUSDT", Position: model.PositionBuy, Price: 250, Simulated: true,
	})
	if !got {
		t.Fatal("expected a fill report")
	}
	if fill.Side != model.SideBuy || !fill.Simulated {
		t.Errorf("fill: got side=%s sim=%v, want BUY simulated", fill.Side, fill.Simulated)
	}
	if !fill.Qty.Equal(dec("4")) {
		t.Errorf("fill qty: got %s, want 4", fill.Qty)
	}
	if fill.Price != 250 {
		t.Errorf("fill price: got %v, want 250", fill.Price)
	}

	// The synthetic fill must hit the book.
	if !tr.cfg.Book.BaseFree().Equal(dec("4")) {
		t.Errorf("base after sim BUY: got %s, want 4", tr.cfg.Book.BaseFree())
	}
	if !tr.cfg.Book.QuoteFree().Equal(dec("0")) {
		t.Errorf("quote after sim BUY: got %s, want 0", tr.cfg.Book.QuoteFree())
	}
}

func TestSimulatedFill_TestOrderRejection(t *testing.T) {
	ex := &fakeExchange{
		balances: []model.AssetBalance{
			{Asset: "ETH", Free: dec("0")},
			{Asset: "USDT", Free: dec("1000")},
		},
		testErr: errors.New("MIN_NOTIONAL"),
	}
	tr := newTrader(t, ex, true)

	if _, got := runAndDecide(t, tr, model.TradeDecision{
		Symbol: "ETHUSDT", Position: model.PositionBuy, Price: 250,
	}); got {
		t.Fatal("rejected test order must not produce a fill report")
	}
}

func TestLiveFill_ImmediateFill(t *testing.T) {
	ex := &fakeExchange{
		balances: []model.AssetBalance{
			{Asset: "ETH", Free: dec("0")},
			{Asset: "USDT", Free: dec("1000")},
		},
		submitRes: model.OrderResult{
			Symbol:       "ETHUSDT",
			OrderID:      77,
			Side:         model.SideBuy,
			Status:       model.OrderStatusFilled,
			ExecutedQty:  dec("4"),
			QuoteQty:     dec("1001"), // avg price 250.25
			TransactTime: time.Now().UTC(),
		},
	}
	tr := newTrader(t, ex, false)

	fill, got := runAndDecide(t, tr, model.TradeDecision{
		Symbol: "ETHUSDT", Position: model.PositionBuy, Price: 250,
	})
	if !got {
		t.Fatal("expected a fill report")
	}
	if fill.OrderID != 77 || fill.Simulated {
		t.Errorf("fill: got order=%d sim=%v, want order 77 live", fill.OrderID, fill.Simulated)
	}
	if fill.Price < 250.24 || fill.Price > 250.26 {
		t.Errorf("avg fill price: got %v, want 250.25", fill.Price)
	}
}

func TestLiveFill_PollsUntilTerminal(t *testing.T) {
	ex := &fakeExchange{
		balances: []model.AssetBalance{
			{Asset: "ETH", Free: dec("0")},
			{Asset: "USDT", Free: dec("1000")},
		},
		submitRes: model.OrderResult{
			Symbol:  "ETHUSDT",
			OrderID: 78,
			Side:    model.SideBuy,
			Status:  model.OrderStatusNew,
		},
		queryRes: []model.OrderResult{
			{Symbol: "ETHUSDT", OrderID: 78, Side: model.SideBuy, Status: model.OrderStatusPartiallyFilled, ExecutedQty: dec("2")},
			{Symbol: "ETHUSDT", OrderID: 78, Side: model.SideBuy, Status: model.OrderStatusFilled,
				ExecutedQty: dec("4"), QuoteQty: dec("1000"), TransactTime: time.Now().UTC()},
		},
	}
	tr := newTrader(t, ex, false)

	fill, got := runAndDecide(t, tr, model.TradeDecision{
		Symbol: "ETHUSDT", Position: model.PositionBuy, Price: 250,
	})
	if !got {
		t.Fatal("expected a fill report after polling")
	}
	if !fill.Qty.Equal(dec("4")) {
		t.Errorf("fill qty: got %s, want 4", fill.Qty)
	}
}

func TestLiveFill_RejectedProducesNoReport(t *testing.T) {
	ex := &fakeExchange{
		balances: []model.AssetBalance{
			{Asset: "ETH", Free: dec("0")},
			{Asset: "USDT", Free: dec("1000")},
		},
		submitRes: model.OrderResult{
			Symbol:  "ETHUSDT",
			OrderID: 79,
			Side:    model.SideBuy,
			Status:  model.OrderStatusRejected,
		},
	}
	tr := newTrader(t, ex, false)

	if _, got := runAndDecide(t, tr, model.TradeDecision{
		Symbol: "ETHUSDT", Position: model.PositionBuy, Price: 250,
	}); got {
		t.Fatal("rejected order must not produce a fill report")
	}
}

func TestExecute_NoBalanceSkips(t *testing.T) {
	ex := &fakeExchange{balances: []model.AssetBalance{
		{Asset: "ETH", Free: dec("0")},
		{Asset: "USDT", Free: dec("0")},
	}}
	tr := newTrader(t, ex, true)

	if _, got := runAndDecide(t, tr, model.TradeDecision{
		Symbol: "ETHUSDT", Position: model.PositionBuy, Price: 250,
	}); got {
		t.Fatal("zero tradable quantity must not produce a fill report")
	}
	if len(ex.submitted) != 0 {
		t.Errorf("no order should reach the exchange, got %d", len(ex.submitted))
	}
}

func TestExecute_PendingDecisionDropped(t *testing.T) {
	ex := &fakeExchange{balances: []model.AssetBalance{
		{Asset: "ETH", Free: dec("5")},
		{Asset: "USDT", Free: dec("1000")},
	}}
	tr := newTrader(t, ex, true)

	if _, got := runAndDecide(t, tr, model.TradeDecision{
		Symbol: "ETHUSDT", Position: model.PositionPending, Price: 250,
	}); got {
		t.Fatal("PENDING decision must not produce a fill report")
	}
}
