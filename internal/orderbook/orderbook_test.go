package orderbook

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jerbotron/binance-bot/internal/model"
)

type fakeAccount struct {
	info     model.ExchangeInfo
	balances []model.AssetBalance
	infoErr  error
	acctErr  error
}

func (f *fakeAccount) ExchangeInfo(ctx context.Context, symbol string) (model.ExchangeInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeAccount) AccountInfo(ctx context.Context) (model.AccountInfo, error) {
	return model.AccountInfo{Balances: f.balances}, f.acctErr
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFake(baseFree, quoteFree string) *fakeAccount {
	return &fakeAccount{
		info: model.ExchangeInfo{Symbols: []model.SymbolInfo{{
			Symbol:     "ETHUSDT",
			BaseAsset:  "ETH",
			QuoteAsset: "USDT",
			Filters: []model.SymbolFilter{
				{Type: model.FilterPrice, TickSize: dec("0.01")},
				{Type: model.FilterLotSize, MinQty: dec("0.001"), StepSize: dec("0.001")},
				{Type: model.FilterMinNotional, MinNotional: dec("10")},
			},
		}}},
		balances: []model.AssetBalance{
			{Asset: "ETH", Free: dec(baseFree)},
			{Asset: "USDT", Free: dec(quoteFree)},
			{Asset: "BNB", Free: dec("0.75")},
		},
	}
}

func TestNew_LoadsRulesAndBalances(t *testing.T) {
	b, err := New(context.Background(), newFake("2.5", "1000"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.BaseAsset() != "ETH" || b.QuoteAsset() != "USDT" {
		t.Errorf("assets: got %s/%s, want ETH/USDT", b.BaseAsset(), b.QuoteAsset())
	}
	if !b.BaseFree().Equal(dec("2.5")) {
		t.Errorf("base free: got %s, want 2.5", b.BaseFree())
	}
	if !b.QuoteFree().Equal(dec("1000")) {
		t.Errorf("quote free: got %s, want 1000", b.QuoteFree())
	}
	if !b.FeeFree().Equal(dec("0.75")) {
		t.Errorf("fee free: got %s, want 0.75", b.FeeFree())
	}
}

func TestNew_UnknownSymbol(t *testing.T) {
	f := newFake("1", "1")
	if _, err := New(context.Background(), f, "DOGEUSDT"); err == nil {
		t.Fatal("expected error for symbol missing from exchange info")
	}
}

func TestNew_PropagatesClientErrors(t *testing.T) {
	f := newFake("1", "1")
	f.infoErr = errors.New("boom")
	if _, err := New(context.Background(), f, "ETHUSDT"); err == nil {
		t.Fatal("expected exchange info error to propagate")
	}

	f = newFake("1", "1")
	f.acctErr = errors.New("boom")
	if _, err := New(context.Background(), f, "ETHUSDT"); err == nil {
		t.Fatal("expected account info error to propagate")
	}
}

func TestTradeQty_BuySpendsQuoteBalance(t *testing.T) {
	// 1000 quote at price 250 buys exactly 4 base units.
	b, err := New(context.Background(), newFake("0", "1000"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	qty := b.TradeQty(model.PositionBuy, 250)
	if !qty.Equal(dec("4")) {
		t.Errorf("BUY qty: got %s, want 4", qty)
	}
}

func TestTradeQty_BuyRoundsDownToStep(t *testing.T) {
	// 1000 / 300 = 3.3333...; step 0.001 keeps 3.333.
	b, err := New(context.Background(), newFake("0", "1000"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	qty := b.TradeQty(model.PositionBuy, 300)
	if !qty.Equal(dec("3.333")) {
		t.Errorf("BUY qty: got %s, want 3.333", qty)
	}
}

func TestTradeQty_SellLiquidatesBaseBalance(t *testing.T) {
	b, err := New(context.Background(), newFake("2.7154", "0"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	qty := b.TradeQty(model.PositionSell, 250)
	if !qty.Equal(dec("2.715")) {
		t.Errorf("SELL qty: got %s, want 2.715 (step-rounded)", qty)
	}
}

func TestTradeQty_BelowMinQtyIsZero(t *testing.T) {
	b, err := New(context.Background(), newFake("0.0004", "0"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if qty := b.TradeQty(model.PositionSell, 250); !qty.IsZero() {
		t.Errorf("SELL qty below minQty: got %s, want 0", qty)
	}
}

func TestTradeQty_PendingIsZero(t *testing.T) {
	b, err := New(context.Background(), newFake("5", "1000"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if qty := b.TradeQty(model.PositionPending, 250); !qty.IsZero() {
		t.Errorf("PENDING qty: got %s, want 0", qty)
	}
}

func TestMeetsNotional(t *testing.T) {
	b, err := New(context.Background(), newFake("5", "1000"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !b.MeetsNotional(dec("0.05"), 250) { // 12.5 >= 10
		t.Error("0.05 @ 250 should clear the 10 minimum notional")
	}
	if b.MeetsNotional(dec("0.03"), 250) { // 7.5 < 10
		t.Error("0.03 @ 250 should fail the 10 minimum notional")
	}
}

func TestApplyFill_AdjustsBothLegs(t *testing.T) {
	b, err := New(context.Background(), newFake("1", "1000"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.ApplyFill(model.SideBuy, dec("2"), 250)
	if !b.BaseFree().Equal(dec("3")) {
		t.Errorf("base after BUY: got %s, want 3", b.BaseFree())
	}
	if !b.QuoteFree().Equal(dec("500")) {
		t.Errorf("quote after BUY: got %s, want 500", b.QuoteFree())
	}

	b.ApplyFill(model.SideSell, dec("3"), 300)
	if !b.BaseFree().Equal(dec("0")) {
		t.Errorf("base after SELL: got %s, want 0", b.BaseFree())
	}
	if !b.QuoteFree().Equal(dec("1400")) {
		t.Errorf("quote after SELL: got %s, want 1400", b.QuoteFree())
	}
}

func TestNetGainPct_AgainstSessionOrigin(t *testing.T) {
	b, err := New(context.Background(), newFake("0", "1000"), "ETHUSDT")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.ApplyFill(model.SideBuy, dec("4"), 250)  // quote 1000 -> 0
	b.ApplyFill(model.SideSell, dec("4"), 275) // quote 0 -> 1100
	if got := b.NetGainPct(); got < 9.999 || got > 10.001 {
		t.Errorf("net gain: got %.4f%%, want 10%%", got)
	}
}
