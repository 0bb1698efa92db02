// Package orderbook tracks the account balances and trading rules for one
// symbol and converts trade decisions into exchange-legal order quantities.
package orderbook

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jerbotron/binance-bot/internal/model"
)

// Balance tracks one asset's free/locked amounts. The first recorded free
// amount is kept as the session origin for net-gain reporting.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal

	orig    decimal.Decimal
	hasOrig bool
}

// Update replaces the balance amounts, capturing the origin on first call.
func (b *Balance) Update(free, locked decimal.Decimal) {
	if !b.hasOrig {
		b.orig = free
		b.hasOrig = true
	}
	b.Free = free
	b.Locked = locked
}

// Origin returns the first recorded free amount.
func (b *Balance) Origin() decimal.Decimal { return b.orig }

// Book holds the trading rules and live balances for a single symbol.
type Book struct {
	client model.AccountClient
	symbol string

	baseAsset  string
	quoteAsset string

	tickSize    decimal.Decimal
	minQty      decimal.Decimal
	stepSize    decimal.Decimal
	minNotional decimal.Decimal

	mu    sync.Mutex
	base  Balance
	quote Balance
	fee   Balance
}

// Trading fees are paid in BNB when the account holds any, so the book
// watches that balance alongside the trading pair's.
const feeAsset = "BNB"

// New loads the symbol's trading rules and the current account balances.
// It fails hard if the symbol is unknown to the exchange; trading without
// lot-size filters would produce rejected orders on every decision.
func New(ctx context.Context, client model.AccountClient, symbol string) (*Book, error) {
	info, err := client.ExchangeInfo(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("orderbook: exchange info: %w", err)
	}

	var si *model.SymbolInfo
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			si = &info.Symbols[i]
			break
		}
	}
	if si == nil {
		return nil, fmt.Errorf("orderbook: symbol %s not in exchange info", symbol)
	}

	b := &Book{
		client:     client,
		symbol:     symbol,
		baseAsset:  si.BaseAsset,
		quoteAsset: si.QuoteAsset,
	}
	b.base.Asset = si.BaseAsset
	b.quote.Asset = si.QuoteAsset
	b.fee.Asset = feeAsset

	for _, f := range si.Filters {
		switch f.Type {
		case model.FilterPrice:
			b.tickSize = f.TickSize
		case model.FilterLotSize:
			b.minQty = f.MinQty
			b.stepSize = f.StepSize
		case model.FilterMinNotional:
			b.minNotional = f.MinNotional
		}
	}

	if err := b.UpdateBalances(ctx); err != nil {
		return nil, err
	}
	log.Printf("[orderbook] %s ready: base=%s free=%s quote=%s free=%s step=%s minQty=%s",
		symbol, b.baseAsset, b.base.Free, b.quoteAsset, b.quote.Free, b.stepSize, b.minQty)
	return b, nil
}

// UpdateBalances refreshes the base, quote, and fee-asset balances from the
// account endpoint.
func (b *Book) UpdateBalances(ctx context.Context) error {
	acct, err := b.client.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("orderbook: account info: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bal := range acct.Balances {
		switch bal.Asset {
		case b.baseAsset:
			b.base.Update(bal.Free, bal.Locked)
		case b.quoteAsset:
			b.quote.Update(bal.Free, bal.Locked)
		case feeAsset:
			b.fee.Update(bal.Free, bal.Locked)
		}
	}
	return nil
}

// TradeQty sizes an order for the given position at the given price.
// BUY spends the entire free quote balance; SELL liquidates the entire free
// base balance. The result is rounded down to the lot step. A zero result
// means there is nothing tradable.
func (b *Book) TradeQty(pos model.Position, price float64) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := decimal.NewFromFloat(price)
	var qty decimal.Decimal
	switch pos {
	case model.PositionBuy:
		if p.IsZero() {
			log.Printf("[orderbook] %s BUY sizing skipped: zero price", b.symbol)
			return decimal.Zero
		}
		qty = b.quote.Free.Div(p)
	case model.PositionSell:
		qty = b.base.Free
	default:
		log.Printf("[orderbook] %s cannot size order for position %s", b.symbol, pos)
		return decimal.Zero
	}

	qty = b.stepRound(qty)
	if qty.LessThan(b.minQty) {
		return decimal.Zero
	}
	return qty
}

// MeetsNotional reports whether qty*price clears the exchange's minimum
// notional filter. Always true when the filter is absent.
func (b *Book) MeetsNotional(qty decimal.Decimal, price float64) bool {
	if b.minNotional.IsZero() {
		return true
	}
	return qty.Mul(decimal.NewFromFloat(price)).GreaterThanOrEqual(b.minNotional)
}

// ApplyFill adjusts the cached balances for a confirmed fill. Simulation mode
// relies on this entirely; live mode uses it as a stopgap until the next
// UpdateBalances call lands.
func (b *Book) ApplyFill(side model.Side, qty decimal.Decimal, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	quote := qty.Mul(decimal.NewFromFloat(price))
	switch side {
	case model.SideBuy:
		b.base.Update(b.base.Free.Add(qty), b.base.Locked)
		b.quote.Update(b.quote.Free.Sub(quote), b.quote.Locked)
	case model.SideSell:
		b.base.Update(b.base.Free.Sub(qty), b.base.Locked)
		b.quote.Update(b.quote.Free.Add(quote), b.quote.Locked)
	}
}

// BaseFree returns the free base-asset balance.
func (b *Book) BaseFree() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base.Free
}

// QuoteFree returns the free quote-asset balance.
func (b *Book) QuoteFree() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quote.Free
}

// FeeFree returns the free fee-asset balance.
func (b *Book) FeeFree() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fee.Free
}

// NetGainPct returns the percentage change of the free quote balance against
// its session origin. Zero when no origin was recorded or the origin is zero.
func (b *Book) NetGainPct() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.quote.hasOrig || b.quote.orig.IsZero() {
		return 0
	}
	pct, _ := b.quote.Free.Sub(b.quote.orig).
		Div(b.quote.orig).
		Mul(decimal.NewFromInt(100)).
		Float64()
	return pct
}

// Symbol returns the symbol this book tracks.
func (b *Book) Symbol() string { return b.symbol }

// BaseAsset returns the base asset code.
func (b *Book) BaseAsset() string { return b.baseAsset }

// QuoteAsset returns the quote asset code.
func (b *Book) QuoteAsset() string { return b.quoteAsset }

func (b *Book) stepRound(qty decimal.Decimal) decimal.Decimal {
	if b.stepSize.IsZero() {
		return qty
	}
	return qty.Div(b.stepSize).Floor().Mul(b.stepSize)
}
