package model

import (
	"context"
	"time"
)

// ── Exchange Port Interfaces ──
// These interfaces decouple the trading core from the concrete exchange
// client so the engine, order book, and trader can be driven by fakes in
// tests and by the Binance client in production.

// MarketStream provides live candle updates for one symbol.
type MarketStream interface {
	// StreamCandles pushes candle updates for symbol/interval into out.
	// Blocks until ctx is cancelled; reconnects internally on transient
	// failures.
	StreamCandles(ctx context.Context, symbol, interval string, out chan<- Candle) error
}

// HistoricalSource fetches historical candles for backfill.
type HistoricalSource interface {
	// Klines returns finalized candles in ascending time order covering
	// [start, end).
	Klines(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error)
}

// OrderClient submits and queries exchange orders.
type OrderClient interface {
	// SubmitOrder places an order and returns the exchange's response.
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// TestOrder validates an order without placing it (simulation mode).
	TestOrder(ctx context.Context, req OrderRequest) error

	// QueryOrder fetches the current state of a previously placed order.
	QueryOrder(ctx context.Context, symbol string, orderID int64) (OrderResult, error)
}

// AccountClient queries account balances and symbol trading rules.
type AccountClient interface {
	AccountInfo(ctx context.Context) (AccountInfo, error)
	ExchangeInfo(ctx context.Context, symbol string) (ExchangeInfo, error)
}
