package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest describes an order to be submitted to the exchange.
type OrderRequest struct {
	Symbol string
	Side   Side
	Type   OrderType
	Qty    decimal.Decimal
	Price  decimal.Decimal // limit price, unset for market orders
}

// OrderResult mirrors the exchange's order response.
type OrderResult struct {
	Symbol       string
	OrderID      int64
	Side         Side
	Type         OrderType
	Status       OrderStatus
	ExecutedQty  decimal.Decimal
	QuoteQty     decimal.Decimal // cumulative quote amount traded
	Price        float64         // average fill price, 0 if unknown
	TransactTime time.Time
}

// SymbolInfo holds a symbol's trading rules from exchange info.
type SymbolInfo struct {
	Symbol         string
	BaseAsset      string
	QuoteAsset     string
	BasePrecision  int32
	QuotePrecision int32
	Filters        []SymbolFilter
}

// SymbolFilter is one trading constraint. Only the fields relevant to the
// filter type are populated.
type SymbolFilter struct {
	Type        FilterType
	TickSize    decimal.Decimal // PRICE_FILTER
	MinQty      decimal.Decimal // LOT_SIZE
	StepSize    decimal.Decimal // LOT_SIZE
	MinNotional decimal.Decimal // MIN_NOTIONAL
}

// ExchangeInfo is the subset of the exchange-info endpoint the bot consumes.
type ExchangeInfo struct {
	Symbols []SymbolInfo
}

// AssetBalance is one asset's balance from the account endpoint.
type AssetBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// AccountInfo is the subset of the account endpoint the bot consumes.
type AccountInfo struct {
	Balances []AssetBalance
}
