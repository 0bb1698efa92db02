package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TradeConfig is the immutable strategy configuration for one symbol.
// It is supplied at startup and passed by value into every component.
type TradeConfig struct {
	Symbol        string
	BBFactor      float64 // band width in standard deviations
	Smoothing     float64 // EMA smoothing constant (s / (1 + windowSize))
	WindowSize    int     // bars in the statistics window
	VelWindowSize int     // lookback (bars) for velocity recomputation
	StopLoss      float64 // fractional loss that forces an exit
	InitialPos    Position
	Simulation    bool
}

// TradeDecision is an immutable BUY/SELL signal emitted by the strategy.
type TradeDecision struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Position  Position  `json:"position"` // BUY or SELL
	Price     float64   `json:"price"`
	Simulated bool      `json:"simulated"`
}

// JSON returns the JSON-encoded decision (ignoring errors for hot-path usage).
func (d *TradeDecision) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}

// FillReport carries a confirmed order fill back to the driver.
// It is emitted only for fully filled orders; failed or rejected orders
// produce no report.
type FillReport struct {
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	Price        float64         `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	OrderID      int64           `json:"order_id"`
	TransactTime time.Time       `json:"transact_time"`
	Simulated    bool            `json:"simulated"`
}

// JSON returns the JSON-encoded fill report (ignoring errors).
func (f *FillReport) JSON() []byte {
	b, _ := json.Marshal(f)
	return b
}
