package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bar for a single symbol.
// Final is true once the bar's time bucket has closed; only final candles
// feed the strategy.
type Candle struct {
	Symbol   string    `json:"symbol"`
	OpenTime time.Time `json:"open_time"` // bucket start (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Trades   int64     `json:"trades"`
	Final    bool      `json:"final"`
}

// Bucket returns the start of the candle's time bucket in Unix seconds,
// aligned to the given interval.
func (c *Candle) Bucket(interval time.Duration) int64 {
	sec := int64(interval / time.Second)
	if sec <= 0 {
		sec = 1
	}
	ts := c.OpenTime.Unix()
	return ts - ts%sec
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
