// Package eventlog writes a per-session CSV audit trail of trading activity:
// start/stop balance summaries, processed candles, confirmed orders, and
// errors. Writes are best-effort; the trading path never fails on a log
// error.
package eventlog

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jerbotron/binance-bot/internal/model"
)

// Event tags one CSV row.
type Event string

const (
	EventStart  Event = "START"
	EventStop   Event = "STOP"
	EventCandle Event = "CANDLE"
	EventOrder  Event = "ORDER"
	EventInfo   Event = "INFO"
	EventError  Event = "ERROR"
)

// Logger appends trading events to a timestamped per-symbol CSV file.
type Logger struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// New creates the log directory if needed and opens a fresh session file
// named <symbol>_<timestamp>.csv.
func New(dir, symbol string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.csv", symbol, time.Now().UTC().Format("2006-01-02T15-04-05"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	log.Printf("[eventlog] writing %s", f.Name())
	return &Logger{f: f, w: bufio.NewWriter(f)}, nil
}

func (l *Logger) row(fields ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if _, err := l.w.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
		log.Printf("[eventlog] write failed: %v", err)
	}
}

// Start records the session's opening balances.
func (l *Logger) Start(baseAsset, baseFree, quoteAsset, quoteFree string) {
	l.row(string(EventStart), baseAsset, baseFree, quoteAsset, quoteFree)
}

// Candle records one processed candle.
func (l *Logger) Candle(c model.Candle) {
	l.row(string(EventCandle),
		c.OpenTime.UTC().Format(time.RFC3339),
		fmt.Sprintf("%.8f", c.Open),
		fmt.Sprintf("%.8f", c.Close),
		fmt.Sprintf("%.8f", c.Volume),
		fmt.Sprintf("%d", c.Trades))
}

// Order records one confirmed fill.
func (l *Logger) Order(f model.FillReport) {
	l.row(string(EventOrder),
		f.TransactTime.UTC().Format(time.RFC3339),
		fmt.Sprintf("%d", f.OrderID),
		string(f.Side),
		fmt.Sprintf("%.8f", f.Price),
		f.Qty.String())
}

// Info records a free-form informational row.
func (l *Logger) Info(msg string) {
	l.row(string(EventInfo), msg)
}

// Error records an error row.
func (l *Logger) Error(err error) {
	l.row(string(EventError), err.Error())
}

// Stop records the closing balances with the session's net gain percentage,
// flushes, and closes the file. Idempotent.
func (l *Logger) Stop(baseAsset, baseFree, quoteAsset, quoteFree string, netGainPct float64) {
	l.row(string(EventStop), baseAsset, baseFree, quoteAsset, quoteFree,
		fmt.Sprintf("%.4f%%", netGainPct))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if err := l.w.Flush(); err != nil {
		log.Printf("[eventlog] flush failed: %v", err)
	}
	if err := l.f.Close(); err != nil {
		log.Printf("[eventlog] close failed: %v", err)
	}
}
