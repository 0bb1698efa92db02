package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jerbotron/binance-bot/internal/model"
)

const maxBackoff = 16 * time.Second

// klineEvent is the Binance websocket kline payload.
type klineEvent struct {
	Type      string `json:"e"`
	EventTime int64  `json:"E"`
	Kline     struct {
		OpenTime int64  `json:"t"`
		Symbol   string `json:"s"`
		Open     string `json:"o"`
		Close    string `json:"c"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Volume   string `json:"v"`
		Trades   int64  `json:"n"`
		Final    bool   `json:"x"`
	} `json:"k"`
}

// StreamCandles connects to the kline stream for symbol/interval and pushes
// every update (final and in-progress) into out. Reconnects with exponential
// backoff on transient failures; blocks until ctx is cancelled.
func (c *Client) StreamCandles(ctx context.Context, symbol, interval string, out chan<- model.Candle) error {
	streamURL := fmt.Sprintf("%s/%s@kline_%s", c.wsURL, strings.ToLower(symbol), interval)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}

		log.Printf("[stream] %s connecting to %s", symbol, streamURL)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[stream] %s dial failed: %v (retry in %s)", symbol, err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		log.Printf("[stream] %s connected", symbol)

		if err := c.readLoop(ctx, conn, out); err != nil {
			log.Printf("[stream] %s read loop ended: %v (reconnecting)", symbol, err)
		}
		conn.Close()
		if ctx.Err() == nil && c.OnReconnect != nil {
			c.OnReconnect()
		}
	}
}

// readLoop pumps kline events until the connection breaks or ctx is
// cancelled. A nil return means clean shutdown.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- model.Candle) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close() // unblocks ReadMessage
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		candle, ok := parseKlineEvent(msg)
		if !ok {
			continue
		}
		select {
		case out <- candle:
		case <-ctx.Done():
			return nil
		}
	}
}

func parseKlineEvent(msg []byte) (model.Candle, bool) {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		log.Printf("[stream] unparseable message: %v", err)
		return model.Candle{}, false
	}
	if ev.Type != "kline" {
		return model.Candle{}, false
	}

	k := ev.Kline
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	cl, err4 := strconv.ParseFloat(k.Close, 64)
	vol, err5 := strconv.ParseFloat(k.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			log.Printf("[stream] bad kline field: %v", err)
			return model.Candle{}, false
		}
	}

	return model.Candle{
		Symbol:   k.Symbol,
		OpenTime: time.Unix(0, k.OpenTime*int64(time.Millisecond)).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cl,
		Volume:   vol,
		Trades:   k.Trades,
		Final:    k.Final,
	}, true
}
