// Package exchange implements the Binance spot API: REST endpoints for
// klines, account state, and orders, plus the websocket kline stream.
// It satisfies the port interfaces in internal/model.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jerbotron/binance-bot/internal/model"
)

const (
	defaultBaseURL = "https://api.binance.com"
	defaultWSURL   = "wss://stream.binance.com:9443/ws"

	recvWindowMS = 5000
	klinesLimit  = 1000
)

// Client talks to the Binance spot API. Safe for concurrent use.
type Client struct {
	baseURL string
	wsURL   string
	apiKey  string
	secret  string
	http    *http.Client

	// OnReconnect observes every stream reconnection attempt.
	OnReconnect func()
}

// NewClient creates a Binance client. Key and secret may be empty for
// public-endpoint-only usage (klines, exchange info, streaming).
func NewClient(apiKey, secret string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		wsURL:   defaultWSURL,
		apiKey:  apiKey,
		secret:  secret,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is Binance's error envelope.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("binance: code=%d msg=%s", e.Code, e.Msg)
}

// sign appends the timestamp, recvWindow, and HMAC-SHA256 signature that
// Binance requires on account and order endpoints. The signature is computed
// over the encoded query and appended last.
func (c *Client) sign(q url.Values) string {
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("recvWindow", strconv.Itoa(recvWindowMS))
	payload := q.Encode()
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(payload))
	return payload + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, signed bool, out interface{}) error {
	if q == nil {
		q = url.Values{}
	}
	query := q.Encode()
	if signed {
		query = c.sign(q)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("exchange: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("exchange: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("exchange: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return fmt.Errorf("exchange: %s %s: %w", method, path, &apiErr)
		}
		return fmt.Errorf("exchange: %s %s: status %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("exchange: decode %s: %w", path, err)
	}
	return nil
}

// Klines returns finalized 1-minute candles covering [start, end).
func (c *Client) Klines(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", "1m")
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
	q.Set("limit", strconv.Itoa(klinesLimit))

	// Each kline row is a positional array of mixed numbers and strings.
	var rows [][]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/v3/klines", q, false, &rows); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		cd, err := parseKlineRow(symbol, row)
		if err != nil {
			return nil, fmt.Errorf("exchange: parse kline: %w", err)
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

func parseKlineRow(symbol string, row []interface{}) (model.Candle, error) {
	if len(row) < 9 {
		return model.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}
	openMS, ok := row[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("kline open time is %T", row[0])
	}
	open, err1 := parseFloatField(row[1])
	high, err2 := parseFloatField(row[2])
	low, err3 := parseFloatField(row[3])
	cl, err4 := parseFloatField(row[4])
	vol, err5 := parseFloatField(row[5])
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return model.Candle{}, err
		}
	}
	trades, _ := row[8].(float64)

	return model.Candle{
		Symbol:   symbol,
		OpenTime: time.Unix(0, int64(openMS)*int64(time.Millisecond)).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cl,
		Volume:   vol,
		Trades:   int64(trades),
		Final:    true,
	}, nil
}

func parseFloatField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("price field is %T, want string", v)
	}
	return strconv.ParseFloat(s, 64)
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol         string `json:"symbol"`
		BaseAsset      string `json:"baseAsset"`
		QuoteAsset     string `json:"quoteAsset"`
		BasePrecision  int32  `json:"baseAssetPrecision"`
		QuotePrecision int32  `json:"quoteAssetPrecision"`
		Filters        []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			MinQty      string `json:"minQty"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// ExchangeInfo returns the trading rules for one symbol.
func (c *Client) ExchangeInfo(ctx context.Context, symbol string) (model.ExchangeInfo, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var resp exchangeInfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", q, false, &resp); err != nil {
		return model.ExchangeInfo{}, err
	}

	info := model.ExchangeInfo{Symbols: make([]model.SymbolInfo, 0, len(resp.Symbols))}
	for _, s := range resp.Symbols {
		si := model.SymbolInfo{
			Symbol:         s.Symbol,
			BaseAsset:      s.BaseAsset,
			QuoteAsset:     s.QuoteAsset,
			BasePrecision:  s.BasePrecision,
			QuotePrecision: s.QuotePrecision,
		}
		for _, f := range s.Filters {
			sf := model.SymbolFilter{Type: model.FilterType(f.FilterType)}
			switch sf.Type {
			case model.FilterPrice:
				sf.TickSize = parseDecimal(f.TickSize)
			case model.FilterLotSize:
				sf.MinQty = parseDecimal(f.MinQty)
				sf.StepSize = parseDecimal(f.StepSize)
			case model.FilterMinNotional:
				sf.MinNotional = parseDecimal(f.MinNotional)
			default:
				continue
			}
			si.Filters = append(si.Filters, sf)
		}
		info.Symbols = append(info.Symbols, si)
	}
	return info, nil
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// AccountInfo returns the account's asset balances.
func (c *Client) AccountInfo(ctx context.Context) (model.AccountInfo, error) {
	var resp accountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, true, &resp); err != nil {
		return model.AccountInfo{}, err
	}

	acct := model.AccountInfo{Balances: make([]model.AssetBalance, 0, len(resp.Balances))}
	for _, b := range resp.Balances {
		acct.Balances = append(acct.Balances, model.AssetBalance{
			Asset:  b.Asset,
			Free:   parseDecimal(b.Free),
			Locked: parseDecimal(b.Locked),
		})
	}
	return acct, nil
}

type orderResponse struct {
	Symbol       string `json:"symbol"`
	OrderID      int64  `json:"orderId"`
	TransactTime int64  `json:"transactTime"`
	Time         int64  `json:"time"`
	Price        string `json:"price"`
	ExecutedQty  string `json:"executedQty"`
	QuoteQty     string `json:"cummulativeQuoteQty"`
	Status       string `json:"status"`
	Type         string `json:"type"`
	Side         string `json:"side"`
}

func (r *orderResponse) toModel() model.OrderResult {
	ts := r.TransactTime
	if ts == 0 {
		ts = r.Time
	}
	price, _ := strconv.ParseFloat(r.Price, 64)
	return model.OrderResult{
		Symbol:       r.Symbol,
		OrderID:      r.OrderID,
		Side:         model.Side(r.Side),
		Type:         model.OrderType(r.Type),
		Status:       model.OrderStatus(r.Status),
		ExecutedQty:  parseDecimal(r.ExecutedQty),
		QuoteQty:     parseDecimal(r.QuoteQty),
		Price:        price,
		TransactTime: time.Unix(0, ts*int64(time.Millisecond)).UTC(),
	}
}

func orderQuery(req model.OrderRequest) url.Values {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("side", string(req.Side))
	q.Set("type", string(req.Type))
	q.Set("quantity", req.Qty.String())
	if req.Type == model.OrderTypeLimit {
		q.Set("timeInForce", "GTC")
		q.Set("price", req.Price.String())
	}
	return q
}

// SubmitOrder places an order and returns the exchange's response.
func (c *Client) SubmitOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", orderQuery(req), true, &resp); err != nil {
		return model.OrderResult{}, err
	}
	return resp.toModel(), nil
}

// TestOrder validates an order against the matching engine without placing it.
func (c *Client) TestOrder(ctx context.Context, req model.OrderRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v3/order/test", orderQuery(req), true, nil)
}

// QueryOrder fetches the current state of a placed order.
func (c *Client) QueryOrder(ctx context.Context, symbol string, orderID int64) (model.OrderResult, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", strconv.FormatInt(orderID, 10))

	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/order", q, true, &resp); err != nil {
		return model.OrderResult{}, err
	}
	return resp.toModel(), nil
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
