package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	acquireTimeout = 15 * time.Second
	priceCacheTTL  = 2 * time.Second
)

// Client is the REST gateway to the Binance spot API.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     zerolog.Logger

	mu         sync.RWMutex
	priceCache map[string]cachedPrice
	lotSizes   map[string]LotSize
}

type cachedPrice struct {
	price   float64
	fetched time.Time
}

// NewClient creates a spot API client.
func NewClient(apiKey, secretKey, baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    NewRateLimiter(logger),
		logger:     logger.With().Str("component", "binance").Logger(),
		priceCache: make(map[string]cachedPrice),
		lotSizes:   make(map[string]LotSize),
	}
}

// GetKlines fetches candlestick data
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get("/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 9 {
			return nil, fmt.Errorf("malformed kline entry at index %d", i)
		}
		openTime, ok0 := raw[0].(float64)
		closeTime, ok6 := raw[6].(float64)
		trades, ok8 := raw[8].(float64)
		if !ok0 || !ok6 || !ok8 {
			return nil, fmt.Errorf("malformed kline entry at index %d", i)
		}
		klines[i] = Kline{
			OpenTime:         int64(openTime),
			Open:             parseFloat(raw[1]),
			High:             parseFloat(raw[2]),
			Low:              parseFloat(raw[3]),
			Close:            parseFloat(raw[4]),
			Volume:           parseFloat(raw[5]),
			CloseTime:        int64(closeTime),
			QuoteAssetVolume: parseFloat(raw[7]),
			NumberOfTrades:   int(trades),
		}
	}

	return klines, nil
}

// Get24hrTickers fetches 24hr ticker data for all symbols
func (c *Client) Get24hrTickers() ([]Ticker24hr, error) {
	body, err := c.get("/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching tickers: %w", err)
	}

	var tickers []Ticker24hr
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("error parsing tickers: %w", err)
	}

	return tickers, nil
}

// GetCurrentPrice fetches the current price for a symbol. Prices are
// cached for a short TTL so the fast broadcast loop stays off the API
// weight budget.
func (c *Client) GetCurrentPrice(symbol string) (float64, error) {
	c.mu.RLock()
	cached, ok := c.priceCache[symbol]
	c.mu.RUnlock()
	if ok && time.Since(cached.fetched) < priceCacheTTL {
		return cached.price, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get("/api/v3/ticker/price", params)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}

	var priceResp struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}

	c.mu.Lock()
	c.priceCache[symbol] = cachedPrice{price: priceResp.Price, fetched: time.Now()}
	c.mu.Unlock()

	return priceResp.Price, nil
}

// GetAccountBalance returns the free balance of a single asset. A missing
// asset entry means a genuine zero balance, not a failure.
func (c *Client) GetAccountBalance(asset string) (float64, error) {
	body, err := c.signedRequest("GET", "/api/v3/account", url.Values{})
	if err != nil {
		return 0, fmt.Errorf("error fetching account: %w", err)
	}

	var account AccountInfo
	if err := json.Unmarshal(body, &account); err != nil {
		return 0, fmt.Errorf("error parsing account: %w", err)
	}

	for _, b := range account.Balances {
		if b.Asset == asset {
			return b.Free, nil
		}
	}
	return 0, nil
}

// PlaceMarketBuy places a market buy spending quoteAmount of the quote
// currency (quoteOrderQty semantics).
func (c *Client) PlaceMarketBuy(symbol string, quoteAmount float64) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", formatQty(quoteAmount))
	return c.placeOrder(params)
}

// PlaceMarketSell places a market sell for an exact base-asset quantity.
// The quantity must already be stepped to a valid LOT_SIZE multiple.
func (c *Client) PlaceMarketSell(symbol string, quantity float64) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", formatQty(quantity))
	return c.placeOrder(params)
}

func (c *Client) placeOrder(params url.Values) (*OrderResponse, error) {
	body, err := c.signedRequest("POST", "/api/v3/order", params)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	return &orderResp, nil
}

// GetOpenOrders returns resting orders for a symbol
func (c *Client) GetOpenOrders(symbol string) ([]OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.signedRequest("GET", "/api/v3/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching open orders: %w", err)
	}

	var orders []OpenOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}
	return orders, nil
}

// CancelAllOrders cancels every resting order on a symbol
func (c *Client) CancelAllOrders(symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	if _, err := c.signedRequest("DELETE", "/api/v3/openOrders", params); err != nil {
		return fmt.Errorf("error canceling orders: %w", err)
	}
	return nil
}

// GetSymbolLotSize returns the LOT_SIZE constraints for a symbol,
// cached after the first exchangeInfo fetch.
func (c *Client) GetSymbolLotSize(symbol string) (*LotSize, error) {
	c.mu.RLock()
	ls, ok := c.lotSizes[symbol]
	c.mu.RUnlock()
	if ok {
		return &ls, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get("/api/v3/exchangeInfo", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching exchange info: %w", err)
	}

	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("error parsing exchange info: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				ls = LotSize{StepSize: f.StepSize, MinQty: f.MinQty}
				c.mu.Lock()
				c.lotSizes[symbol] = ls
				c.mu.Unlock()
				return &ls, nil
			}
		}
	}
	return nil, fmt.Errorf("no LOT_SIZE filter for %s", symbol)
}

// get performs an unauthenticated GET request
func (c *Client) get(path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, path)
}

// signedRequest performs an authenticated request with HMAC signature
func (c *Client) signedRequest(method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	params.Set("signature", c.sign(params))

	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	if !c.limiter.Acquire(path, acquireTimeout) {
		return nil, &APIError{Code: -1003, Message: "local rate limit budget exhausted", HTTPStatus: 429}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if used, err := strconv.Atoi(resp.Header.Get("X-MBX-USED-WEIGHT-1M")); err == nil {
		c.limiter.UpdateFromHeaders(used)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil {
			apiErr.Message = string(body)
		}
		if IsRateLimitError(apiErr) {
			c.limiter.RecordRateLimitError(parseBanUntil(apiErr.Message))
		}
		return nil, apiErr
	}

	c.limiter.RecordSuccess()
	return body, nil
}

// sign creates an HMAC-SHA256 signature over the sorted query string
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "signature" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var query strings.Builder
	for i, k := range keys {
		if i > 0 {
			query.WriteByte('&')
		}
		query.WriteString(k)
		query.WriteByte('=')
		query.WriteString(params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// parseBanUntil extracts the ban expiry timestamp from a -1003 message,
// e.g. "Way too much request weight used; banned until 1766824120342."
func parseBanUntil(msg string) int64 {
	var banUntil int64
	if _, err := fmt.Sscanf(msg, "%*[^0-9]%d", &banUntil); err != nil {
		return 0
	}
	now := time.Now()
	if banUntil > now.UnixMilli() && banUntil < now.Add(24*time.Hour).UnixMilli() {
		return banUntil
	}
	return 0
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}
