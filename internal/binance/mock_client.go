package binance

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data and fills for development
// without API keys.
type MockClient struct {
	mu         sync.RWMutex
	prices     map[string]float64
	balances   map[string]float64
	lastUpdate time.Time
	rng        *rand.Rand
}

// NewMockClient creates a mock gateway seeded with realistic prices and
// a starting quote balance.
func NewMockClient() *MockClient {
	mc := &MockClient{
		prices: map[string]float64{
			"BTCUSDT":  104500.00,
			"ETHUSDT":  3900.00,
			"BNBUSDT":  710.00,
			"SOLUSDT":  220.00,
			"XRPUSDT":  2.35,
			"ADAUSDT":  1.05,
			"DOGEUSDT": 0.40,
			"AVAXUSDT": 50.00,
			"DOTUSDT":  9.50,
			"LINKUSDT": 28.00,
			"NEARUSDT": 7.00,
			"APTUSDT":  13.50,
			"ARBUSDT":  1.10,
			"OPUSDT":   2.80,
		},
		balances:   map[string]float64{"USDT": 1000.0},
		lastUpdate: time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return mc
}

// updatePrices adds small random variations to simulate market movement
func (mc *MockClient) updatePrices() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if time.Since(mc.lastUpdate) < time.Second {
		return
	}
	for symbol, price := range mc.prices {
		// Random walk: -0.5% to +0.5% change
		change := (mc.rng.Float64() - 0.5) * 0.01
		mc.prices[symbol] = price * (1 + change)
	}
	mc.lastUpdate = time.Now()
}

func (mc *MockClient) price(symbol string) (float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	p, ok := mc.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("mock: unknown symbol %s", symbol)
	}
	return p, nil
}

func (mc *MockClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	mc.updatePrices()
	p, err := mc.price(symbol)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	hourStart := now.Truncate(time.Hour)

	klines := make([]Kline, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		open := hourStart.Add(-time.Duration(i) * time.Hour)
		drift := 1 + float64(i)*0.002
		klines = append(klines, Kline{
			OpenTime:  open.UnixMilli(),
			Open:      p / drift,
			High:      p * 1.002 / drift,
			Low:       p * 0.998 / drift,
			Close:     p / drift,
			Volume:    10000 + mc.rng.Float64()*5000,
			CloseTime: open.Add(time.Hour).UnixMilli() - 1,
		})
	}
	return klines, nil
}

func (mc *MockClient) Get24hrTickers() ([]Ticker24hr, error) {
	mc.updatePrices()
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	tickers := make([]Ticker24hr, 0, len(mc.prices))
	for symbol, price := range mc.prices {
		tickers = append(tickers, Ticker24hr{
			Symbol:             symbol,
			LastPrice:          price,
			PriceChangePercent: (mc.rng.Float64() - 0.3) * 15,
			Volume:             50000 + mc.rng.Float64()*100000,
			QuoteVolume:        price * 50000,
		})
	}
	return tickers, nil
}

func (mc *MockClient) GetCurrentPrice(symbol string) (float64, error) {
	mc.updatePrices()
	return mc.price(symbol)
}

func (mc *MockClient) GetAccountBalance(asset string) (float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.balances[asset], nil
}

func (mc *MockClient) PlaceMarketBuy(symbol string, quoteAmount float64) (*OrderResponse, error) {
	p, err := mc.price(symbol)
	if err != nil {
		return nil, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.balances["USDT"] < quoteAmount {
		return nil, &APIError{Code: -2010, Message: "insufficient balance"}
	}
	qty := quoteAmount / p
	mc.balances["USDT"] -= quoteAmount
	mc.balances[baseAsset(symbol)] += qty

	return &OrderResponse{
		Symbol:              symbol,
		OrderId:             mc.rng.Int63(),
		TransactTime:        time.Now().UnixMilli(),
		ExecutedQty:         qty,
		CummulativeQuoteQty: quoteAmount,
		Status:              "FILLED",
		Type:                "MARKET",
		Side:                "BUY",
		Fills:               []Fill{{Price: p, Qty: qty}},
	}, nil
}

func (mc *MockClient) PlaceMarketSell(symbol string, quantity float64) (*OrderResponse, error) {
	p, err := mc.price(symbol)
	if err != nil {
		return nil, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	base := baseAsset(symbol)
	if mc.balances[base] < quantity {
		return nil, &APIError{Code: -2010, Message: "insufficient balance"}
	}
	mc.balances[base] -= quantity
	mc.balances["USDT"] += quantity * p

	return &OrderResponse{
		Symbol:              symbol,
		OrderId:             mc.rng.Int63(),
		TransactTime:        time.Now().UnixMilli(),
		ExecutedQty:         quantity,
		CummulativeQuoteQty: quantity * p,
		Status:              "FILLED",
		Type:                "MARKET",
		Side:                "SELL",
		Fills:               []Fill{{Price: p, Qty: quantity}},
	}, nil
}

func (mc *MockClient) GetOpenOrders(symbol string) ([]OpenOrder, error) {
	return nil, nil
}

func (mc *MockClient) CancelAllOrders(symbol string) error {
	return nil
}

func (mc *MockClient) GetSymbolLotSize(symbol string) (*LotSize, error) {
	return &LotSize{StepSize: 0.00001, MinQty: 0.00001}, nil
}

func baseAsset(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}
