package binance

// Gateway defines the exchange operations the trading core depends on.
// Every call is fallible and may return stale data; callers must treat a
// returned error as "no fresh data this cycle", not as fatal.
type Gateway interface {
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	Get24hrTickers() ([]Ticker24hr, error)
	GetCurrentPrice(symbol string) (float64, error)
	// GetAccountBalance returns the free balance for an asset. A zero
	// balance is (0, nil); an API failure is a non-nil error, so callers
	// can tell the two apart.
	GetAccountBalance(asset string) (float64, error)
	PlaceMarketBuy(symbol string, quoteAmount float64) (*OrderResponse, error)
	PlaceMarketSell(symbol string, quantity float64) (*OrderResponse, error)
	GetOpenOrders(symbol string) ([]OpenOrder, error)
	CancelAllOrders(symbol string) error
	GetSymbolLotSize(symbol string) (*LotSize, error)
}

// Ensure all gateway implementations satisfy the interface
var _ Gateway = (*Client)(nil)
var _ Gateway = (*MockClient)(nil)
var _ Gateway = (*RetryGateway)(nil)
