package binance

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries = 2
	rateLimitWait     = 30 * time.Second
	baseRetryWait     = 500 * time.Millisecond
)

// RetryGateway decorates a Gateway with retry and backoff so the trading
// core stays retry-policy-agnostic. Transient failures are retried with a
// short linear backoff, rate-limit rejections wait out the limiter window,
// and auth errors are returned immediately.
type RetryGateway struct {
	inner      Gateway
	maxRetries int
	sleep      func(time.Duration)
	logger     zerolog.Logger
}

// NewRetryGateway wraps a gateway with the default retry policy.
func NewRetryGateway(inner Gateway, logger zerolog.Logger) *RetryGateway {
	return &RetryGateway{
		inner:      inner,
		maxRetries: defaultMaxRetries,
		sleep:      time.Sleep,
		logger:     logger.With().Str("component", "gateway_retry").Logger(),
	}
}

func retry[T any](g *RetryGateway, op string, fn func() (T, error)) (T, error) {
	var result T
	var err error
	for attempt := 1; attempt <= g.maxRetries+1; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) || attempt > g.maxRetries {
			return result, err
		}

		wait := baseRetryWait * time.Duration(attempt)
		if IsRateLimitError(err) {
			wait = rateLimitWait
		}
		g.logger.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(err).
			Msg("retrying gateway call")
		g.sleep(wait)
	}
	return result, err
}

func (g *RetryGateway) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	return retry(g, "klines", func() ([]Kline, error) {
		return g.inner.GetKlines(symbol, interval, limit)
	})
}

func (g *RetryGateway) Get24hrTickers() ([]Ticker24hr, error) {
	return retry(g, "tickers", func() ([]Ticker24hr, error) {
		return g.inner.Get24hrTickers()
	})
}

func (g *RetryGateway) GetCurrentPrice(symbol string) (float64, error) {
	return retry(g, "price", func() (float64, error) {
		return g.inner.GetCurrentPrice(symbol)
	})
}

func (g *RetryGateway) GetAccountBalance(asset string) (float64, error) {
	return retry(g, "balance", func() (float64, error) {
		return g.inner.GetAccountBalance(asset)
	})
}

// Orders are not retried: a timeout after POST leaves the order state
// unknown, and a blind retry could double-fill.
func (g *RetryGateway) PlaceMarketBuy(symbol string, quoteAmount float64) (*OrderResponse, error) {
	return g.inner.PlaceMarketBuy(symbol, quoteAmount)
}

func (g *RetryGateway) PlaceMarketSell(symbol string, quantity float64) (*OrderResponse, error) {
	return g.inner.PlaceMarketSell(symbol, quantity)
}

func (g *RetryGateway) GetOpenOrders(symbol string) ([]OpenOrder, error) {
	return retry(g, "open_orders", func() ([]OpenOrder, error) {
		return g.inner.GetOpenOrders(symbol)
	})
}

func (g *RetryGateway) CancelAllOrders(symbol string) error {
	_, err := retry(g, "cancel_all", func() (struct{}, error) {
		return struct{}{}, g.inner.CancelAllOrders(symbol)
	})
	return err
}

func (g *RetryGateway) GetSymbolLotSize(symbol string) (*LotSize, error) {
	return retry(g, "lot_size", func() (*LotSize, error) {
		return g.inner.GetSymbolLotSize(symbol)
	})
}
