// Package market scans the exchange for the fastest-rising USDT pairs.
package market

import (
	"sort"
	"strings"
	"sync"

	"breakout-trading-bot/internal/binance"

	"github.com/rs/zerolog"
)

// Leveraged tokens move on their own mechanics and are excluded from
// breakout scanning.
var excludedAffixes = []string{"UP", "DOWN", "BULL", "BEAR"}

// Gainer is a single ranked scan result
type Gainer struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// Scanner ranks quote-currency pairs by 24h price change.
type Scanner struct {
	gw            binance.Gateway
	quoteCurrency string
	logger        zerolog.Logger

	mu      sync.RWMutex
	gainers []Gainer
}

// NewScanner creates a scanner for pairs quoted in quoteCurrency.
func NewScanner(gw binance.Gateway, quoteCurrency string, logger zerolog.Logger) *Scanner {
	return &Scanner{
		gw:            gw,
		quoteCurrency: quoteCurrency,
		logger:        logger.With().Str("component", "scanner").Logger(),
	}
}

// ScanTopGainers fetches all 24h tickers and returns the top count
// symbols by price change percent.
func (s *Scanner) ScanTopGainers(count int) ([]string, error) {
	tickers, err := s.gw.Get24hrTickers()
	if err != nil {
		return nil, err
	}

	gainers := Rank(tickers, s.quoteCurrency, count)

	s.mu.Lock()
	s.gainers = gainers
	s.mu.Unlock()

	symbols := make([]string, len(gainers))
	for i, g := range gainers {
		symbols[i] = g.Symbol
	}
	s.logger.Debug().Int("count", len(symbols)).Msg("scanned top gainers")
	return symbols, nil
}

// Rank filters tickers down to plain quote-currency pairs and returns the
// top count by 24h change, descending.
func Rank(tickers []binance.Ticker24hr, quoteCurrency string, count int) []Gainer {
	gainers := make([]Gainer, 0, count)
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, quoteCurrency) {
			continue
		}
		if isLeveragedToken(t.Symbol, quoteCurrency) {
			continue
		}
		gainers = append(gainers, Gainer{
			Symbol:             t.Symbol,
			LastPrice:          t.LastPrice,
			PriceChangePercent: t.PriceChangePercent,
			Volume:             t.Volume,
			QuoteVolume:        t.QuoteVolume,
		})
	}

	sort.Slice(gainers, func(i, j int) bool {
		return gainers[i].PriceChangePercent > gainers[j].PriceChangePercent
	})

	if len(gainers) > count {
		gainers = gainers[:count]
	}
	return gainers
}

// GainerInfo returns the cached scan entry for a symbol, if present.
func (s *Scanner) GainerInfo(symbol string) (Gainer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.gainers {
		if g.Symbol == symbol {
			return g, true
		}
	}
	return Gainer{}, false
}

// Gainers returns a copy of the most recent scan results.
func (s *Scanner) Gainers() []Gainer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Gainer, len(s.gainers))
	copy(out, s.gainers)
	return out
}

func isLeveragedToken(symbol, quoteCurrency string) bool {
	base := strings.TrimSuffix(symbol, quoteCurrency)
	for _, affix := range excludedAffixes {
		if strings.HasSuffix(base, affix) {
			return true
		}
	}
	return false
}
