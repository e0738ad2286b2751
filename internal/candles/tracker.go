// Package candles tracks the hourly candle window per symbol: the most
// recently closed candle (baseline) and the currently forming one.
package candles

import (
	"fmt"
	"sync"
	"time"

	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/clock"

	"github.com/rs/zerolog"
)

const (
	interval = "1h"
	// fetchTTL debounces per-symbol kline fetches; within the window a
	// refresh is a no-op that reports success with last-known data.
	fetchTTL = 10 * time.Second
)

// Baseline is the most recently closed hourly candle for a symbol.
// It is captured exactly once per hour and never overwritten mid-hour.
type Baseline struct {
	OpenTime int64   `json:"open_time"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Live is the currently forming hourly candle. ElapsedMinutes is always
// in [0, 60]; readings outside that range are never stored.
type Live struct {
	OpenTime       int64   `json:"open_time"`
	Price          float64 `json:"price"`
	Volume         float64 `json:"volume"`
	ElapsedMinutes int     `json:"elapsed_minutes"`
}

// Tracker maintains baseline and live candles per symbol.
type Tracker struct {
	gw     binance.Gateway
	clk    clock.Clock
	logger zerolog.Logger

	mu           sync.RWMutex
	baselines    map[string]Baseline
	baselineHour map[string]int64 // hour-start ms at which the baseline was captured
	live         map[string]Live
	lastFetch    map[string]time.Time
}

// NewTracker creates a candle tracker backed by the gateway.
func NewTracker(gw binance.Gateway, clk clock.Clock, logger zerolog.Logger) *Tracker {
	return &Tracker{
		gw:           gw,
		clk:          clk,
		logger:       logger.With().Str("component", "candles").Logger(),
		baselines:    make(map[string]Baseline),
		baselineHour: make(map[string]int64),
		live:         make(map[string]Live),
		lastFetch:    make(map[string]time.Time),
	}
}

// Refresh fetches the two most recent hourly candles for a symbol and
// updates the baseline (once per hour) and the live candle. A refresh
// inside the debounce window succeeds with last-known data. On any
// failure nothing is mutated.
func (t *Tracker) Refresh(symbol string) error {
	now := t.clk.Now()

	t.mu.RLock()
	last, ok := t.lastFetch[symbol]
	t.mu.RUnlock()
	if ok && now.Sub(last) < fetchTTL {
		return nil
	}

	klines, err := t.gw.GetKlines(symbol, interval, 2)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", symbol, err)
	}
	if len(klines) < 2 {
		return fmt.Errorf("refresh %s: got %d candles, need 2", symbol, len(klines))
	}

	prev, curr := klines[len(klines)-2], klines[len(klines)-1]

	elapsed := elapsedMinutes(now, curr.OpenTime)
	if elapsed > 60 {
		// Stale data: the "current" candle opened over an hour ago. Storing
		// it would propagate a bogus expired reading.
		return fmt.Errorf("refresh %s: stale live candle, elapsed %dm", symbol, elapsed)
	}

	hourStart := now.UTC().Truncate(time.Hour).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.baselineHour[symbol] != hourStart {
		t.baselines[symbol] = Baseline{
			OpenTime: prev.OpenTime,
			Close:    prev.Close,
			Volume:   prev.Volume,
		}
		t.baselineHour[symbol] = hourStart
		t.logger.Info().Str("symbol", symbol).Float64("close", prev.Close).Msg("baseline candle locked")
	}

	t.live[symbol] = Live{
		OpenTime:       curr.OpenTime,
		Price:          curr.Close,
		Volume:         curr.Volume,
		ElapsedMinutes: elapsed,
	}
	t.lastFetch[symbol] = now
	return nil
}

// Baseline returns the locked previous-hour candle for a symbol.
func (t *Tracker) Baseline(symbol string) (Baseline, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.baselines[symbol]
	return b, ok
}

// Live returns the currently forming candle for a symbol.
func (t *Tracker) Live(symbol string) (Live, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.live[symbol]
	return l, ok
}

// elapsedMinutes computes whole minutes since the candle opened.
// Negative values (clock skew) clamp to 0; values over 60 are returned
// as-is so the caller can reject the reading.
func elapsedMinutes(now time.Time, openTimeMs int64) int {
	elapsed := int(now.Sub(time.UnixMilli(openTimeMs)).Minutes())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
