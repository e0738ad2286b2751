package binance

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Endpoint weights for the Binance Spot API. Weights without a symbol
// parameter (full ticker list) are much heavier than the per-symbol calls.
var endpointWeights = map[string]int{
	"/api/v3/klines":       2,
	"/api/v3/ticker/24hr":  80, // full list, no symbol
	"/api/v3/ticker/price": 2,
	"/api/v3/account":      20,
	"/api/v3/order":        1,
	"/api/v3/openOrders":   6,
	"/api/v3/exchangeInfo": 20,
}

// RateLimiter implements proactive weight-based rate limiting with a
// circuit breaker that honors Binance IP bans.
type RateLimiter struct {
	mu sync.Mutex

	// Circuit breaker state
	circuitOpen bool
	banUntil    time.Time

	// Weight tracking (Binance spot: 6000 weight per minute)
	currentWeight int
	weightResetAt time.Time
	maxWeight     int

	consecutiveErrors int
	logger            zerolog.Logger
}

// NewRateLimiter creates a rate limiter tuned for the spot API limits.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		maxWeight:     6000,
		weightResetAt: time.Now().Add(time.Minute),
		logger:        logger.With().Str("component", "rate_limiter").Logger(),
	}
}

// Acquire blocks until the endpoint's weight fits in the current window
// or the timeout elapses. Returns false when the budget could not be
// acquired in time (circuit open or window exhausted).
func (r *RateLimiter) Acquire(endpoint string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		ok, wait := r.tryAcquire(endpoint)
		if ok {
			return true
		}
		if time.Now().Add(wait).After(deadline) {
			return false
		}
		time.Sleep(wait)
	}
}

func (r *RateLimiter) tryAcquire(endpoint string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.weightResetAt) {
		r.currentWeight = 0
		r.weightResetAt = now.Add(time.Minute)
	}

	if r.circuitOpen {
		if now.Before(r.banUntil) {
			return false, time.Until(r.banUntil)
		}
		r.circuitOpen = false
		r.logger.Info().Msg("circuit breaker closed, ban expired")
	}

	weight := endpointWeights[endpoint]
	if weight == 0 {
		weight = 1
	}
	if r.currentWeight+weight > r.maxWeight {
		wait := time.Until(r.weightResetAt)
		if wait < 0 {
			wait = 100 * time.Millisecond
		}
		return false, wait
	}

	r.currentWeight += weight
	return true, 0
}

// RecordSuccess resets the consecutive error counter.
func (r *RateLimiter) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveErrors = 0
}

// RecordRateLimitError opens the circuit breaker. banUntilMs is the ban
// expiry reported by Binance, or zero to back off exponentially.
func (r *RateLimiter) RecordRateLimitError(banUntilMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++

	if banUntilMs > 0 {
		r.banUntil = time.UnixMilli(banUntilMs)
	} else {
		backoff := time.Duration(1<<uint(r.consecutiveErrors)) * 15 * time.Second
		if backoff > 30*time.Minute {
			backoff = 30 * time.Minute
		}
		r.banUntil = time.Now().Add(backoff)
	}

	r.circuitOpen = true
	r.logger.Warn().
		Time("ban_until", r.banUntil).
		Int("consecutive_errors", r.consecutiveErrors).
		Msg("circuit breaker open")
}

// UpdateFromHeaders reconciles tracked weight with the usage Binance
// reports in the X-MBX-USED-WEIGHT-1M response header.
func (r *RateLimiter) UpdateFromHeaders(usedWeight1m int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if usedWeight1m > r.currentWeight {
		r.currentWeight = usedWeight1m
	}
}

// IsCircuitOpen returns true while a ban is in effect.
func (r *RateLimiter) IsCircuitOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.circuitOpen && time.Now().Before(r.banUntil)
}
