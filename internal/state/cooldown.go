package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"breakout-trading-bot/internal/clock"

	"github.com/rs/zerolog"
)

// CooldownPersister stores the cooldown map. Both RedisStore and
// FileStore satisfy it.
type CooldownPersister interface {
	SaveCooldowns(ctx context.Context, expiries map[string]time.Time) error
	LoadCooldowns(ctx context.Context) (map[string]time.Time, error)
}

// Cooldown describes one active entry, for the API.
type Cooldown struct {
	Symbol    string    `json:"symbol"`
	ExpiresAt time.Time `json:"expires_at"`
	Remaining float64   `json:"remaining_seconds"`
}

// Registry tracks per-symbol re-entry cooldowns. Entries expire lazily
// on read; nothing runs in the background.
type Registry struct {
	mu       sync.Mutex
	clk      clock.Clock
	duration time.Duration
	expiries map[string]time.Time
	store    CooldownPersister
	logger   zerolog.Logger
}

// NewRegistry creates a registry with the given cooldown duration.
func NewRegistry(store CooldownPersister, clk clock.Clock, duration time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		clk:      clk,
		duration: duration,
		expiries: make(map[string]time.Time),
		store:    store,
		logger:   logger.With().Str("component", "cooldown").Logger(),
	}
}

// Restore loads persisted entries, discarding any already expired.
func (r *Registry) Restore(ctx context.Context) error {
	loaded, err := r.store.LoadCooldowns(ctx)
	if err != nil {
		return err
	}
	now := r.clk.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for symbol, expiry := range loaded {
		if expiry.After(now) {
			r.expiries[symbol] = expiry
		}
	}
	if n := len(r.expiries); n > 0 {
		r.logger.Info().Int("count", n).Msg("restored cooldowns")
	}
	return nil
}

// Arm starts a cooldown for the symbol using the current duration.
func (r *Registry) Arm(ctx context.Context, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry := r.clk.Now().Add(r.duration)
	r.expiries[symbol] = expiry
	r.logger.Info().Str("symbol", symbol).Time("expires_at", expiry).Msg("cooldown armed")
	r.persistLocked(ctx)
}

// IsActive reports whether the symbol is cooling down, expiring lazily.
func (r *Registry) IsActive(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.expiries[symbol]
	if !ok {
		return false
	}
	if !expiry.After(r.clk.Now()) {
		delete(r.expiries, symbol)
		return false
	}
	return true
}

// Remaining returns the time left on the symbol's cooldown, or zero.
func (r *Registry) Remaining(symbol string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.expiries[symbol]
	if !ok {
		return 0
	}
	rem := expiry.Sub(r.clk.Now())
	if rem <= 0 {
		delete(r.expiries, symbol)
		return 0
	}
	return rem
}

// SetDuration changes the duration for future Arm calls. Entries already
// armed keep their original expiry.
func (r *Registry) SetDuration(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.duration = d
}

// ClearAll drops every cooldown.
func (r *Registry) ClearAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiries = make(map[string]time.Time)
	r.logger.Info().Msg("all cooldowns cleared")
	r.persistLocked(ctx)
}

// Active returns unexpired cooldowns sorted by symbol.
func (r *Registry) Active() []Cooldown {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	out := make([]Cooldown, 0, len(r.expiries))
	for symbol, expiry := range r.expiries {
		if !expiry.After(now) {
			delete(r.expiries, symbol)
			continue
		}
		out = append(out, Cooldown{
			Symbol:    symbol,
			ExpiresAt: expiry,
			Remaining: expiry.Sub(now).Seconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Registry) persistLocked(ctx context.Context) {
	snapshot := make(map[string]time.Time, len(r.expiries))
	for k, v := range r.expiries {
		snapshot[k] = v
	}
	if err := r.store.SaveCooldowns(ctx, snapshot); err != nil {
		r.logger.Error().Err(err).Msg("persist cooldowns failed")
	}
}
