// Package entry evaluates whether a symbol's candle window qualifies for
// a breakout entry.
package entry

import (
	"fmt"

	"breakout-trading-bot/internal/candles"
)

// Status classifies an evaluation outcome
type Status string

const (
	StatusLocked   Status = "LOCKED"
	StatusCooldown Status = "COOLDOWN"
	StatusTimeout  Status = "TIMEOUT"
	StatusWait     Status = "WAIT"
	StatusSignal   Status = "SIGNAL"
)

// Verdict is the result of evaluating one symbol.
type Verdict struct {
	Signal bool   `json:"signal"`
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

// Config holds the entry thresholds.
type Config struct {
	VolumeMultiplier   float64 // live volume must reach baseline volume times this
	VolumeTimeLimit    int     // minutes into the hour after which entries time out
	PriceChangePercent float64 // live price must exceed baseline close by this percent
}

// Evaluator checks entry conditions. It is a pure function of its inputs
// and holds no mutable state.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// SetConfig replaces the thresholds (used on config reload).
func (e *Evaluator) SetConfig(cfg Config) {
	e.cfg = cfg
}

// Evaluate checks all entry conditions for a symbol. The gates are
// ordered deliberately: lock, cooldown and timeout disqualify before the
// economic thresholds are consulted, so a symbol outside its time window
// reports TIMEOUT rather than WAIT.
func (e *Evaluator) Evaluate(symbol string, baseline candles.Baseline, live candles.Live, livePrice float64, lockHeld, inCooldown bool) Verdict {
	if lockHeld {
		return Verdict{Status: StatusLocked, Reason: "another trade is active (global lock)"}
	}
	if inCooldown {
		return Verdict{Status: StatusCooldown, Reason: fmt.Sprintf("%s is in post-exit cooldown", symbol)}
	}

	// Strictly greater-than: exactly at the limit is still eligible.
	if live.ElapsedMinutes > e.cfg.VolumeTimeLimit {
		return Verdict{
			Status: StatusTimeout,
			Reason: fmt.Sprintf("exceeded %d minute entry window", e.cfg.VolumeTimeLimit),
		}
	}

	requiredVolume := baseline.Volume * e.cfg.VolumeMultiplier
	if live.Volume < requiredVolume {
		return Verdict{
			Status: StatusWait,
			Reason: fmt.Sprintf("volume not reached (need %.0f, have %.0f)", requiredVolume, live.Volume),
		}
	}

	requiredPrice := baseline.Close * (1 + e.cfg.PriceChangePercent/100)
	if livePrice < requiredPrice {
		return Verdict{
			Status: StatusWait,
			Reason: fmt.Sprintf("price not reached (need %.8f, have %.8f)", requiredPrice, livePrice),
		}
	}

	return Verdict{
		Signal: true,
		Status: StatusSignal,
		Reason: fmt.Sprintf("all conditions met: volume %.0f/%.0f, price %.8f/%.8f",
			live.Volume, requiredVolume, livePrice, requiredPrice),
	}
}
