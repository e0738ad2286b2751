// Package risk computes stop-loss, take-profit-trigger and trailing-stop
// levels, and drives the exit state machine for an open position.
package risk

import (
	"fmt"
	"time"
)

// Lifecycle states of a position.
const (
	StateActive         = "ACTIVE"
	StateTrailingActive = "TRAILING_ACTIVE"
)

// Exit reasons reported in decisions and closed-trade records.
const (
	ReasonTimeExit     = "time exit"
	ReasonTrailingStop = "trailing stop hit"
	ReasonStopLoss     = "stop loss hit"
)

// Config holds the risk parameters.
type Config struct {
	StopLossPercent     float64
	TakeProfitPercent   float64
	TrailingStopPercent float64
	TimeExitEnabled     bool
	MaxTradeDuration    time.Duration
}

// State is the risk-relevant slice of an open position. It is embedded in
// the ledger's Position and mutated only through Evaluate.
type State struct {
	EntryPrice        float64   `json:"entry_price"`
	EntryTime         time.Time `json:"entry_time"`
	StopLoss          float64   `json:"stop_loss"`
	TakeProfitTrigger float64   `json:"tp_trigger"`
	TrailingStop      *float64  `json:"trailing_stop,omitempty"` // nil until armed
	HighestPrice      float64   `json:"highest_price"`
	TrailingActive    bool      `json:"trailing_active"`
	PnLPercent        float64   `json:"pnl_percent"`
}

// Decision is the outcome of one per-cycle evaluation.
type Decision struct {
	Exit              bool
	Reason            string
	TrailingActivated bool // true the cycle trailing first armed
}

// Engine evaluates exits. Its methods are pure functions of the passed
// state plus the configured percentages.
type Engine struct {
	cfg Config
}

// NewEngine creates a risk engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// SetConfig replaces the risk parameters (used on config reload).
func (e *Engine) SetConfig(cfg Config) {
	e.cfg = cfg
}

// StopLossPrice computes the initial stop loss for an entry price.
func (e *Engine) StopLossPrice(entryPrice float64) float64 {
	return entryPrice * (1 - e.cfg.StopLossPercent/100)
}

// TakeProfitTriggerPrice computes the price at which trailing arms.
func (e *Engine) TakeProfitTriggerPrice(entryPrice float64) float64 {
	return entryPrice * (1 + e.cfg.TakeProfitPercent/100)
}

// TrailingStopPrice computes the trailing stop below a high-water mark.
func (e *Engine) TrailingStopPrice(highestPrice float64) float64 {
	return highestPrice * (1 - e.cfg.TrailingStopPercent/100)
}

// PnLPercent computes the running profit relative to entry.
func (e *Engine) PnLPercent(entryPrice, currentPrice float64) float64 {
	return (currentPrice - entryPrice) / entryPrice * 100
}

// Evaluate runs one cycle of the exit state machine against price p,
// mutating s in place. Precedence is time-exit, then trailing stop, then
// the hard stop loss; the stop loss stays live even while trailing.
// Once trailing arms there is no way back to plain ACTIVE, and the
// trailing stop only ever moves up.
func (e *Engine) Evaluate(s *State, p float64, now time.Time) Decision {
	if p > s.HighestPrice {
		s.HighestPrice = p
		if s.TrailingActive {
			candidate := e.TrailingStopPrice(s.HighestPrice)
			if s.TrailingStop == nil || candidate > *s.TrailingStop {
				s.TrailingStop = &candidate
			}
		}
	}

	s.PnLPercent = e.PnLPercent(s.EntryPrice, p)

	if e.cfg.TimeExitEnabled && e.cfg.MaxTradeDuration > 0 {
		if now.Sub(s.EntryTime) >= e.cfg.MaxTradeDuration {
			return Decision{
				Exit:   true,
				Reason: fmt.Sprintf("%s after %d minutes", ReasonTimeExit, int(e.cfg.MaxTradeDuration.Minutes())),
			}
		}
	}

	var activated bool
	if !s.TrailingActive && p >= s.TakeProfitTrigger {
		s.TrailingActive = true
		s.HighestPrice = p
		armed := e.TrailingStopPrice(p)
		s.TrailingStop = &armed
		activated = true
	}

	if s.TrailingActive && s.TrailingStop != nil && p <= *s.TrailingStop {
		return Decision{
			Exit:              true,
			Reason:            fmt.Sprintf("%s at %.8f", ReasonTrailingStop, *s.TrailingStop),
			TrailingActivated: activated,
		}
	}

	if p <= s.StopLoss {
		return Decision{
			Exit:              true,
			Reason:            fmt.Sprintf("%s at %.8f", ReasonStopLoss, s.StopLoss),
			TrailingActivated: activated,
		}
	}

	return Decision{TrailingActivated: activated}
}

// Lifecycle reports the position state string for a risk state.
func (s *State) Lifecycle() string {
	if s.TrailingActive {
		return StateTrailingActive
	}
	return StateActive
}
