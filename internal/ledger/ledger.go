// Package ledger owns the single active position and the global trade
// lock. The pair is guarded by one mutex and persisted as one record, so
// a lock can never outlive its position or vice versa.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/clock"
	"breakout-trading-bot/internal/history"
	"breakout-trading-bot/internal/risk"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Policy constants. These are operational floors, not strategy
// parameters, so they are not configurable.
const (
	// minQuoteBalance is the minimum quote-currency balance required to
	// open a position.
	minQuoteBalance = 10.0
	// dustQuoteValue is the quote value below which a residual balance is
	// treated as dust and cleared without selling.
	dustQuoteValue = 1.0
)

var (
	ErrLockHeld            = errors.New("trade lock already held")
	ErrNoPosition          = errors.New("no open position")
	ErrInsufficientBalance = errors.New("insufficient quote balance")
	ErrFillMismatch        = errors.New("order accepted but not executed")
)

// TradeLock gates entry evaluation: while held, no new position may open.
type TradeLock struct {
	Held   bool   `json:"held"`
	Symbol string `json:"symbol,omitempty"`
}

// Position is the single open trade. At most one exists system-wide.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	QuoteAmount  float64 `json:"quote_amount"`
	CurrentPrice float64 `json:"current_price"`
	Lifecycle    string  `json:"state"`
	risk.State
}

// Store persists the position/lock aggregate. Implementations must write
// both fields as a single record.
type Store interface {
	SaveActiveTrade(ctx context.Context, pos *Position, lock TradeLock) error
	LoadActiveTrade(ctx context.Context) (*Position, TradeLock, error)
}

// Ledger manages the position lifecycle against the exchange.
type Ledger struct {
	mu     sync.Mutex
	gw     binance.Gateway
	engine *risk.Engine
	store  Store
	clk    clock.Clock
	logger zerolog.Logger

	quoteAsset string
	pos        *Position
	lock       TradeLock
}

// New creates a ledger. Call Restore before the first trading cycle.
func New(gw binance.Gateway, engine *risk.Engine, store Store, clk clock.Clock, quoteAsset string, logger zerolog.Logger) *Ledger {
	return &Ledger{
		gw:         gw,
		engine:     engine,
		store:      store,
		clk:        clk,
		quoteAsset: quoteAsset,
		logger:     logger.With().Str("component", "ledger").Logger(),
	}
}

// Restore loads persisted state and immediately reconciles it against
// the exchange instead of trusting it.
func (l *Ledger) Restore(ctx context.Context) error {
	pos, lock, err := l.store.LoadActiveTrade(ctx)
	if err != nil {
		return fmt.Errorf("load active trade: %w", err)
	}

	l.mu.Lock()
	// Repair a torn record: the pair is all-or-nothing.
	if pos != nil && !lock.Held {
		l.logger.Warn().Str("symbol", pos.Symbol).Msg("restored position without lock, re-locking")
		lock = TradeLock{Held: true, Symbol: pos.Symbol}
	}
	if pos == nil && lock.Held {
		l.logger.Warn().Str("symbol", lock.Symbol).Msg("restored orphaned lock, releasing")
		lock = TradeLock{}
	}
	l.pos = pos
	l.lock = lock
	l.mu.Unlock()

	if pos != nil {
		l.logger.Info().Str("symbol", pos.Symbol).Float64("entry_price", pos.EntryPrice).Msg("restored active trade")
		if _, err := l.Reconcile(ctx); err != nil {
			l.logger.Warn().Err(err).Msg("reconcile after restore failed, keeping position")
		}
	}
	return nil
}

// Open buys with the entire available quote balance and records the
// resulting position. Either both the position and the lock are set and
// persisted, or nothing changes.
func (l *Ledger) Open(ctx context.Context, symbol string, signalPrice float64) (*Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lock.Held {
		return nil, ErrLockHeld
	}

	balance, err := l.gw.GetAccountBalance(l.quoteAsset)
	if err != nil {
		return nil, fmt.Errorf("query %s balance: %w", l.quoteAsset, err)
	}
	if balance < minQuoteBalance {
		return nil, fmt.Errorf("%w: %.2f %s (minimum %.0f)", ErrInsufficientBalance, balance, l.quoteAsset, minQuoteBalance)
	}

	order, err := l.gw.PlaceMarketBuy(symbol, balance)
	if err != nil {
		return nil, fmt.Errorf("market buy %s: %w", symbol, err)
	}
	if order.ExecutedQty <= 0 {
		return nil, fmt.Errorf("%w: buy %s status %s", ErrFillMismatch, symbol, order.Status)
	}

	// Entry levels derive from the fill, not the pre-trade signal price.
	entryPrice := order.AvgFillPrice()
	if entryPrice <= 0 {
		entryPrice = signalPrice
	}

	pos := &Position{
		Symbol:       symbol,
		Quantity:     order.ExecutedQty,
		QuoteAmount:  entryPrice * order.ExecutedQty,
		CurrentPrice: entryPrice,
		Lifecycle:    risk.StateActive,
		State: risk.State{
			EntryPrice:        entryPrice,
			EntryTime:         l.clk.Now(),
			StopLoss:          l.engine.StopLossPrice(entryPrice),
			TakeProfitTrigger: l.engine.TakeProfitTriggerPrice(entryPrice),
			HighestPrice:      entryPrice,
		},
	}

	l.pos = pos
	l.lock = TradeLock{Held: true, Symbol: symbol}
	l.persist(ctx)

	l.logger.Info().
		Str("symbol", symbol).
		Float64("entry_price", entryPrice).
		Float64("quantity", order.ExecutedQty).
		Float64("stop_loss", pos.StopLoss).
		Float64("tp_trigger", pos.TakeProfitTrigger).
		Msg("position opened")

	return snapshot(pos), nil
}

// Monitor runs one risk evaluation cycle at the given price. The
// returned decision tells the caller whether to close.
func (l *Ledger) Monitor(ctx context.Context, price float64) (risk.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return risk.Decision{}, ErrNoPosition
	}

	l.pos.CurrentPrice = price
	decision := l.engine.Evaluate(&l.pos.State, price, l.clk.Now())
	l.pos.Lifecycle = l.pos.State.Lifecycle()

	if decision.TrailingActivated {
		l.logger.Info().
			Str("symbol", l.pos.Symbol).
			Float64("price", price).
			Float64("trailing_stop", *l.pos.TrailingStop).
			Msg("trailing stop armed")
	}

	if !decision.Exit {
		l.persist(ctx)
	}
	return decision, nil
}

// Close sells the exchange-reported base balance and records the round
// trip. The locally cached quantity is never trusted for the sell; manual
// trades or lot rounding may have changed it. If the sell cannot be
// placed the position and lock are force-cleared anyway: a stuck lock
// silently halts all future trading, which is worse than losing one
// reconciliation.
func (l *Ledger) Close(ctx context.Context, reason string) (*history.ClosedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return nil, ErrNoPosition
	}
	symbol := l.pos.Symbol
	base := strings.TrimSuffix(symbol, l.quoteAsset)

	// Read failures before the sell leave everything untouched; the
	// caller retries next cycle.
	balance, err := l.gw.GetAccountBalance(base)
	if err != nil {
		return nil, fmt.Errorf("query %s balance: %w", base, err)
	}
	if balance <= 0 {
		l.logger.Warn().Str("symbol", symbol).Msg("no balance to sell, clearing position")
		l.clear(ctx)
		return nil, fmt.Errorf("close %s: zero base balance", symbol)
	}

	qty := balance
	if lot, err := l.gw.GetSymbolLotSize(symbol); err == nil {
		qty = lot.Round(balance)
		if qty <= 0 {
			l.logger.Warn().
				Str("symbol", symbol).
				Float64("balance", balance).
				Msg("balance below lot minimum, clearing as dust")
			l.clear(ctx)
			return nil, fmt.Errorf("close %s: balance below lot minimum", symbol)
		}
	} else {
		l.logger.Warn().Err(err).Str("symbol", symbol).Msg("lot size unavailable, selling raw balance")
	}

	if orders, err := l.gw.GetOpenOrders(symbol); err == nil && len(orders) > 0 {
		l.logger.Info().Str("symbol", symbol).Int("count", len(orders)).Msg("cancelling resting orders before sell")
		if err := l.gw.CancelAllOrders(symbol); err != nil {
			l.logger.Warn().Err(err).Str("symbol", symbol).Msg("cancel failed, proceeding with market sell")
		}
	}

	order, err := l.gw.PlaceMarketSell(symbol, qty)
	if err != nil || order.ExecutedQty <= 0 {
		if err == nil {
			err = fmt.Errorf("%w: sell %s status %s", ErrFillMismatch, symbol, order.Status)
		}
		l.logger.Error().Err(err).Str("symbol", symbol).Msg("sell failed, force-clearing to avoid stuck lock")
		l.clear(ctx)
		return nil, fmt.Errorf("market sell %s: %w", symbol, err)
	}

	exitPrice := order.AvgFillPrice()
	if exitPrice <= 0 {
		exitPrice = l.pos.CurrentPrice
		l.logger.Warn().Str("symbol", symbol).Float64("exit_price", exitPrice).Msg("no fills in sell response, using last price")
	}

	trade := &history.ClosedTrade{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		EntryPrice:      l.pos.EntryPrice,
		ExitPrice:       exitPrice,
		EntryTime:       l.pos.EntryTime,
		ExitTime:        l.clk.Now(),
		PnLPercent:      l.engine.PnLPercent(l.pos.EntryPrice, exitPrice),
		ExitReason:      reason,
		QuoteAmount:     l.pos.QuoteAmount,
		ExitQuoteAmount: exitPrice * order.ExecutedQty,
	}

	l.clear(ctx)

	l.logger.Info().
		Str("symbol", symbol).
		Float64("exit_price", exitPrice).
		Float64("pnl_percent", trade.PnLPercent).
		Str("reason", reason).
		Msg("position closed")

	return trade, nil
}

// Reconcile compares the exchange-reported base balance against the
// stored quantity. Dust and near-zero balances clear the position;
// moderate drift corrects the stored quantity in place. A gateway
// failure conservatively reports the position as still open.
func (l *Ledger) Reconcile(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return false, nil
	}
	symbol := l.pos.Symbol
	base := strings.TrimSuffix(symbol, l.quoteAsset)

	balance, err := l.gw.GetAccountBalance(base)
	if err != nil {
		l.logger.Warn().Err(err).Str("symbol", symbol).Msg("balance fetch failed during reconcile, assuming still open")
		return true, nil
	}

	price, err := l.gw.GetCurrentPrice(symbol)
	if err != nil || price <= 0 {
		price = l.pos.EntryPrice
	}

	if balance*price < dustQuoteValue {
		l.logger.Info().
			Str("symbol", symbol).
			Float64("balance", balance).
			Float64("quote_value", balance*price).
			Msg("residual balance is dust, clearing position")
		l.clear(ctx)
		return false, nil
	}

	expected := l.pos.Quantity
	if balance < expected*0.01 {
		l.logger.Info().Str("symbol", symbol).Msg("position appears manually closed, clearing")
		l.clear(ctx)
		return false, nil
	}

	// Outside the 5% tolerance band: correct the stored quantity rather
	// than guessing at a close.
	if balance < expected*0.95 || balance > expected*1.05 {
		l.logger.Info().
			Str("symbol", symbol).
			Float64("expected", expected).
			Float64("actual", balance).
			Msg("quantity drift detected, correcting in place")
		l.pos.Quantity = balance
		l.pos.QuoteAmount = balance * price
		l.persist(ctx)
		return true, nil
	}

	if diff := balance - expected; diff > expected*0.01 || diff < -expected*0.01 {
		l.pos.Quantity = balance
		l.pos.QuoteAmount = balance * price
		l.persist(ctx)
	}
	return true, nil
}

// ForceClear drops the position and lock without touching the exchange.
// Used when a stop-sell failed and state must not stay locked.
func (l *Ledger) ForceClear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos != nil {
		l.logger.Warn().Str("symbol", l.pos.Symbol).Msg("force-clearing position and lock")
	}
	l.clear(ctx)
}

// Snapshot returns a copy of the open position, or nil.
func (l *Ledger) Snapshot() *Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return snapshot(l.pos)
}

// LockHeld reports whether the global trade lock is held.
func (l *Ledger) LockHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lock.Held
}

// clear resets the aggregate and persists; callers hold the mutex.
func (l *Ledger) clear(ctx context.Context) {
	l.pos = nil
	l.lock = TradeLock{}
	l.persist(ctx)
}

// persist writes the aggregate; callers hold the mutex. A failed write is
// logged but does not roll back in-memory state: the exchange-side
// mutation already happened, and dropping it locally would orphan the
// exchange position.
func (l *Ledger) persist(ctx context.Context) {
	if err := l.store.SaveActiveTrade(ctx, l.pos, l.lock); err != nil {
		l.logger.Error().Err(err).Msg("persist active trade failed")
	}
}

func snapshot(pos *Position) *Position {
	if pos == nil {
		return nil
	}
	cp := *pos
	if pos.TrailingStop != nil {
		ts := *pos.TrailingStop
		cp.TrailingStop = &ts
	}
	return &cp
}
