package bot

import (
	"context"
	"errors"

	"breakout-trading-bot/config"
	"breakout-trading-bot/internal/history"
	"breakout-trading-bot/internal/ledger"
	"breakout-trading-bot/internal/market"
	"breakout-trading-bot/internal/state"
)

// Dashboard-facing accessors and controls; the api package consumes
// these through its BotAPI interface.

// Position returns a copy of the open position, or nil.
func (b *Bot) Position() *ledger.Position {
	return b.ledger.Snapshot()
}

// Gainers returns the last gainer scan.
func (b *Bot) Gainers() []market.Gainer {
	return b.scanner.Gainers()
}

// Cooldowns returns the active cooldowns.
func (b *Bot) Cooldowns() []state.Cooldown {
	return b.cooldowns.Active()
}

// CloseTrade closes the open position with the given reason, typically
// "MANUAL" from the dashboard.
func (b *Bot) CloseTrade(ctx context.Context, reason string) error {
	if b.ledger.Snapshot() == nil {
		return errors.New("no open position")
	}
	b.closePosition(ctx, reason)
	if b.ledger.Snapshot() != nil {
		return errors.New("close did not complete, position still open")
	}
	return nil
}

// ClearCooldowns drops all cooldowns.
func (b *Bot) ClearCooldowns(ctx context.Context) {
	b.cooldowns.ClearAll(ctx)
}

// CurrentConfig returns the live configuration.
func (b *Bot) CurrentConfig() *config.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *b.cfg
	return &cp
}

// ApplyConfig validates, applies, and persists a new configuration. Only
// strategy and risk sections take effect at runtime.
func (b *Bot) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	b.cfg.StrategyConfig = cfg.StrategyConfig
	b.cfg.RiskConfig = cfg.RiskConfig
	saved := *b.cfg
	path := b.cfgPath
	b.mu.Unlock()

	b.UpdateStrategy(cfg.StrategyConfig)
	b.UpdateRisk(cfg.RiskConfig)

	if path == "" {
		return nil
	}
	return saved.Save(path)
}

// History returns the most recent closed trades.
func (b *Bot) History(ctx context.Context, limit int) ([]*history.ClosedTrade, error) {
	return b.histStore.List(ctx, limit)
}

// Stats aggregates the full trade history.
func (b *Bot) Stats(ctx context.Context) (history.Stats, error) {
	trades, err := b.histStore.List(ctx, 0)
	if err != nil {
		return history.Stats{}, err
	}
	return history.ComputeStats(trades), nil
}
