// Package bot runs the trading loop: scan gainers, track candles,
// evaluate entries, monitor the open position, and close on risk exits.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"breakout-trading-bot/config"
	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/candles"
	"breakout-trading-bot/internal/clock"
	"breakout-trading-bot/internal/entry"
	"breakout-trading-bot/internal/events"
	"breakout-trading-bot/internal/history"
	"breakout-trading-bot/internal/ledger"
	"breakout-trading-bot/internal/market"
	"breakout-trading-bot/internal/risk"
	"breakout-trading-bot/internal/state"

	"github.com/rs/zerolog"
)

// ExitReasonStop marks closes triggered by an intentional shutdown
// rather than a risk rule.
const ExitReasonStop = "BOT_STOP"

// Bot owns the trading loops. At most one position is open at a time;
// the ledger enforces that, the bot sequences the cycle around it.
type Bot struct {
	gw        binance.Gateway
	scanner   *market.Scanner
	tracker   *candles.Tracker
	evaluator *entry.Evaluator
	engine    *risk.Engine
	ledger    *ledger.Ledger
	cooldowns *state.Registry
	histStore history.Store
	bus       *events.EventBus
	clk       clock.Clock
	logger    zerolog.Logger

	mu       sync.Mutex
	cfg      *config.Config
	cfgPath  string
	strategy config.StrategyConfig
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(
	gw binance.Gateway,
	scanner *market.Scanner,
	tracker *candles.Tracker,
	evaluator *entry.Evaluator,
	engine *risk.Engine,
	led *ledger.Ledger,
	cooldowns *state.Registry,
	histStore history.Store,
	bus *events.EventBus,
	clk clock.Clock,
	cfg *config.Config,
	cfgPath string,
	logger zerolog.Logger,
) *Bot {
	return &Bot{
		gw:        gw,
		scanner:   scanner,
		tracker:   tracker,
		evaluator: evaluator,
		engine:    engine,
		ledger:    led,
		cooldowns: cooldowns,
		histStore: histStore,
		bus:       bus,
		clk:       clk,
		cfg:       cfg,
		cfgPath:   cfgPath,
		strategy:  cfg.StrategyConfig,
		logger:    logger.With().Str("component", "bot").Logger(),
	}
}

// Start restores persisted state, reconciles it against the exchange,
// and launches the trading and price loops.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot already running")
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.mu.Unlock()

	if err := b.ledger.Restore(ctx); err != nil {
		b.logger.Error().Err(err).Msg("state restore failed, starting clean")
	}
	if err := b.cooldowns.Restore(ctx); err != nil {
		b.logger.Error().Err(err).Msg("cooldown restore failed, starting clean")
	}

	b.wg.Add(2)
	go b.runLoop()
	go b.priceLoop()

	b.logger.Info().Msg("bot started")
	b.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{}})
	return nil
}

// Stop halts the loops and closes any open position. The close runs the
// normal exit path; if the sell fails the ledger force-clears so the
// lock cannot survive the shutdown.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return errors.New("bot not running")
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	b.wg.Wait()

	if b.ledger.Snapshot() != nil {
		b.logger.Info().Msg("closing open position before shutdown")
		b.closePosition(ctx, ExitReasonStop)
		if b.ledger.Snapshot() != nil {
			// Close failed on a read error; the position survived but the
			// operator asked for a stop, so clear anyway.
			b.ledger.ForceClear(ctx)
		}
	}

	b.logger.Info().Msg("bot stopped")
	b.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
	return nil
}

// Running reports whether the loops are active.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// UpdateStrategy applies new strategy parameters. Loop intervals take
// effect on restart; cooldown changes are not retroactive.
func (b *Bot) UpdateStrategy(strategy config.StrategyConfig) {
	b.mu.Lock()
	b.strategy = strategy
	b.mu.Unlock()

	b.evaluator.SetConfig(entry.Config{
		VolumeMultiplier:   strategy.VolumeMultiplier,
		VolumeTimeLimit:    strategy.VolumeTimeLimit,
		PriceChangePercent: strategy.PriceChangePercent,
	})
	b.cooldowns.SetDuration(time.Duration(strategy.CooldownMinutes) * time.Minute)
	b.logger.Info().Msg("strategy config updated")
}

// UpdateRisk applies new risk parameters. The open position keeps its
// original entry levels; only future evaluations change.
func (b *Bot) UpdateRisk(rc config.RiskConfig) {
	b.engine.SetConfig(risk.Config{
		StopLossPercent:     rc.StopLossPercent,
		TakeProfitPercent:   rc.TakeProfitPercent,
		TrailingStopPercent: rc.TrailingStopPercent,
		TimeExitEnabled:     rc.TimeExitEnabled,
		MaxTradeDuration:    time.Duration(rc.MaxTradeDurationMinutes) * time.Minute,
	})
	b.logger.Info().Msg("risk config updated")
}

func (b *Bot) runLoop() {
	defer b.wg.Done()

	b.mu.Lock()
	interval := time.Duration(b.strategy.LoopIntervalSeconds) * time.Second
	b.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.cycle()
		}
	}
}

// cycle runs one trading iteration. A cycle either monitors the open
// position or hunts for an entry, never both.
func (b *Bot) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if pos := b.ledger.Snapshot(); pos != nil {
		b.monitorPosition(ctx, pos)
		return
	}
	b.huntEntry(ctx)
}

func (b *Bot) monitorPosition(ctx context.Context, pos *ledger.Position) {
	stillOpen, err := b.ledger.Reconcile(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("reconcile failed")
	}
	if !stillOpen {
		// Closed outside the bot; cool the symbol down so a breakout
		// that is still in progress does not re-trigger immediately.
		b.cooldowns.Arm(ctx, pos.Symbol)
		b.bus.Publish(events.Event{Type: events.EventCooldownUpdate, Data: map[string]interface{}{"symbol": pos.Symbol}})
		return
	}

	price, err := b.gw.GetCurrentPrice(pos.Symbol)
	if err != nil {
		b.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("price fetch failed, skipping monitor cycle")
		return
	}

	decision, err := b.ledger.Monitor(ctx, price)
	if err != nil {
		if !errors.Is(err, ledger.ErrNoPosition) {
			b.logger.Error().Err(err).Msg("monitor failed")
		}
		return
	}

	if snap := b.ledger.Snapshot(); snap != nil {
		b.bus.PublishTradeUpdate(snap.Symbol, price, b.engine.PnLPercent(snap.EntryPrice, price), snap.HighestPrice, snap.TrailingStop)
	}

	if decision.Exit {
		b.logger.Info().Str("symbol", pos.Symbol).Str("reason", decision.Reason).Float64("price", price).Msg("exit condition met")
		b.closePosition(ctx, decision.Reason)
	}
}

func (b *Bot) huntEntry(ctx context.Context) {
	b.mu.Lock()
	count := b.strategy.TopGainerCount
	b.mu.Unlock()

	symbols, err := b.scanner.ScanTopGainers(count)
	if err != nil {
		b.logger.Warn().Err(err).Msg("gainer scan failed, skipping cycle")
		b.bus.PublishError("scanner", err)
		return
	}
	b.bus.Publish(events.Event{Type: events.EventMarketUpdate, Data: map[string]interface{}{"gainers": b.scanner.Gainers()}})

	for _, symbol := range symbols {
		if err := b.tracker.Refresh(symbol); err != nil {
			b.logger.Debug().Err(err).Str("symbol", symbol).Msg("candle refresh failed")
			continue
		}
		baseline, ok := b.tracker.Baseline(symbol)
		if !ok {
			continue
		}
		live, ok := b.tracker.Live(symbol)
		if !ok {
			continue
		}
		price, err := b.gw.GetCurrentPrice(symbol)
		if err != nil {
			continue
		}

		verdict := b.evaluator.Evaluate(symbol, baseline, live, price, b.ledger.LockHeld(), b.cooldowns.IsActive(symbol))
		if !verdict.Signal {
			continue
		}

		b.logger.Info().Str("symbol", symbol).Float64("price", price).Str("reason", verdict.Reason).Msg("entry signal")
		if baseline.Volume > 0 {
			b.bus.PublishSignal(symbol, price, live.Volume/baseline.Volume, (price-baseline.Close)/baseline.Close*100)
		}

		pos, err := b.ledger.Open(ctx, symbol, price)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				b.logger.Warn().Err(err).Msg("cannot open position, halting entry hunt")
				return
			}
			b.logger.Error().Err(err).Str("symbol", symbol).Msg("open failed")
			b.bus.PublishError("ledger", err)
			continue
		}

		b.bus.PublishTradeOpened(pos.Symbol, pos.EntryPrice, pos.Quantity, pos.StopLoss, pos.TakeProfitTrigger)
		return
	}
}

// closePosition runs the exit path and records the round trip. The
// symbol cools down whenever the position is actually gone afterwards,
// whether the sell succeeded or the ledger force-cleared.
func (b *Bot) closePosition(ctx context.Context, reason string) {
	pos := b.ledger.Snapshot()
	if pos == nil {
		return
	}

	trade, err := b.ledger.Close(ctx, reason)
	if err != nil {
		b.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("close failed")
		b.bus.PublishError("ledger", err)
	}
	if trade != nil {
		if err := b.histStore.Insert(ctx, trade); err != nil {
			b.logger.Error().Err(err).Msg("record trade failed")
		}
		b.bus.PublishTradeClosed(trade.Symbol, trade.ExitPrice, trade.PnLPercent, trade.ExitReason)
	}

	if b.ledger.Snapshot() == nil {
		b.cooldowns.Arm(ctx, pos.Symbol)
		b.bus.Publish(events.Event{Type: events.EventCooldownUpdate, Data: map[string]interface{}{"symbol": pos.Symbol}})
	}
}

// priceLoop broadcasts read-only price updates for the open position at
// a faster cadence than the trading loop. It never mutates state.
func (b *Bot) priceLoop() {
	defer b.wg.Done()

	b.mu.Lock()
	secs := b.strategy.PriceUpdateSeconds
	b.mu.Unlock()
	if secs < 1 {
		secs = 3
	}

	ticker := time.NewTicker(time.Duration(secs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			pos := b.ledger.Snapshot()
			if pos == nil {
				continue
			}
			price, err := b.gw.GetCurrentPrice(pos.Symbol)
			if err != nil {
				continue
			}
			b.bus.Publish(events.Event{
				Type: events.EventPriceUpdate,
				Data: map[string]interface{}{
					"symbol":      pos.Symbol,
					"price":       price,
					"pnl_percent": b.engine.PnLPercent(pos.EntryPrice, price),
				},
			})
		}
	}
}
