package state

import (
	"context"
	"testing"
	"time"

	"breakout-trading-bot/internal/ledger"
	"breakout-trading-bot/internal/risk"
)

func TestActiveTradeRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	ctx := context.Background()

	ts := 104.94
	pos := &ledger.Position{
		Symbol:       "BTCUSDT",
		Quantity:     0.5,
		QuoteAmount:  50000,
		CurrentPrice: 105000,
		Lifecycle:    risk.StateTrailingActive,
		State: risk.State{
			EntryPrice:        100000,
			EntryTime:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			StopLoss:          98000,
			TakeProfitTrigger: 105000,
			TrailingStop:      &ts,
			HighestPrice:      106000,
			TrailingActive:    true,
		},
	}
	lock := ledger.TradeLock{Held: true, Symbol: "BTCUSDT"}

	if err := store.SaveActiveTrade(ctx, pos, lock); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, gotLock, err := store.LoadActiveTrade(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("position lost")
	}
	if got.Symbol != "BTCUSDT" || got.EntryPrice != 100000 || !got.TrailingActive {
		t.Errorf("position round trip mismatch: %+v", got)
	}
	if got.TrailingStop == nil || *got.TrailingStop != ts {
		t.Errorf("trailing stop = %v, want %v", got.TrailingStop, ts)
	}
	if !gotLock.Held || gotLock.Symbol != "BTCUSDT" {
		t.Errorf("lock round trip mismatch: %+v", gotLock)
	}

	// Clearing writes nil position and an empty lock as one record.
	if err := store.SaveActiveTrade(ctx, nil, ledger.TradeLock{}); err != nil {
		t.Fatalf("save clear: %v", err)
	}
	got, gotLock, err = store.LoadActiveTrade(ctx)
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if got != nil || gotLock.Held {
		t.Errorf("cleared state came back: %+v %+v", got, gotLock)
	}
}

func TestLoadActiveTradeMissingFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	pos, lock, err := store.LoadActiveTrade(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pos != nil || lock.Held {
		t.Errorf("expected empty state, got %+v %+v", pos, lock)
	}
}

func TestCooldownRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	ctx := context.Background()

	expiries := map[string]time.Time{
		"BTCUSDT": time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		"ETHUSDT": time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.SaveCooldowns(ctx, expiries); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.LoadCooldowns(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || !got["BTCUSDT"].Equal(expiries["BTCUSDT"]) {
		t.Errorf("cooldowns round trip mismatch: %+v", got)
	}
}
