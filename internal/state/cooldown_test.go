package state

import (
	"context"
	"testing"
	"time"

	"breakout-trading-bot/internal/clock"

	"github.com/rs/zerolog"
)

func newTestRegistry(t *testing.T, d time.Duration) (*Registry, *clock.Mock, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewRegistry(store, clk, d, zerolog.Nop()), clk, store
}

func TestArmAndExpiry(t *testing.T) {
	r, clk, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	r.Arm(ctx, "BTCUSDT")
	if !r.IsActive("BTCUSDT") {
		t.Fatal("cooldown not active after arm")
	}
	if r.IsActive("ETHUSDT") {
		t.Fatal("unrelated symbol reported active")
	}

	clk.Advance(59 * time.Minute)
	if !r.IsActive("BTCUSDT") {
		t.Error("cooldown expired early")
	}
	if got := r.Remaining("BTCUSDT"); got != time.Minute {
		t.Errorf("remaining = %v, want 1m", got)
	}

	clk.Advance(time.Minute)
	if r.IsActive("BTCUSDT") {
		t.Error("cooldown still active at expiry instant")
	}
	if got := r.Remaining("BTCUSDT"); got != 0 {
		t.Errorf("remaining = %v, want 0", got)
	}
}

func TestSetDurationNotRetroactive(t *testing.T) {
	r, clk, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	r.Arm(ctx, "BTCUSDT")
	r.SetDuration(10 * time.Minute)
	r.Arm(ctx, "ETHUSDT")

	clk.Advance(30 * time.Minute)
	if !r.IsActive("BTCUSDT") {
		t.Error("existing cooldown shortened by SetDuration")
	}
	if r.IsActive("ETHUSDT") {
		t.Error("new cooldown ignored the shorter duration")
	}
}

func TestClearAll(t *testing.T) {
	r, _, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	r.Arm(ctx, "BTCUSDT")
	r.Arm(ctx, "ETHUSDT")
	r.ClearAll(ctx)

	if r.IsActive("BTCUSDT") || r.IsActive("ETHUSDT") {
		t.Error("cooldowns survived ClearAll")
	}
	if len(r.Active()) != 0 {
		t.Error("Active() not empty after ClearAll")
	}
}

func TestActiveSortedSnapshot(t *testing.T) {
	r, _, _ := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	r.Arm(ctx, "ETHUSDT")
	r.Arm(ctx, "BTCUSDT")

	active := r.Active()
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	if active[0].Symbol != "BTCUSDT" || active[1].Symbol != "ETHUSDT" {
		t.Errorf("snapshot not sorted: %v, %v", active[0].Symbol, active[1].Symbol)
	}
	if active[0].Remaining != 3600 {
		t.Errorf("remaining seconds = %v, want 3600", active[0].Remaining)
	}
}

func TestRestoreDropsExpired(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first := NewRegistry(store, clk, time.Hour, zerolog.Nop())
	first.Arm(ctx, "BTCUSDT")
	first.Arm(ctx, "ETHUSDT")

	// Restart 30 minutes later with a fresh registry on the same store,
	// then another that comes up after everything expired.
	clk.Advance(30 * time.Minute)
	second := NewRegistry(store, clk, time.Hour, zerolog.Nop())
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !second.IsActive("BTCUSDT") || !second.IsActive("ETHUSDT") {
		t.Error("cooldowns lost across restart")
	}

	clk.Advance(time.Hour)
	third := NewRegistry(store, clk, time.Hour, zerolog.Nop())
	if err := third.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(third.Active()) != 0 {
		t.Error("expired cooldowns restored")
	}
}
