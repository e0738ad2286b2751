package history

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func trade(id, symbol string, pnl float64, exit time.Time) *ClosedTrade {
	return &ClosedTrade{
		ID:          id,
		Symbol:      symbol,
		EntryPrice:  100,
		ExitPrice:   100 * (1 + pnl/100),
		EntryTime:   exit.Add(-30 * time.Minute),
		ExitTime:    exit,
		PnLPercent:  pnl,
		ExitReason:  "trailing stop hit",
		QuoteAmount: 50,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, tr := range []*ClosedTrade{
		trade("a", "BTCUSDT", 4.9, base),
		trade("b", "ETHUSDT", -2.0, base.Add(time.Hour)),
		trade("c", "SOLUSDT", 1.5, base.Add(2*time.Hour)),
	} {
		if err := store.Insert(ctx, tr); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	// Reopen from disk to prove persistence.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d trades, want 3", len(got))
	}
	// Newest first.
	if got[0].ID != "c" || got[1].ID != "b" || got[2].ID != "a" {
		t.Errorf("order = %s,%s,%s, want c,b,a", got[0].ID, got[1].ID, got[2].ID)
	}

	limited, err := reopened.List(ctx, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "c" || limited[1].ID != "b" {
		t.Errorf("limited list wrong: %+v", limited)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty history, got %d trades", len(got))
	}
}

func TestComputeStats(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []*ClosedTrade{
		trade("a", "BTCUSDT", 5, base),
		trade("b", "ETHUSDT", -2, base),
		trade("c", "SOLUSDT", 3, base),
		trade("d", "XRPUSDT", -1, base),
	}

	stats := ComputeStats(trades)
	if stats.TotalTrades != 4 || stats.WinningTrades != 2 || stats.LosingTrades != 2 {
		t.Errorf("counts wrong: %+v", stats)
	}
	if stats.WinRate != 50 {
		t.Errorf("win rate = %v, want 50", stats.WinRate)
	}
	if math.Abs(stats.TotalPnL-5) > 1e-9 {
		t.Errorf("total pnl = %v, want 5", stats.TotalPnL)
	}
	if math.Abs(stats.AveragePnL-1.25) > 1e-9 {
		t.Errorf("average pnl = %v, want 1.25", stats.AveragePnL)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.TotalTrades != 0 || stats.WinRate != 0 || stats.AveragePnL != 0 {
		t.Errorf("empty stats not zeroed: %+v", stats)
	}
}
