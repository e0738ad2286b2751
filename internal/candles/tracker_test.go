package candles

import (
	"errors"
	"testing"
	"time"

	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/clock"

	"github.com/rs/zerolog"
)

// stubGateway serves canned klines and counts fetches.
type stubGateway struct {
	binance.Gateway
	klines  []binance.Kline
	err     error
	fetches int
}

func (s *stubGateway) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.klines, nil
}

func hourMs(t time.Time) int64 {
	return t.UTC().Truncate(time.Hour).UnixMilli()
}

func pair(now time.Time, prevClose, prevVol, currClose, currVol float64) []binance.Kline {
	h := hourMs(now)
	return []binance.Kline{
		{OpenTime: h - 3600_000, Close: prevClose, Volume: prevVol},
		{OpenTime: h, Close: currClose, Volume: currVol},
	}
}

func TestRefreshCapturesBaselineAndLive(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 12, 0, 0, time.UTC))
	gw := &stubGateway{klines: pair(clk.Now(), 100, 1000, 103, 2600)}
	tr := NewTracker(gw, clk, zerolog.Nop())

	if err := tr.Refresh("BTCUSDT"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	b, ok := tr.Baseline("BTCUSDT")
	if !ok || b.Close != 100 || b.Volume != 1000 {
		t.Fatalf("baseline = %+v ok=%v", b, ok)
	}
	l, ok := tr.Live("BTCUSDT")
	if !ok || l.Price != 103 || l.Volume != 2600 {
		t.Fatalf("live = %+v ok=%v", l, ok)
	}
	if l.ElapsedMinutes != 12 {
		t.Errorf("elapsed = %d, want 12", l.ElapsedMinutes)
	}
}

func TestBaselineLockedForTheHour(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC))
	gw := &stubGateway{klines: pair(clk.Now(), 100, 1000, 101, 500)}
	tr := NewTracker(gw, clk, zerolog.Nop())

	if err := tr.Refresh("BTCUSDT"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Later in the same hour the feed reports a different previous
	// candle; the baseline must not move.
	clk.Advance(20 * time.Minute)
	gw.klines = pair(clk.Now(), 999, 9999, 102, 800)
	if err := tr.Refresh("BTCUSDT"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	b, _ := tr.Baseline("BTCUSDT")
	if b.Close != 100 {
		t.Errorf("baseline close = %v, want 100 (locked)", b.Close)
	}
	l, _ := tr.Live("BTCUSDT")
	if l.Price != 102 {
		t.Errorf("live price = %v, want 102 (refreshed)", l.Price)
	}
}

func TestBaselineSwapsOnHourBoundary(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 50, 0, 0, time.UTC))
	gw := &stubGateway{klines: pair(clk.Now(), 100, 1000, 104, 3000)}
	tr := NewTracker(gw, clk, zerolog.Nop())

	if err := tr.Refresh("BTCUSDT"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Cross into the next hour: the old live candle becomes baseline.
	clk.Set(time.Date(2026, 3, 1, 11, 1, 0, 0, time.UTC))
	gw.klines = pair(clk.Now(), 104, 3000, 104.5, 120)
	if err := tr.Refresh("BTCUSDT"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	b, _ := tr.Baseline("BTCUSDT")
	if b.Close != 104 || b.Volume != 3000 {
		t.Errorf("baseline = %+v, want close 104 volume 3000", b)
	}
	l, _ := tr.Live("BTCUSDT")
	if l.ElapsedMinutes != 1 {
		t.Errorf("elapsed = %d, want 1", l.ElapsedMinutes)
	}
}

func TestRefreshDebounce(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC))
	gw := &stubGateway{klines: pair(clk.Now(), 100, 1000, 101, 500)}
	tr := NewTracker(gw, clk, zerolog.Nop())

	for i := 0; i < 5; i++ {
		if err := tr.Refresh("BTCUSDT"); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		clk.Advance(2 * time.Second)
	}
	if gw.fetches != 1 {
		t.Errorf("fetches = %d, want 1 (debounced)", gw.fetches)
	}

	clk.Advance(10 * time.Second)
	if err := tr.Refresh("BTCUSDT"); err != nil {
		t.Fatalf("refresh after ttl: %v", err)
	}
	if gw.fetches != 2 {
		t.Errorf("fetches = %d, want 2", gw.fetches)
	}
}

func TestRefreshFailuresLeaveStateUntouched(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC))
	gw := &stubGateway{klines: pair(clk.Now(), 100, 1000, 101, 500)}
	tr := NewTracker(gw, clk, zerolog.Nop())

	if err := tr.Refresh("BTCUSDT"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	clk.Advance(time.Minute)

	// Gateway error.
	gw.err = errors.New("boom")
	if err := tr.Refresh("BTCUSDT"); err == nil {
		t.Fatal("expected error from failed fetch")
	}

	// Short response.
	gw.err = nil
	gw.klines = gw.klines[:1]
	clk.Advance(time.Minute)
	if err := tr.Refresh("BTCUSDT"); err == nil {
		t.Fatal("expected error from single-candle response")
	}

	b, _ := tr.Baseline("BTCUSDT")
	l, _ := tr.Live("BTCUSDT")
	if b.Close != 100 || l.Price != 101 {
		t.Errorf("state mutated on failure: baseline %+v live %+v", b, l)
	}
}

func TestRefreshRejectsStaleLiveCandle(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	// Candles from two hours ago: the current one is 150 minutes old.
	old := clk.Now().Add(-150 * time.Minute)
	gw := &stubGateway{klines: []binance.Kline{
		{OpenTime: hourMs(old) - 3600_000, Close: 99, Volume: 900},
		{OpenTime: hourMs(old), Close: 100, Volume: 1000},
	}}
	tr := NewTracker(gw, clk, zerolog.Nop())

	if err := tr.Refresh("BTCUSDT"); err == nil {
		t.Fatal("expected stale-candle rejection")
	}
	if _, ok := tr.Baseline("BTCUSDT"); ok {
		t.Error("baseline stored from stale data")
	}
	if _, ok := tr.Live("BTCUSDT"); ok {
		t.Error("live stored from stale data")
	}
}

func TestElapsedMinutesClampsClockSkew(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(2 * time.Minute).UnixMilli()
	if got := elapsedMinutes(now, future); got != 0 {
		t.Errorf("elapsed = %d, want 0 for future open time", got)
	}
}
