package risk

import (
	"math"
	"strings"
	"testing"
	"time"
)

func newState(e *Engine, entry float64, entryTime time.Time) *State {
	return &State{
		EntryPrice:        entry,
		EntryTime:         entryTime,
		StopLoss:          e.StopLossPrice(entry),
		TakeProfitTrigger: e.TakeProfitTriggerPrice(entry),
		HighestPrice:      entry,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEntryLevels(t *testing.T) {
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 1})

	if got := e.StopLossPrice(100); !almostEqual(got, 98) {
		t.Errorf("StopLossPrice(100) = %v, want 98", got)
	}
	if got := e.TakeProfitTriggerPrice(100); !almostEqual(got, 105) {
		t.Errorf("TakeProfitTriggerPrice(100) = %v, want 105", got)
	}
	if got := e.TrailingStopPrice(106); !almostEqual(got, 104.94) {
		t.Errorf("TrailingStopPrice(106) = %v, want 104.94", got)
	}
}

func TestStopLossExit(t *testing.T) {
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 1})
	now := time.Now()
	s := newState(e, 100, now)

	d := e.Evaluate(s, 99, now)
	if d.Exit {
		t.Fatalf("no exit expected at 99, got %+v", d)
	}
	d = e.Evaluate(s, 98, now)
	if !d.Exit {
		t.Fatal("expected stop loss exit at 98")
	}
	if s.Lifecycle() != StateActive {
		t.Errorf("lifecycle = %s, want ACTIVE", s.Lifecycle())
	}
}

func TestTrailingActivationAndExit(t *testing.T) {
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 1})
	now := time.Now()
	s := newState(e, 100, now)

	// 100 -> 106: trailing arms at the trigger crossing.
	d := e.Evaluate(s, 106, now)
	if d.Exit {
		t.Fatalf("unexpected exit at 106: %+v", d)
	}
	if !d.TrailingActivated || !s.TrailingActive {
		t.Fatal("trailing should have armed at 106")
	}
	if s.TrailingStop == nil || !almostEqual(*s.TrailingStop, 104.94) {
		t.Fatalf("trailing stop = %v, want 104.94", s.TrailingStop)
	}
	if s.Lifecycle() != StateTrailingActive {
		t.Errorf("lifecycle = %s, want TRAILING_ACTIVE", s.Lifecycle())
	}

	// 106 -> 104.9: below the trailing stop, exit with ~+4.9% PnL.
	d = e.Evaluate(s, 104.9, now)
	if !d.Exit {
		t.Fatal("expected trailing exit at 104.9")
	}
	if !almostEqual(s.PnLPercent, 4.9) {
		t.Errorf("pnl = %v, want 4.9", s.PnLPercent)
	}
}

func TestTrailingRatchetsUpward(t *testing.T) {
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 5})
	now := time.Now()
	s := newState(e, 100, now)

	if d := e.Evaluate(s, 112, now); d.Exit || !d.TrailingActivated {
		t.Fatalf("expected trailing armed without exit at 112, got %+v", d)
	}
	if !almostEqual(*s.TrailingStop, 106.4) {
		t.Fatalf("trailing stop = %v, want 106.4", *s.TrailingStop)
	}

	// A dip must not lower the stop.
	if d := e.Evaluate(s, 108, now); d.Exit {
		t.Fatalf("unexpected exit at 108: %+v", d)
	}
	if !almostEqual(*s.TrailingStop, 106.4) {
		t.Errorf("trailing stop moved down to %v", *s.TrailingStop)
	}

	// 104 is below 106.4: trailing exit, not stop loss.
	d := e.Evaluate(s, 104, now)
	if !d.Exit {
		t.Fatal("expected trailing exit at 104")
	}
}

func TestTrailingRecomputesOnNewHigh(t *testing.T) {
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 1})
	now := time.Now()
	s := newState(e, 100, now)

	e.Evaluate(s, 106, now)
	e.Evaluate(s, 110, now)
	if !almostEqual(*s.TrailingStop, 108.9) {
		t.Errorf("trailing stop = %v, want 108.9 after new high 110", *s.TrailingStop)
	}
	if !almostEqual(s.HighestPrice, 110) {
		t.Errorf("highest = %v, want 110", s.HighestPrice)
	}
}

func TestStopLossLiveWhileTrailing(t *testing.T) {
	// A gap straight through both levels must still exit; the trailing
	// check fires first because the crash price is under the armed stop.
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 1})
	now := time.Now()
	s := newState(e, 100, now)

	e.Evaluate(s, 106, now)
	d := e.Evaluate(s, 90, now)
	if !d.Exit {
		t.Fatal("expected exit on gap down to 90")
	}
}

func TestTimeExitPrecedence(t *testing.T) {
	e := NewEngine(Config{
		StopLossPercent:     2,
		TakeProfitPercent:   5,
		TrailingStopPercent: 1,
		TimeExitEnabled:     true,
		MaxTradeDuration:    4 * time.Hour,
	})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newState(e, 100, start)

	// Just before the deadline nothing fires.
	if d := e.Evaluate(s, 101, start.Add(4*time.Hour-time.Second)); d.Exit {
		t.Fatalf("unexpected exit before deadline: %+v", d)
	}

	// At the deadline the time exit wins even though the price would
	// also trip the stop loss.
	d := e.Evaluate(s, 97, start.Add(4*time.Hour))
	if !d.Exit {
		t.Fatal("expected time exit at deadline")
	}
	if !strings.HasPrefix(d.Reason, ReasonTimeExit) {
		t.Errorf("reason = %q, want time exit", d.Reason)
	}
}

func TestTimeExitDisabled(t *testing.T) {
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 1, MaxTradeDuration: time.Minute})
	start := time.Now()
	s := newState(e, 100, start)

	if d := e.Evaluate(s, 100, start.Add(48*time.Hour)); d.Exit {
		t.Fatalf("time exit fired while disabled: %+v", d)
	}
}

func TestActivationAndExitSameCycle(t *testing.T) {
	// Trigger crossing arms trailing with highest = current price; the
	// armed stop sits below the price, so no exit on that cycle.
	e := NewEngine(Config{StopLossPercent: 2, TakeProfitPercent: 5, TrailingStopPercent: 1})
	now := time.Now()
	s := newState(e, 100, now)

	d := e.Evaluate(s, 105, now)
	if d.Exit {
		t.Fatalf("exit on activation cycle: %+v", d)
	}
	if !d.TrailingActivated {
		t.Fatal("expected activation exactly at trigger price")
	}
}
