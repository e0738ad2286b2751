package events

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFansOutToTypeSubscribers(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	var gotOpened, gotAll []Event

	bus.Subscribe(EventTradeOpened, func(e Event) {
		mu.Lock()
		gotOpened = append(gotOpened, e)
		mu.Unlock()
		wg.Done()
	})
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		gotAll = append(gotAll, e)
		mu.Unlock()
		wg.Done()
	})

	bus.PublishTradeOpened("BTCUSDT", 100, 0.5, 98, 105)
	waitOrFail(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if len(gotOpened) != 1 || len(gotAll) != 1 {
		t.Fatalf("fan-out counts: typed=%d all=%d, want 1/1", len(gotOpened), len(gotAll))
	}
	e := gotOpened[0]
	if e.Type != EventTradeOpened || e.Data["symbol"] != "BTCUSDT" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestTypedSubscriberIgnoresOtherEvents(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(1)

	var mu sync.Mutex
	var typed []Event

	bus.Subscribe(EventTradeClosed, func(e Event) {
		mu.Lock()
		typed = append(typed, e)
		mu.Unlock()
	})
	bus.SubscribeAll(func(Event) { wg.Done() })

	bus.PublishSignal("ETHUSDT", 2000, 2.6, 3.1)
	waitOrFail(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if len(typed) != 0 {
		t.Errorf("trade-closed subscriber saw %d signal events", len(typed))
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribers never ran")
	}
}
