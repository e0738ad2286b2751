package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBotStarted     EventType = "BOT_STARTED"
	EventBotStopped     EventType = "BOT_STOPPED"
	EventMarketUpdate   EventType = "MARKET_UPDATE"
	EventSignal         EventType = "ENTRY_SIGNAL"
	EventTradeOpened    EventType = "TRADE_OPENED"
	EventTradeUpdate    EventType = "TRADE_UPDATE"
	EventTradeClosed    EventType = "TRADE_CLOSED"
	EventPriceUpdate    EventType = "PRICE_UPDATE"
	EventCooldownUpdate EventType = "COOLDOWN_UPDATE"
	EventError          EventType = "ERROR"
	EventLog            EventType = "LOG"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in their
// own goroutines so a slow consumer never blocks the trading loop.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(symbol string, entryPrice, quantity, stopLoss, tpTrigger float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":              symbol,
			"entry_price":         entryPrice,
			"quantity":            quantity,
			"stop_loss":           stopLoss,
			"take_profit_trigger": tpTrigger,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol string, exitPrice, pnlPercent float64, reason string) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"exit_price":  exitPrice,
			"pnl_percent": pnlPercent,
			"reason":      reason,
		},
	})
}

// PublishTradeUpdate publishes a position monitoring update
func (eb *EventBus) PublishTradeUpdate(symbol string, price, pnlPercent, highestPrice float64, trailingStop *float64) {
	data := map[string]interface{}{
		"symbol":        symbol,
		"price":         price,
		"pnl_percent":   pnlPercent,
		"highest_price": highestPrice,
	}
	if trailingStop != nil {
		data["trailing_stop"] = *trailingStop
	}
	eb.Publish(Event{Type: EventTradeUpdate, Data: data})
}

// PublishSignal publishes an entry signal event
func (eb *EventBus) PublishSignal(symbol string, price, volumeRatio, priceChange float64) {
	eb.Publish(Event{
		Type: EventSignal,
		Data: map[string]interface{}{
			"symbol":       symbol,
			"price":        price,
			"volume_ratio": volumeRatio,
			"price_change": priceChange,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source string, err error) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		},
	})
}
