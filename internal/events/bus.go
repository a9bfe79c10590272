package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventGateDecision    EventType = "GATE_DECISION"
	EventCircuitTripped  EventType = "CIRCUIT_TRIPPED"
	EventCircuitReset    EventType = "CIRCUIT_RESET"
	EventOrderSubmitted  EventType = "ORDER_SUBMITTED"
	EventOrderFilled     EventType = "ORDER_FILLED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventEngineState     EventType = "ENGINE_STATE_CHANGED"
	EventSymbolSkipped   EventType = "SYMBOL_SKIPPED"
	EventCycleCompleted  EventType = "CYCLE_COMPLETED"
	EventConfigUpdated   EventType = "CONFIG_UPDATED"
	EventError           EventType = "ERROR"
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
	allSubs     []Subscriber // Subscribers to all events
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

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(signalID, symbol, direction, source string, confidence, rr float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"signal_id":  signalID,
			"symbol":     symbol,
			"direction":  direction,
			"source":     source,
			"confidence": confidence,
			"rr_ratio":   rr,
		},
	})
}

// PublishGateDecision publishes an admission gate decision
func (eb *EventBus) PublishGateDecision(decisionID, signalID, symbol string, approved bool, reason string, adjustedSize float64) {
	eb.Publish(Event{
		Type: EventGateDecision,
		Data: map[string]interface{}{
			"decision_id":   decisionID,
			"signal_id":     signalID,
			"symbol":        symbol,
			"approved":      approved,
			"reason":        reason,
			"adjusted_size": adjustedSize,
		},
	})
}

// PublishCircuitTripped publishes a circuit trip
func (eb *EventBus) PublishCircuitTripped(reason string, drawdown, dailyPnL float64, consecutiveLosses int) {
	eb.Publish(Event{
		Type: EventCircuitTripped,
		Data: map[string]interface{}{
			"reason":             reason,
			"drawdown_from_peak": drawdown,
			"daily_pnl":          dailyPnL,
			"consecutive_losses": consecutiveLosses,
		},
	})
}

// PublishCircuitReset publishes a circuit reset
func (eb *EventBus) PublishCircuitReset(trigger string) {
	eb.Publish(Event{
		Type: EventCircuitReset,
		Data: map[string]interface{}{
			"trigger": trigger,
		},
	})
}

// PublishOrderSubmitted publishes an order submitted event
func (eb *EventBus) PublishOrderSubmitted(orderID, symbol, side string, price, quantity float64, dryRun bool) {
	eb.Publish(Event{
		Type: EventOrderSubmitted,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"side":     side,
			"price":    price,
			"quantity": quantity,
			"dry_run":  dryRun,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol string, entryPrice, exitPrice, quantity, pnl float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"quantity":    quantity,
			"pnl":         pnl,
		},
	})
}

// PublishEngineState publishes an engine state transition
func (eb *EventBus) PublishEngineState(from, to string) {
	eb.Publish(Event{
		Type: EventEngineState,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishSymbolSkipped publishes a per-symbol cycle failure
func (eb *EventBus) PublishSymbolSkipped(symbol, reason string) {
	eb.Publish(Event{
		Type: EventSymbolSkipped,
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
		},
	})
}

// PublishCycleCompleted publishes cycle statistics
func (eb *EventBus) PublishCycleCompleted(cycle int64, symbols, signals, approved int, duration time.Duration) {
	eb.Publish(Event{
		Type: EventCycleCompleted,
		Data: map[string]interface{}{
			"cycle":       cycle,
			"symbols":     symbols,
			"signals":     signals,
			"approved":    approved,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
