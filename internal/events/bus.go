package events

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// subscription represents a single event subscription
type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// DefaultEventBus is the default implementation of EventBus.
// Events are queued and dispatched from a single goroutine, so handlers
// observe events of one publisher in publish order.
type DefaultEventBus struct {
	subscribers map[EventType][]subscription
	wildcard    []subscription
	mu          sync.RWMutex

	eventQueue chan Event
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	nextSubID atomic.Int64
	dropped   atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *DefaultEventBus {
	bus := &DefaultEventBus{
		subscribers: make(map[EventType][]subscription),
		eventQueue:  make(chan Event, bufferSize),
		stopCh:      make(chan struct{}),
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for a specific event type
func (eb *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subID := SubscriptionID(eb.nextSubID.Add(1))
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{
		id:      subID,
		handler: handler,
	})

	return subID
}

// SubscribeAll registers a handler that receives every event type
func (eb *DefaultEventBus) SubscribeAll(handler EventHandler) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subID := SubscriptionID(eb.nextSubID.Add(1))
	eb.wildcard = append(eb.wildcard, subscription{id: subID, handler: handler})
	return subID
}

// Unsubscribe removes a subscription by ID
func (eb *DefaultEventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, sub := range eb.wildcard {
		if sub.id == id {
			eb.wildcard = append(eb.wildcard[:i], eb.wildcard[i+1:]...)
			return
		}
	}

	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish queues an event, blocking while the queue is full
func (eb *DefaultEventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-eb.stopCh:
		eb.dropped.Add(1)
		return
	default:
	}

	select {
	case eb.eventQueue <- event:
	case <-eb.stopCh:
		eb.dropped.Add(1)
	}
}

// PublishAsync sends an event asynchronously (non-blocking)
func (eb *DefaultEventBus) PublishAsync(event Event) {
	go eb.Publish(event)
}

// Stop stops the event bus and drains remaining events
func (eb *DefaultEventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.stopCh)
	})
	eb.wg.Wait()
}

// processEvents runs in a goroutine and dispatches events to handlers
func (eb *DefaultEventBus) processEvents() {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventQueue:
			eb.dispatch(event)

		case <-eb.stopCh:
			for {
				select {
				case event := <-eb.eventQueue:
					eb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

// dispatch sends an event to all registered handlers in subscription order
func (eb *DefaultEventBus) dispatch(event Event) {
	eb.mu.RLock()
	subs := eb.subscribers[event.Type]
	handlers := make([]EventHandler, 0, len(subs)+len(eb.wildcard))
	for _, sub := range subs {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range eb.wildcard {
		handlers = append(handlers, sub.handler)
	}
	eb.mu.RUnlock()

	for _, handler := range handlers {
		eb.safeHandlerCall(handler, event)
	}
}

// safeHandlerCall calls a handler with panic recovery
func (eb *DefaultEventBus) safeHandlerCall(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[EventBus] Handler panic for event %v: %v\n", event.Type, r)
		}
	}()

	handler(event)
}

// GetSubscriberCount returns the number of subscribers for an event type
func (eb *DefaultEventBus) GetSubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	return len(eb.subscribers[eventType]) + len(eb.wildcard)
}

// GetQueueSize returns the current number of events in the queue
func (eb *DefaultEventBus) GetQueueSize() int {
	return len(eb.eventQueue)
}

// Dropped returns how many events were published after Stop
func (eb *DefaultEventBus) Dropped() int64 {
	return eb.dropped.Load()
}
