package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// Cycle events
	EventTypeCycleStarted   EventType = "cycle.started"
	EventTypeCycleAborted   EventType = "cycle.aborted"
	EventTypeCycleCompleted EventType = "cycle.completed"
	EventTypeCycleAbandoned EventType = "cycle.abandoned"
	EventTypePassCompleted  EventType = "pass.completed"

	// Account events
	EventTypeAccountSkipped   EventType = "account.skipped"
	EventTypeAccountFailed    EventType = "account.failed"
	EventTypeAccountProcessed EventType = "account.processed"

	// Session events
	EventTypeSessionOpened EventType = "session.opened"
	EventTypeSessionClosed EventType = "session.closed"

	// Game events
	EventTypeGameCompleted EventType = "game.completed"

	// Schedule events
	EventTypeScheduleArmed EventType = "schedule.armed"

	// Error events
	EventTypeError EventType = "error"
)

// AllEventTypes lists every event type the system emits
var AllEventTypes = []EventType{
	EventTypeCycleStarted,
	EventTypeCycleAborted,
	EventTypeCycleCompleted,
	EventTypeCycleAbandoned,
	EventTypePassCompleted,
	EventTypeAccountSkipped,
	EventTypeAccountFailed,
	EventTypeAccountProcessed,
	EventTypeSessionOpened,
	EventTypeSessionClosed,
	EventTypeGameCompleted,
	EventTypeScheduleArmed,
	EventTypeError,
}

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "orchestrator", "scheduler")
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// SubscribeAll registers a handler for every event type
	SubscribeAll(handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish sends an event to all subscribers (blocking)
	Publish(event Event)

	// PublishAsync sends an event asynchronously (non-blocking)
	PublishAsync(event Event)

	// Stop stops the event bus and drains remaining events
	Stop()
}

// Helper functions to create common events

// NewCycleStartedEvent creates a cycle started event
func NewCycleStartedEvent(cycleID string, accounts, active int) Event {
	return Event{
		Type:      EventTypeCycleStarted,
		Source:    "orchestrator",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"cycle_id":        cycleID,
			"accounts":        accounts,
			"active_accounts": active,
		},
	}
}

// NewCycleAbortedEvent creates an event for a cycle attempt aborted by a precondition
func NewCycleAbortedEvent(cycleID string, err error) Event {
	return Event{
		Type:      EventTypeCycleAborted,
		Source:    "orchestrator",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"cycle_id": cycleID,
			"error":    errString(err),
		},
	}
}

// NewCycleFinishedEvent creates a completed or abandoned cycle event
func NewCycleFinishedEvent(cycleID string, completed bool, passes, processed, active int, duration time.Duration) Event {
	eventType := EventTypeCycleCompleted
	if !completed {
		eventType = EventTypeCycleAbandoned
	}
	return Event{
		Type:      eventType,
		Source:    "orchestrator",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"cycle_id":        cycleID,
			"passes":          passes,
			"processed":       processed,
			"active_accounts": active,
			"duration_ms":     duration.Milliseconds(),
		},
	}
}

// NewPassCompletedEvent creates a pass completed event
func NewPassCompletedEvent(cycleID string, pass, processed, active int) Event {
	return Event{
		Type:      EventTypePassCompleted,
		Source:    "orchestrator",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"cycle_id":        cycleID,
			"pass":            pass,
			"processed":       processed,
			"active_accounts": active,
		},
	}
}

// NewAccountEvent creates an account skipped / failed / processed event
func NewAccountEvent(eventType EventType, cycleID, accountID, reason string) Event {
	return Event{
		Type:      eventType,
		Source:    "orchestrator",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"cycle_id":   cycleID,
			"account_id": accountID,
			"reason":     reason,
		},
	}
}

// NewSessionEvent creates a session opened / closed event
func NewSessionEvent(eventType EventType, accountID string) Event {
	return Event{
		Type:      eventType,
		Source:    "session",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"account_id": accountID,
		},
	}
}

// NewGameCompletedEvent creates a game completed event
func NewGameCompletedEvent(accountID, game string, ok bool, resets int, duration time.Duration) Event {
	return Event{
		Type:      EventTypeGameCompleted,
		Source:    "games",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"account_id":  accountID,
			"game":        game,
			"ok":          ok,
			"resets":      resets,
			"duration_ms": duration.Milliseconds(),
		},
	}
}

// NewScheduleArmedEvent creates an event for a re-armed scheduler
func NewScheduleArmedEvent(fireAt time.Time) Event {
	return Event{
		Type:      EventTypeScheduleArmed,
		Source:    "scheduler",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"fire_at": fireAt.Format(time.RFC3339),
		},
	}
}

// NewErrorEvent creates a generic error event
func NewErrorEvent(source, component string, err error, metadata map[string]interface{}) Event {
	data := map[string]interface{}{
		"component": component,
		"error":     errString(err),
	}
	for k, v := range metadata {
		data[k] = v
	}

	return Event{
		Type:      EventTypeError,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
