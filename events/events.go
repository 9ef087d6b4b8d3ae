package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeSettingChanged EventType = "setting_changed"
	EventTypeSettingDeleted EventType = "setting_deleted"
	EventTypeTaskFired      EventType = "task_fired"
	EventTypeTaskMisfired   EventType = "task_misfired"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// SettingChangedEvent records a guild setting create or update.
type SettingChangedEvent struct {
	GuildID int64
	Key     string
	Value   string
}

func (e SettingChangedEvent) Type() EventType {
	return EventTypeSettingChanged
}

// SettingDeletedEvent records a guild setting removal.
type SettingDeletedEvent struct {
	GuildID int64
	Key     string
}

func (e SettingDeletedEvent) Type() EventType {
	return EventTypeSettingDeleted
}

// TaskFiredEvent records a scheduled task invocation and its outcome.
type TaskFiredEvent struct {
	TaskID   string
	Callable string
	FiredAt  time.Time
	Err      error
}

func (e TaskFiredEvent) Type() EventType {
	return EventTypeTaskFired
}

// TaskMisfiredEvent records a fire time skipped because the scheduler was
// down past the task's misfire grace window.
type TaskMisfiredEvent struct {
	TaskID    string
	Scheduled time.Time
	Overdue   time.Duration
}

func (e TaskMisfiredEvent) Type() EventType {
	return EventTypeTaskMisfired
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers. Handlers run
// asynchronously so an emitter is never blocked; a panicking handler is
// logged and does not take down the process.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}
