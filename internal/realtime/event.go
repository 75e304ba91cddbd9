// Package realtime provides a real-time event broadcasting system for
// parameter change notifications delivered to JSON-RPC/WebSocket clients.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a real-time event broadcast to subscribers.
type Event struct {
	// Type is the event type (parameter_changed, store_saved, store_restored, etc.)
	Type string `json:"type"`

	// ID is a unique event ID (UUID)
	ID string `json:"id"`

	// Data is the event payload (varies by event type)
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Source is the event source (engine, updater, ffi, ...)
	Source string `json:"source"`

	// Sequence is a sequence number for event ordering (monotonically increasing)
	Sequence int64 `json:"sequence"`
}

// EventType constants for parameter-store events.
const (
	EventTypeParameterChanged   = "parameter_changed"
	EventTypeStoreSaved         = "store_saved"
	EventTypeStoreRestored      = "store_restored"
	EventTypeFactoryReset       = "factory_reset"
	EventTypeSystemNotification = "system_notification"
)

// EventSource constants.
const (
	EventSourceEngine  = "engine"
	EventSourceUpdater = "updater"
	EventSourceFFI     = "ffi"
	EventSourceSystem  = "system"
)

// NewEvent creates a new Event with the given type, data, and source.
func NewEvent(eventType string, data map[string]interface{}, source string) *Event {
	return &Event{
		Type:      eventType,
		ID:        generateEventID(),
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Sequence:  0, // Will be set by EventBus
	}
}

// generateEventID generates a unique event ID (UUID).
func generateEventID() string {
	return uuid.New().String()
}
