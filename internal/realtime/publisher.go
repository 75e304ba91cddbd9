// Package realtime provides a real-time event broadcasting system for
// parameter change notifications delivered to JSON-RPC/WebSocket clients.
package realtime

import (
	"log/slog"

	"github.com/paramstore/paramstore/internal/pvalue"
)

// EventPublisher publishes events to EventBus from various sources.
type EventPublisher struct {
	eventBus *DefaultEventBus
	logger   *slog.Logger
	metrics  *RealtimeMetrics
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(eventBus *DefaultEventBus, logger *slog.Logger, metrics *RealtimeMetrics) *EventPublisher {
	return &EventPublisher{
		eventBus: eventBus,
		logger:   logger.With("component", "event_publisher"),
		metrics:  metrics,
	}
}

// PublishParameterChanged publishes a parameter-changed event, bridging the
// parameter engine's per-id callback into a fan-out notification for every
// connected front-end subscriber regardless of which parameter they watch;
// filtering by interest happens at the subscriber (see ws.go).
func (p *EventPublisher) PublishParameterChanged(id uint32, name string, value pvalue.Value) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"id":    id,
		"name":  name,
		"value": value.String(),
	}

	event := NewEvent(EventTypeParameterChanged, data, EventSourceEngine)
	return p.eventBus.Publish(*event)
}

// PublishStoreSaved publishes a store-saved event.
func (p *EventPublisher) PublishStoreSaved() error {
	if p.eventBus == nil {
		return nil
	}
	event := NewEvent(EventTypeStoreSaved, map[string]interface{}{"status": "saved"}, EventSourceEngine)
	return p.eventBus.Publish(*event)
}

// PublishStoreRestored publishes a restore (load) event.
func (p *EventPublisher) PublishStoreRestored() error {
	if p.eventBus == nil {
		return nil
	}
	event := NewEvent(EventTypeStoreRestored, map[string]interface{}{"status": "restored"}, EventSourceEngine)
	return p.eventBus.Publish(*event)
}

// PublishFactoryReset publishes a factory-reset event.
func (p *EventPublisher) PublishFactoryReset() error {
	if p.eventBus == nil {
		return nil
	}
	event := NewEvent(EventTypeFactoryReset, map[string]interface{}{"status": "reset done"}, EventSourceEngine)
	return p.eventBus.Publish(*event)
}

// PublishSystemNotification publishes a system notification event.
func (p *EventPublisher) PublishSystemNotification(level string, message string) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"level":   level, // info, warning, error
		"message": message,
	}

	event := NewEvent(EventTypeSystemNotification, data, EventSourceSystem)
	return p.eventBus.Publish(*event)
}
