package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventJobUpdated fires when an authoritative job record changes
	// (backend completion webhook or sweep re-fetch). Payload: *models.JobUpdateEvent.
	EventJobUpdated EventType = "job_updated"

	// EventStageChanged fires when the reconciliation engine advances a
	// job's visual stage. Payload: *models.StageChangeEvent.
	EventStageChanged EventType = "stage_changed"

	// EventJobRemoved fires when a job record is deleted. Payload: job id string.
	EventJobRemoved EventType = "job_removed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
