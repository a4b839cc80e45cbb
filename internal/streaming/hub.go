package streaming

import "context"

// Event types published by view sessions and history watchers.
const (
	EventViewUpdated   = "view.updated"
	EventSessionClosed = "session.closed"
	EventFlowsUpdated  = "flows.updated"
)

// StreamEvent is a real-time update emitted by a view session or a unit board.
type StreamEvent struct {
	SessionID  string `json:"session_id,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	UnitID     string `json:"unit_id,omitempty"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	UnitID     string   `json:"unit_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time view updates.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
