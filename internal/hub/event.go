package hub

import "time"

type EventType string

const (
	EventStarted      EventType = "agent:started"
	EventProgress     EventType = "agent:progress"
	EventLog          EventType = "agent:log"
	EventStatusChange EventType = "agent:status_change"
	EventCompleted    EventType = "agent:completed"
	EventError        EventType = "agent:error"
)

// Event is the envelope pushed to live connections. UserID addresses the
// event and is not part of the wire format.
type Event struct {
	Type        EventType      `json:"type"`
	ExecutionID string         `json:"executionId"`
	TaskID      int64          `json:"taskId"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	UserID      string         `json:"-"`
}
