package types

import "time"

// EventType names a push event sent to connected clients
type EventType string

const (
	EventMessage      EventType = "message"
	EventSession      EventType = "session"
	EventFocus        EventType = "focus"
	EventNotification EventType = "notification"
)

// Event is a push update for connected clients
type Event struct {
	Type         EventType     `json:"type"`
	SessionID    string        `json:"session_id,omitempty"`
	Message      *Message      `json:"message,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Time         time.Time     `json:"time"`
}
