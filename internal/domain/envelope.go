package domain

import (
	"time"
)

// EventType enumerates the envelope types exchanged over a connection or the bus.
type EventType string

const (
	EventTaskCreated   EventType = "task_created"
	EventTaskUpdated   EventType = "task_updated"
	EventTaskDeleted   EventType = "task_deleted"
	EventStatusChanged EventType = "status_changed"
	EventUserJoined    EventType = "user_joined"
	EventUserLeft      EventType = "user_left"
	EventTyping        EventType = "typing"
	EventPing          EventType = "ping"
	EventPong          EventType = "pong"
	EventJoinTask      EventType = "join_task"
	EventLeaveTask     EventType = "leave_task"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted, EventStatusChanged,
		EventUserJoined, EventUserLeft, EventTyping, EventPing, EventPong,
		EventJoinTask, EventLeaveTask:
		return true
	}
	return false
}

// Envelope is the structured message unit exchanged over a connection or the
// bus. Constructed fresh per event and never mutated afterwards.
type Envelope struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	UserID    string         `json:"userId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEnvelope builds an envelope with the given payload and timestamp.
// A nil data map is replaced with an empty one so the wire form is always
// an object, never null.
func NewEnvelope(typ EventType, data map[string]any, now time.Time) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		Type:      typ,
		Data:      data,
		Timestamp: now.UTC(),
	}
}
