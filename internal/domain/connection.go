package domain

import (
	"time"
)

// Sender is the capability the registry, dispatcher, and broadcaster need
// from a transport connection. Implementations sit in front of the actual
// socket; callers never see the transport library.
type Sender interface {
	// Send enqueues an already-encoded envelope for delivery. It never
	// blocks; it reports false when the connection's send buffer is full.
	Send(data []byte) bool

	// Close tears the connection down, sending a close frame with the
	// given reason when the transport supports one. Idempotent.
	Close(reason string)
}

// Connection is a live, registered connection. Owned exclusively by the
// connection registry; created on successful handshake and destroyed on
// close or error.
type Connection struct {
	UserID        string
	Handle        Sender
	LastSeenAt    time.Time
	CurrentTaskID string
}
