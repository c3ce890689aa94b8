// Package registry owns the set of live connections and their liveness state.
package registry

import (
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/metrics"
)

// CloseReasonReplaced is sent to a connection that is displaced by a newer
// registration under the same user ID.
const CloseReasonReplaced = "session_replaced"

// Registry is the authoritative map of userID to live connection.
// One connection per user: registering a user who already has a connection
// closes the previous one with a close frame instead of silently dropping
// its reachability.
type Registry struct {
	mu          sync.RWMutex
	clock       clockwork.Clock
	connections map[string]*domain.Connection
}

func New(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:       clock,
		connections: make(map[string]*domain.Connection),
	}
}

// Register adds a connection for userID. Any prior connection under the
// same user ID is closed with a session_replaced frame; its own teardown
// runs when its read loop observes the close.
func (r *Registry) Register(userID string, handle domain.Sender) *domain.Connection {
	r.mu.Lock()
	prior := r.connections[userID]
	conn := &domain.Connection{
		UserID:     userID,
		Handle:     handle,
		LastSeenAt: r.clock.Now(),
	}
	r.connections[userID] = conn
	count := len(r.connections)
	r.mu.Unlock()

	if prior != nil {
		slog.Info("Replacing existing connection", "user_id", userID)
		metrics.ConnectionsTotal.WithLabelValues("replaced").Inc()
		prior.Handle.Close(CloseReasonReplaced)
	}

	metrics.ConnectionsCurrent.Set(float64(count))
	return conn
}

// Get returns the connection for userID, or nil if not registered.
func (r *Registry) Get(userID string) *domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connections[userID]
}

// Remove deletes the connection for userID. No-op for absent IDs.
// It only removes the exact connection passed in, so the teardown of a
// replaced connection cannot evict its successor.
func (r *Registry) Remove(userID string, conn *domain.Connection) {
	r.mu.Lock()
	current, ok := r.connections[userID]
	if ok && (conn == nil || current == conn) {
		delete(r.connections, userID)
	}
	count := len(r.connections)
	r.mu.Unlock()

	metrics.ConnectionsCurrent.Set(float64(count))
}

// Touch updates the liveness timestamp for userID. No-op for absent IDs.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[userID]; ok {
		conn.LastSeenAt = r.clock.Now()
	}
}

// SetCurrentTask records which task the user's client currently has open.
func (r *Registry) SetCurrentTask(userID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[userID]; ok {
		conn.CurrentTaskID = taskID
	}
}

// All returns a snapshot of the registered connections. Safe to iterate
// while other goroutines mutate the registry.
func (r *Registry) All() []*domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*domain.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// UserIDs returns the currently connected user IDs, for operational tooling.
func (r *Registry) UserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
