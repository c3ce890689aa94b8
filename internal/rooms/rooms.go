// Package rooms owns dynamic group membership: which users are interested
// in which task. Rooms are created lazily on first join and destroyed the
// moment their member set becomes empty.
package rooms

import (
	"log/slog"
	"sync"

	"github.com/taskpulse/taskpulse/internal/metrics"
)

// Manager maps taskID to its member set. All operations are idempotent and
// safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func New() *Manager {
	return &Manager{rooms: make(map[string]map[string]struct{})}
}

// Join adds userID to the room for taskID, creating the room if absent.
func (m *Manager) Join(taskID, userID string) {
	m.mu.Lock()
	members, ok := m.rooms[taskID]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[taskID] = members
	}
	members[userID] = struct{}{}
	size := len(members)
	count := len(m.rooms)
	m.mu.Unlock()

	metrics.RoomsCurrent.Set(float64(count))
	slog.Debug("User joined room", "task_id", taskID, "user_id", userID, "members", size)
}

// Leave removes userID from the room for taskID, deleting the room if it
// becomes empty. No-op if the room or membership does not exist.
func (m *Manager) Leave(taskID, userID string) {
	m.mu.Lock()
	members, ok := m.rooms[taskID]
	if ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(m.rooms, taskID)
			slog.Debug("Room removed", "task_id", taskID)
		}
	}
	count := len(m.rooms)
	m.mu.Unlock()

	metrics.RoomsCurrent.Set(float64(count))
}

// LeaveAll removes userID from every room it belongs to and returns the
// affected task IDs so the caller can announce the departure per room.
func (m *Manager) LeaveAll(userID string) []string {
	m.mu.Lock()
	var affected []string
	for taskID, members := range m.rooms {
		if _, ok := members[userID]; !ok {
			continue
		}
		delete(members, userID)
		affected = append(affected, taskID)
		if len(members) == 0 {
			delete(m.rooms, taskID)
			slog.Debug("Room removed", "task_id", taskID)
		}
	}
	count := len(m.rooms)
	m.mu.Unlock()

	metrics.RoomsCurrent.Set(float64(count))
	return affected
}

// Members returns the member set of the room for taskID, empty if the room
// does not exist.
func (m *Manager) Members(taskID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := make([]string, 0, len(m.rooms[taskID]))
	for userID := range m.rooms[taskID] {
		members = append(members, userID)
	}
	return members
}

// Contains reports whether userID is a member of the room for taskID.
func (m *Manager) Contains(taskID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[taskID][userID]
	return ok
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
