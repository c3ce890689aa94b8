// Package dispatch parses inbound envelopes and routes them to the
// component that owns the corresponding state change.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/metrics"
	"github.com/taskpulse/taskpulse/internal/registry"
	"github.com/taskpulse/taskpulse/internal/rooms"
)

// PresenceBroadcaster is the slice of the broadcast API the dispatcher
// needs: room-scoped announcements triggered by inbound envelopes.
type PresenceBroadcaster interface {
	BroadcastPresenceUpdate(ctx context.Context, eventType domain.EventType, data map[string]any, userID, taskID string)
}

// Dispatcher routes one user's inbound envelopes. Malformed input is
// logged and dropped; the connection is never torn down for it.
type Dispatcher struct {
	registry    *registry.Registry
	rooms       *rooms.Manager
	broadcaster PresenceBroadcaster
}

func New(reg *registry.Registry, rm *rooms.Manager, broadcaster PresenceBroadcaster) *Dispatcher {
	return &Dispatcher{registry: reg, rooms: rm, broadcaster: broadcaster}
}

// Handle parses raw and routes it on behalf of userID. The userID comes
// from the authenticated connection, never from the envelope: a client
// cannot act as somebody else by forging the userId field.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, userID string) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.MalformedEnvelopes.Inc()
		slog.Warn("Dropping malformed envelope", "user_id", userID, "error", err)
		return
	}

	metrics.EnvelopesDispatched.WithLabelValues(string(env.Type)).Inc()

	switch env.Type {
	case domain.EventPong:
		d.registry.Touch(userID)

	case domain.EventTyping:
		if env.TaskID == "" {
			slog.Warn("Typing envelope without taskId", "user_id", userID)
			return
		}
		d.broadcaster.BroadcastPresenceUpdate(ctx, domain.EventTyping, env.Data, userID, env.TaskID)

	case domain.EventJoinTask:
		if env.TaskID == "" {
			slog.Warn("join_task envelope without taskId", "user_id", userID)
			return
		}
		d.rooms.Join(env.TaskID, userID)
		d.registry.SetCurrentTask(userID, env.TaskID)
		d.broadcaster.BroadcastPresenceUpdate(ctx, domain.EventUserJoined, map[string]any{"userId": userID}, userID, env.TaskID)

	case domain.EventLeaveTask:
		if env.TaskID == "" {
			slog.Warn("leave_task envelope without taskId", "user_id", userID)
			return
		}
		d.rooms.Leave(env.TaskID, userID)
		if conn := d.registry.Get(userID); conn != nil && conn.CurrentTaskID == env.TaskID {
			d.registry.SetCurrentTask(userID, "")
		}
		d.broadcaster.BroadcastPresenceUpdate(ctx, domain.EventUserLeft, map[string]any{"userId": userID}, userID, env.TaskID)

	default:
		slog.Warn("Unknown envelope type", "type", env.Type, "user_id", userID)
	}
}
