package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/metrics"
	"github.com/taskpulse/taskpulse/internal/registry"
	"github.com/taskpulse/taskpulse/internal/rooms"
)

// CloseReasonSlow is sent to a client evicted because its send buffer
// stayed full during fan-out.
const CloseReasonSlow = "slow_client"

// Bus publishes envelopes to the cross-instance fan-out bus. Implemented
// by bus.Bridge; nil-safe via AttachBus so the broadcaster can run
// local-only (degraded mode, tests).
type Bus interface {
	PublishTask(ctx context.Context, env domain.Envelope) error
	PublishPresence(ctx context.Context, env domain.Envelope) error
}

// Broadcaster is the public surface application code calls to push an
// update into the system: local synchronous fan-out plus bus publication
// for other instances.
type Broadcaster struct {
	registry *registry.Registry
	rooms    *rooms.Manager
	clock    clockwork.Clock
	bus      Bus
}

func New(reg *registry.Registry, rm *rooms.Manager, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{registry: reg, rooms: rm, clock: clock}
}

// AttachBus wires the fan-out bridge in after construction. The bridge
// needs the broadcaster for its local re-emit path, so the two are
// connected here rather than in the constructor.
func (b *Broadcaster) AttachBus(bus Bus) {
	b.bus = bus
}

// BroadcastTaskUpdate delivers a task-content event to every connection
// except userID. If taskID is set, the envelope also targets that room;
// room members are deduplicated against the all-connections leg so each
// connection receives the envelope exactly once. The envelope is then
// published to the bus for other instances.
func (b *Broadcaster) BroadcastTaskUpdate(ctx context.Context, eventType domain.EventType, data map[string]any, userID, taskID string) {
	env := domain.NewEnvelope(eventType, data, b.clock.Now())
	env.UserID = userID
	env.TaskID = taskID

	b.LocalTask(env, userID)

	if b.bus == nil {
		return
	}
	if err := b.bus.PublishTask(ctx, env); err != nil {
		// Local delivery already happened; distributed fan-out is best-effort.
		slog.Error("Failed to publish task update to bus", "type", eventType, "task_id", taskID, "error", err)
	}
}

// BroadcastPresenceUpdate delivers an ephemeral presence event (typing,
// join/leave announcements) only to the room for taskID, excluding userID,
// and publishes it on the presence bus channel.
func (b *Broadcaster) BroadcastPresenceUpdate(ctx context.Context, eventType domain.EventType, data map[string]any, userID, taskID string) {
	env := domain.NewEnvelope(eventType, data, b.clock.Now())
	env.UserID = userID
	env.TaskID = taskID

	b.LocalPresence(env, userID)

	if b.bus == nil {
		return
	}
	if err := b.bus.PublishPresence(ctx, env); err != nil {
		slog.Error("Failed to publish presence update to bus", "type", eventType, "task_id", taskID, "error", err)
	}
}

// LocalTask runs the local fan-out legs of a task-content event without
// touching the bus. The bridge re-emits bus messages through here so
// remote events never echo back onto the bus.
func (b *Broadcaster) LocalTask(env domain.Envelope, excludeUserID string) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal broadcast envelope", "type", env.Type, "error", err)
		return
	}

	delivered := make(map[string]struct{})
	for _, conn := range b.registry.All() {
		if conn.UserID == excludeUserID {
			continue
		}
		b.deliver(conn.UserID, conn.Handle, data)
		delivered[conn.UserID] = struct{}{}
	}
	metrics.EnvelopesBroadcast.WithLabelValues("all").Inc()

	if env.TaskID == "" {
		return
	}
	for _, userID := range b.rooms.Members(env.TaskID) {
		if userID == excludeUserID {
			continue
		}
		if _, ok := delivered[userID]; ok {
			continue
		}
		if conn := b.registry.Get(userID); conn != nil {
			b.deliver(userID, conn.Handle, data)
		}
	}
	metrics.EnvelopesBroadcast.WithLabelValues("room").Inc()
}

// LocalPresence delivers an envelope to the members of its room only,
// excluding excludeUserID. A taskID with no room is a no-op.
func (b *Broadcaster) LocalPresence(env domain.Envelope, excludeUserID string) {
	if env.TaskID == "" {
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal broadcast envelope", "type", env.Type, "error", err)
		return
	}

	for _, userID := range b.rooms.Members(env.TaskID) {
		if userID == excludeUserID {
			continue
		}
		if conn := b.registry.Get(userID); conn != nil {
			b.deliver(userID, conn.Handle, data)
		}
	}
	metrics.EnvelopesBroadcast.WithLabelValues("room").Inc()
}

// SendTo delivers an envelope to a single connection, used for the welcome
// message on accept.
func (b *Broadcaster) SendTo(userID string, env domain.Envelope) {
	conn := b.registry.Get(userID)
	if conn == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal envelope", "type", env.Type, "error", err)
		return
	}
	b.deliver(userID, conn.Handle, data)
}

func (b *Broadcaster) deliver(userID string, handle domain.Sender, data []byte) {
	if handle.Send(data) {
		return
	}
	// Send buffer full: evict rather than block fan-out. Teardown runs
	// when the connection's read loop observes the close.
	slog.Warn("Disconnecting slow client", "user_id", userID)
	metrics.SlowClientsEvicted.Inc()
	handle.Close(CloseReasonSlow)
}
