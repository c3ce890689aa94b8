// Package bus bridges local broadcasts to and from the shared Redis
// pub/sub bus so multiple server instances behave as one logical
// broadcaster.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/metrics"
	"github.com/taskpulse/taskpulse/internal/platform/retry"
)

const (
	// TaskChannel carries task-content updates; PresenceChannel carries
	// ephemeral presence/typing signals.
	TaskChannel     = "taskpulse:tasks"
	PresenceChannel = "taskpulse:presence"

	connectTimeout     = 2 * time.Second
	maxConnectAttempts = 10
	connectBackoffStep = 100 * time.Millisecond
	connectBackoffCap  = 3 * time.Second
)

// message is the bus wire form: the envelope plus the origin instance ID,
// used by subscribers to suppress their own publications (no echo loops).
type message struct {
	Origin   string          `json:"origin"`
	Envelope domain.Envelope `json:"envelope"`
}

// LocalFanout is the local re-emit path. Implemented by
// broadcast.Broadcaster; the bridge calls it for bus messages exactly as
// if the event originated locally, minus the bus publication.
type LocalFanout interface {
	LocalTask(env domain.Envelope, excludeUserID string)
	LocalPresence(env domain.Envelope, excludeUserID string)
}

// Bridge connects the local broadcast path to the Redis pub/sub bus.
//
// Connection lifecycle: Start tries to reach the bus with a capped linear
// backoff (min(attempt*100ms, 3s)); after maxConnectAttempts consecutive
// failures it gives up and the bridge runs degraded, meaning publishes are
// dropped and the server keeps operating with local-only broadcast. The
// next process restart re-attempts from a clean state.
type Bridge struct {
	rdb      *goredis.Client
	local    LocalFanout
	origin   string
	clock    clockwork.Clock
	ping     func(ctx context.Context) error
	degraded atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge. origin is this instance's unique ID, stamped on
// every published message so the subscriber can drop its own echoes.
func New(rdb *goredis.Client, local LocalFanout, origin string, clock clockwork.Clock) *Bridge {
	b := &Bridge{
		rdb:    rdb,
		local:  local,
		origin: origin,
		clock:  clock,
	}
	b.ping = func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
	return b
}

// Start launches the connect-and-subscribe loop in the background. It
// never blocks connection acceptance: callers proceed immediately and the
// bridge degrades on its own if the bus stays unreachable.
func (b *Bridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()
}

// Stop cancels the subscription loops and waits for them to exit.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// Degraded reports whether the bridge gave up on the bus and broadcasts
// are local-only.
func (b *Bridge) Degraded() bool {
	return b.degraded.Load()
}

// PublishTask publishes a task-content envelope on the task channel.
func (b *Bridge) PublishTask(ctx context.Context, env domain.Envelope) error {
	return b.publish(ctx, TaskChannel, env)
}

// PublishPresence publishes a presence envelope on the presence channel.
func (b *Bridge) PublishPresence(ctx context.Context, env domain.Envelope) error {
	return b.publish(ctx, PresenceChannel, env)
}

func (b *Bridge) publish(ctx context.Context, channel string, env domain.Envelope) error {
	if b.degraded.Load() {
		// Local delivery already happened; silently drop rather than spam
		// an error per broadcast while degraded.
		metrics.BusPublishesTotal.WithLabelValues(channel, "degraded").Inc()
		return nil
	}

	data, err := json.Marshal(message{Origin: b.origin, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal bus message: %w", err)
	}

	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		metrics.BusPublishesTotal.WithLabelValues(channel, "error").Inc()
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	metrics.BusPublishesTotal.WithLabelValues(channel, "success").Inc()
	return nil
}

func (b *Bridge) run(ctx context.Context) {
	if err := b.connect(ctx); err != nil {
		slog.Error("Giving up on bus, running with local-only broadcast",
			"attempts", maxConnectAttempts,
			"error", err,
		)
		b.degraded.Store(true)
		metrics.BusDegraded.Set(1)
		return
	}

	slog.Info("Connected to fan-out bus", "origin", b.origin)
	metrics.BusDegraded.Set(0)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.subscribe(ctx, TaskChannel)
	}()
	go func() {
		defer b.wg.Done()
		b.subscribe(ctx, PresenceChannel)
	}()
}

func (b *Bridge) connect(ctx context.Context) error {
	policy := retry.Policy{
		MaxAttempts: maxConnectAttempts,
		Backoff:     retry.LinearCapped(connectBackoffStep, connectBackoffCap),
		Clock:       b.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			metrics.BusReconnectsTotal.Inc()
			slog.Warn("Bus connection failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
		},
	}

	return retry.DoVoid(ctx, policy, nil, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return b.ping(pingCtx)
	})
}

func (b *Bridge) subscribe(ctx context.Context, channel string) {
	sub := b.rdb.Subscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(channel, []byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage re-emits a bus message into the local broadcast path.
// Messages originating from this instance are dropped: the local fan-out
// already ran when they were published.
func (b *Bridge) handleMessage(channel string, payload []byte) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("Dropping malformed bus message", "channel", channel, "error", err)
		return
	}

	if msg.Origin == b.origin {
		return
	}

	metrics.BusMessagesReceived.WithLabelValues(channel).Inc()

	switch channel {
	case TaskChannel:
		b.local.LocalTask(msg.Envelope, msg.Envelope.UserID)
	case PresenceChannel:
		b.local.LocalPresence(msg.Envelope, msg.Envelope.UserID)
	default:
		slog.Warn("Bus message on unknown channel", "channel", channel)
	}
}
