package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
var (
	// ConnectionsCurrent tracks current registered WebSocket connections
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connections_current",
			Help: "Current number of registered WebSocket connections",
		},
	)

	// ConnectionsTotal tracks connection attempts by result
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_total",
			Help: "Total WebSocket connection attempts by result (accepted/rejected/replaced)",
		},
		[]string{"result"},
	)

	// ConnectionsRejected tracks rejected handshakes by reason
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "Total handshakes rejected by reason (missing_token/invalid_token/verifier_error/rate_limit/per_ip_limit/global_limit)",
		},
		[]string{"reason"},
	)

	// ConnectionDuration tracks how long connections stay open
	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	// HeartbeatFailures tracks ping envelopes that could not be sent
	HeartbeatFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_failures_total",
			Help: "Total heartbeat ping envelopes that failed to send",
		},
	)
)

// Room Metrics
var (
	// RoomsCurrent tracks the number of live rooms
	RoomsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_current",
			Help: "Current number of live task rooms",
		},
	)
)

// Broadcast Metrics
var (
	// EnvelopesBroadcast tracks envelopes fanned out locally by scope
	EnvelopesBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelopes_broadcast_total",
			Help: "Total envelopes fanned out locally by scope (all/room)",
		},
		[]string{"scope"},
	)

	// SlowClientsEvicted tracks clients disconnected for full send buffers
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slow_clients_evicted_total",
			Help: "Total slow WebSocket clients evicted due to full send buffer",
		},
	)

	// MessageSendDuration tracks WebSocket message send duration
	MessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)
)

// Dispatcher Metrics
var (
	// EnvelopesDispatched tracks inbound envelopes by type
	EnvelopesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelopes_dispatched_total",
			Help: "Total inbound envelopes routed by type",
		},
		[]string{"type"},
	)

	// MalformedEnvelopes tracks inbound messages that failed to parse
	MalformedEnvelopes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "malformed_envelopes_total",
			Help: "Total inbound messages dropped because they failed to parse",
		},
	)
)

// Bus Metrics
var (
	// BusPublishesTotal tracks bus publishes by channel and status
	BusPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_publishes_total",
			Help: "Total bus publishes by channel and status (success/error/degraded)",
		},
		[]string{"channel", "status"},
	)

	// BusMessagesReceived tracks bus messages received by channel
	BusMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_received_total",
			Help: "Total bus messages received by channel",
		},
		[]string{"channel"},
	)

	// BusReconnectsTotal tracks bus reconnection attempts
	BusReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_reconnects_total",
			Help: "Total bus reconnection attempts",
		},
	)

	// BusDegraded is 1 when the bridge gave up on the bus and broadcasts are local-only
	BusDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bus_degraded",
			Help: "1 if the fan-out bridge is in degraded local-only mode, 0 otherwise",
		},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
