package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered without conflicts
	// This test ensures no duplicate metric names

	metrics := []prometheus.Collector{
		ConnectionsCurrent,
		ConnectionsTotal,
		ConnectionsRejected,
		ConnectionDuration,
		HeartbeatFailures,

		RoomsCurrent,

		EnvelopesBroadcast,
		SlowClientsEvicted,
		MessageSendDuration,

		EnvelopesDispatched,
		MalformedEnvelopes,

		BusPublishesTotal,
		BusMessagesReceived,
		BusReconnectsTotal,
		BusDegraded,

		RedisOpsTotal,
		RedisOpDuration,
		RedisConnectionErrors,
		CircuitBreakerStateChanges,
		CircuitBreakerState,
	}

	for _, m := range metrics {
		assert.NotNil(t, m)
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(SlowClientsEvicted)
	SlowClientsEvicted.Inc()
	after := testutil.ToFloat64(SlowClientsEvicted)
	assert.Equal(t, before+1, after)
}

func TestVecLabels(t *testing.T) {
	BusPublishesTotal.WithLabelValues("tasks", "success").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(BusPublishesTotal.WithLabelValues("tasks", "success")), 1.0)
}
