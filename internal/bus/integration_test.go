package bus

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/taskpulse/taskpulse/internal/domain"
	redisclient "github.com/taskpulse/taskpulse/internal/redis"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	// Parse flags to check for -short
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	defer func() {
		if err := redContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}()
	os.Exit(m.Run())
}

func setupClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client, err := redisclient.NewClient(testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startBridge(t *testing.T, origin string, local LocalFanout) *Bridge {
	t.Helper()
	b := New(setupClient(t), local, origin, clockwork.NewRealClock())
	b.Start()
	t.Cleanup(b.Stop)

	require.Eventually(t, func() bool { return !b.Degraded() }, 5*time.Second, 50*time.Millisecond)
	return b
}

func countTask(f *fakeFanout) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.task)
}

func TestBridgeFansOutAcrossInstances(t *testing.T) {
	localA := &fakeFanout{}
	localB := &fakeFanout{}

	a := startBridge(t, "instance-a", localA)
	startBridge(t, "instance-b", localB)

	// Subscriptions are established asynchronously; give them a moment.
	time.Sleep(200 * time.Millisecond)

	env := testEnvelope("alice", "T1")
	require.NoError(t, a.PublishTask(context.Background(), env))

	require.Eventually(t, func() bool { return countTask(localB) == 1 }, 5*time.Second, 20*time.Millisecond)

	localB.mu.Lock()
	assert.Equal(t, "T1", localB.task[0].TaskID)
	assert.Equal(t, "alice", localB.task[0].UserID)
	localB.mu.Unlock()

	// The publishing instance must not re-emit its own message.
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, countTask(localA))
}

func TestBridgePresenceChannelIsSeparate(t *testing.T) {
	localA := &fakeFanout{}
	localB := &fakeFanout{}

	a := startBridge(t, "instance-a", localA)
	startBridge(t, "instance-b", localB)

	time.Sleep(200 * time.Millisecond)

	env := testEnvelope("alice", "T1")
	env.Type = domain.EventTyping
	require.NoError(t, a.PublishPresence(context.Background(), env))

	require.Eventually(t, func() bool {
		localB.mu.Lock()
		defer localB.mu.Unlock()
		return len(localB.presence) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Zero(t, countTask(localB), "presence events must not arrive on the task path")
}
