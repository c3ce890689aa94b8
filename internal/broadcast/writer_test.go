package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// wsPair upgrades a server-side connection, wraps it in a ClientWriter,
// and returns the client side for assertions.
func wsPair(t *testing.T, clock clockwork.Clock) (*ClientWriter, *ws.Conn) {
	t.Helper()

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	writerCh := make(chan *ClientWriter, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		writerCh <- NewClientWriter(conn, clock)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	writer := <-writerCh
	t.Cleanup(func() { writer.Close("test over") })
	return writer, client
}

func TestSendDeliversMessage(t *testing.T) {
	writer, client := wsPair(t, clockwork.NewRealClock())

	require.True(t, writer.Send([]byte(`{"type":"task_updated"}`)))

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"task_updated"}`, string(msg))
}

func TestHeartbeatSendsPingEnvelopes(t *testing.T) {
	// Fake clock anchored at wall time so write deadlines stay in the future.
	clock := clockwork.NewFakeClockAt(time.Now())
	writer, client := wsPair(t, clock)
	defer writer.Close("done")

	// Wait for the writer goroutine to arm its heartbeat ticker.
	clock.BlockUntil(1)

	readPing := func() domain.Envelope {
		t.Helper()
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	}

	// A connection open past two intervals receives at least two pings.
	clock.Advance(heartbeatInterval + time.Second)
	env := readPing()
	assert.Equal(t, domain.EventPing, env.Type)
	assert.NotNil(t, env.Data)

	clock.BlockUntil(1)
	clock.Advance(heartbeatInterval + time.Second)
	assert.Equal(t, domain.EventPing, readPing().Type)
}

func TestNoPingAfterClose(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	writer, client := wsPair(t, clock)

	clock.BlockUntil(1)
	writer.Close("bye")
	clock.Advance(2 * heartbeatInterval)

	// The only remaining frame is the close frame.
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, ws.IsCloseError(err, ws.CloseNormalClosure))
}

func TestCloseIsIdempotent(t *testing.T) {
	writer, _ := wsPair(t, clockwork.NewRealClock())
	writer.Close("first")
	writer.Close("second") // must not panic or block
}

func TestSendReportsFullBuffer(t *testing.T) {
	writer, _ := wsPair(t, clockwork.NewRealClock())

	// With the writer goroutine stopped nothing drains the buffer, so the
	// channel capacity is the exact number of accepted sends.
	writer.Close("stopped")
	for i := 0; i < messageBufferSize; i++ {
		assert.True(t, writer.Send([]byte(`{}`)))
	}
	assert.False(t, writer.Send([]byte(`{}`)))
}
