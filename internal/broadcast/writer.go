package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	heartbeatInterval = 30 * time.Second
	messageBufferSize = 16
)

// ClientWriter owns all writes to one WebSocket connection: fan-out
// messages from its buffered send channel and the periodic heartbeat ping
// envelope. It implements domain.Sender, so the rest of the system never
// touches the transport directly.
type ClientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewClientWriter(connection *websocket.Conn, clock clockwork.Clock) *ClientWriter {
	cw := &ClientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *ClientWriter) run() {
	ticker := cw.clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg, ok := <-cw.sendChannel:
			if !ok {
				return
			}
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.MessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			ping, err := json.Marshal(domain.NewEnvelope(domain.EventPing, nil, cw.clock.Now()))
			if err != nil {
				slog.Error("Failed to marshal ping envelope", "error", err)
				continue
			}
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, ping); err != nil {
				// Ping failed - client likely disconnected
				metrics.HeartbeatFailures.Inc()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// Send enqueues an encoded envelope. Non-blocking; reports false when the
// buffer is full, which the broadcaster treats as a slow client.
func (cw *ClientWriter) Send(data []byte) bool {
	select {
	case cw.sendChannel <- data:
		return true
	default:
		return false
	}
}

// Close sends a close frame with the given reason, stops the heartbeat
// ticker, and closes the connection. Idempotent.
func (cw *ClientWriter) Close(reason string) {
	cw.stopOnce.Do(func() {
		// Signal the run goroutine to exit first, then wait for it, so the
		// close frame never races a concurrent write.
		close(cw.doneChannel)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
}

func (cw *ClientWriter) updateWriteDeadline() {
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}
