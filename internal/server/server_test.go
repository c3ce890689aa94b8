package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/broadcast"
	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/dispatch"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/registry"
	"github.com/taskpulse/taskpulse/internal/rooms"
)

const testToken = "valid-token"

type verifierFunc func(ctx context.Context, token string) error

func (f verifierFunc) Verify(ctx context.Context, token string) error {
	return f(ctx, token)
}

func acceptOnly(valid string) verifierFunc {
	return func(_ context.Context, token string) error {
		if strings.TrimSpace(token) == "" {
			return domain.ErrMissingToken
		}
		if token != valid {
			return domain.ErrInvalidToken
		}
		return nil
	}
}

type harness struct {
	server      *Server
	http        *httptest.Server
	registry    *registry.Registry
	rooms       *rooms.Manager
	broadcaster *broadcast.Broadcaster
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()

	cfg := &config.Config{
		AppEnv:              "test",
		Port:                "0",
		AuthIntrospectURL:   "http://auth.invalid",
		MaxConnections:      100,
		MaxConnectionsPerIP: 100,
		ConnectionRate:      1000,
		ConnectionBurst:     1000,
		ShutdownTimeout:     time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}

	clock := clockwork.NewRealClock()
	reg := registry.New(clock)
	rm := rooms.New()
	bc := broadcast.New(reg, rm, clock)
	d := dispatch.New(reg, rm, bc)

	srv := NewServer(cfg, Dependencies{
		Clock:       clock,
		Registry:    reg,
		Rooms:       rm,
		Broadcaster: bc,
		Dispatcher:  d,
		Verifier:    acceptOnly(testToken),
	})

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	return &harness{server: srv, http: ts, registry: reg, rooms: rm, broadcaster: bc}
}

func (h *harness) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws?" + query
}

func (h *harness) dial(userID, token string) (*websocket.Conn, *http.Response, error) {
	query := "userId=" + userID
	if token != "" {
		query += "&token=" + token
	}
	return websocket.DefaultDialer.Dial(h.wsURL(query), nil)
}

func (h *harness) mustDial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := h.dial(userID, testToken)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected envelope: %s", raw)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}
