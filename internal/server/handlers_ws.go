package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/taskpulse/taskpulse/internal/broadcast"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/metrics"
)

// inboundQueueSize bounds the per-connection inbound queue. The reader
// goroutine blocks when the queue is full, which pushes backpressure onto
// the TCP connection instead of buffering unboundedly in memory.
const inboundQueueSize = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin enforcement happens at the edge proxy
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	userID := c.QueryParam("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
	}

	token := bearerToken(c)
	if err := s.verifier.Verify(ctx, token); err != nil {
		return s.rejectAuth(c, userID, err)
	}

	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("Connection rejected by limiter", "user_id", userID, "ip", ip, "reason", reason)
		status := http.StatusTooManyRequests
		if reason == LimitReasonGlobal {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]string{"error": string(reason)})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.limits.Release(ip)
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	writer := broadcast.NewClientWriter(conn, s.clock)
	record := s.registry.Register(userID, writer)
	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
	startedAt := s.clock.Now()
	slog.Info("Connection accepted", "user_id", userID, "ip", ip)

	s.welcome(userID)

	// Read pump. A dedicated goroutine reads frames into a bounded queue;
	// this handler goroutine consumes it so dispatch for one connection
	// stays sequential.
	inbound := make(chan []byte, inboundQueueSize)
	go func() {
		defer close(inbound)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			inbound <- raw
		}
	}()

	for raw := range inbound {
		s.dispatcher.Handle(ctx, raw, userID)
	}

	s.teardown(ctx, userID, record, writer, ip)
	metrics.ConnectionDuration.Observe(s.clock.Since(startedAt).Seconds())

	return nil
}

// bearerToken extracts the credential from the token query parameter or,
// failing that, an Authorization Bearer header.
func bearerToken(c echo.Context) string {
	if token := c.QueryParam("token"); token != "" {
		return token
	}
	header := c.Request().Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func (s *Server) rejectAuth(c echo.Context, userID string, err error) error {
	metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
	switch {
	case errors.Is(err, domain.ErrMissingToken):
		metrics.ConnectionsRejected.WithLabelValues("missing_token").Inc()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token is required"})
	case errors.Is(err, domain.ErrInvalidToken):
		metrics.ConnectionsRejected.WithLabelValues("invalid_token").Inc()
		return c.JSON(http.StatusForbidden, map[string]string{"error": "token rejected"})
	default:
		metrics.ConnectionsRejected.WithLabelValues("verifier_error").Inc()
		slog.Error("Token verification failed", "user_id", userID, "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "verification unavailable"})
	}
}

// welcome confirms the registration to the new connection and announces it
// to everyone else on this instance.
func (s *Server) welcome(userID string) {
	env := domain.NewEnvelope(domain.EventUserJoined, map[string]any{
		"userId":         userID,
		"connectedCount": s.registry.Count(),
	}, s.clock.Now())
	env.UserID = userID

	s.broadcaster.SendTo(userID, env)
	s.broadcaster.LocalTask(env, userID)
}

// teardown runs when a connection's read pump ends: room memberships are
// released and announced before the registry entry disappears, so
// departure events still find the rooms they refer to.
func (s *Server) teardown(ctx context.Context, userID string, record *domain.Connection, writer *broadcast.ClientWriter, ip string) {
	defer s.limits.Release(ip)
	defer writer.Close("")

	// A replaced connection must not tear down state now owned by its
	// successor.
	if s.registry.Get(userID) != record {
		slog.Info("Skipping teardown for replaced connection", "user_id", userID)
		return
	}

	for _, taskID := range s.rooms.LeaveAll(userID) {
		s.broadcaster.BroadcastPresenceUpdate(ctx, domain.EventUserLeft, map[string]any{"userId": userID}, userID, taskID)
	}

	s.registry.Remove(userID, record)

	env := domain.NewEnvelope(domain.EventUserLeft, map[string]any{
		"userId":         userID,
		"connectedCount": s.registry.Count(),
	}, s.clock.Now())
	env.UserID = userID
	s.broadcaster.LocalTask(env, userID)

	slog.Info("Connection closed", "user_id", userID)
}
