package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskpulse/taskpulse/internal/platform/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

// handleReadiness always reports ready: local fan-out works without the
// bus, so a Redis outage degrades cross-instance delivery but must not
// pull the instance out of rotation. The bus state is exposed for
// operators instead.
func (s *Server) handleReadiness(c echo.Context) error {
	return c.JSON(200, map[string]string{
		"status": "ready",
		"bus":    s.busStatus(c.Request().Context()),
	})
}

func (s *Server) busStatus(ctx context.Context) string {
	if s.redisClient == nil {
		return "disabled"
	}
	if s.bridge != nil && s.bridge.Degraded() {
		return "degraded"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return "unreachable"
	}
	return "ok"
}

func (s *Server) handleConnections(c echo.Context) error {
	users := s.registry.UserIDs()
	return c.JSON(200, map[string]any{
		"connectedCount": len(users),
		"users":          users,
	})
}

func (s *Server) handleRoomMembers(c echo.Context) error {
	taskID := c.Param("taskId")
	members := s.rooms.Members(taskID)
	return c.JSON(200, map[string]any{
		"taskId":      taskID,
		"memberCount": len(members),
		"members":     members,
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
