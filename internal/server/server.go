package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/taskpulse/taskpulse/internal/broadcast"
	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/dispatch"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/platform/correlation"
	"github.com/taskpulse/taskpulse/internal/registry"
	"github.com/taskpulse/taskpulse/internal/rooms"
)

// busHealth reports the state of the cross-instance fan-out bridge.
// Implemented by bus.Bridge; nil when running single-instance.
type busHealth interface {
	Degraded() bool
}

// Dependencies carries the wired components the server routes requests to.
type Dependencies struct {
	Clock       clockwork.Clock
	Registry    *registry.Registry
	Rooms       *rooms.Manager
	Broadcaster *broadcast.Broadcaster
	Dispatcher  *dispatch.Dispatcher
	Verifier    domain.TokenVerifier
	RedisClient *goredis.Client
	Bridge      busHealth
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	clock       clockwork.Clock
	registry    *registry.Registry
	rooms       *rooms.Manager
	broadcaster *broadcast.Broadcaster
	dispatcher  *dispatch.Dispatcher
	verifier    domain.TokenVerifier
	redisClient *goredis.Client
	bridge      busHealth
	limits      *ConnectionLimits
	startTime   time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware)

	srv := &Server{
		echo:        e,
		config:      cfg,
		clock:       deps.Clock,
		registry:    deps.Registry,
		rooms:       deps.Rooms,
		broadcaster: deps.Broadcaster,
		dispatcher:  deps.Dispatcher,
		verifier:    deps.Verifier,
		redisClient: deps.RedisClient,
		bridge:      deps.Bridge,
		limits: NewConnectionLimits(
			cfg.MaxConnections,
			cfg.MaxConnectionsPerIP,
			cfg.ConnectionRate,
			cfg.ConnectionBurst,
		),
		startTime: deps.Clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// correlationMiddleware tags every request context with a fresh
// correlation ID so log lines from one request can be grouped.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
