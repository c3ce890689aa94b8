package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/taskpulse/taskpulse/internal/auth"
	"github.com/taskpulse/taskpulse/internal/broadcast"
	"github.com/taskpulse/taskpulse/internal/bus"
	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/dispatch"
	"github.com/taskpulse/taskpulse/internal/platform/logging"
	"github.com/taskpulse/taskpulse/internal/redis"
	"github.com/taskpulse/taskpulse/internal/registry"
	"github.com/taskpulse/taskpulse/internal/rooms"
	"github.com/taskpulse/taskpulse/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupRedis returns nil when no Redis URL is configured: the instance
// then runs single-node with local fan-out only.
func setupRedis(cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, running without cross-instance fan-out")
		return nil
	}
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(cfg *config.Config, srv *server.Server, bridge *bus.Bridge) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if bridge != nil {
			bridge.Stop()
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	redisClient := setupRedis(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	reg := registry.New(clock)
	rm := rooms.New()
	broadcaster := broadcast.New(reg, rm, clock)

	var bridge *bus.Bridge
	if redisClient != nil {
		bridge = bus.New(redisClient, broadcaster, uuid.NewString(), clock)
		broadcaster.AttachBus(bridge)
		bridge.Start()
	}

	dispatcher := dispatch.New(reg, rm, broadcaster)
	verifier := auth.NewIntrospectionClient(cfg.AuthIntrospectURL)

	srv := server.NewServer(cfg, server.Dependencies{
		Clock:       clock,
		Registry:    reg,
		Rooms:       rm,
		Broadcaster: broadcaster,
		Dispatcher:  dispatcher,
		Verifier:    verifier,
		RedisClient: redisClient,
		Bridge:      bridge,
	})

	done := runGracefulShutdown(cfg, srv, bridge)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
