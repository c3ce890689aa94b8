// Package redis wraps the go-redis client with the hooks (metrics, circuit
// breaker) the rest of the system expects to be installed.
package redis

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a go-redis client from a URL (e.g.,
// "redis://localhost:6379") with the metrics and circuit breaker hooks
// installed. It does not ping: the fan-out bridge owns connection
// establishment and its retry/degradation policy, so an unreachable bus
// must not fail process startup.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(&MetricsHook{})
	rdb.AddHook(NewCircuitBreakerHook())
	return rdb, nil
}
