package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// PingClient is the part of a Redis client the health check needs.
type PingClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// HealthCheck adapts a Redis client to health.Pinger.
type HealthCheck struct {
	client PingClient
}

func NewHealthCheck(client PingClient) HealthCheck {
	return HealthCheck{client: client}
}

func (h HealthCheck) PingContext(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}
