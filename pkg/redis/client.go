// Package redis connects the client backing webhook event deduplication.
// No registration state lives here; losing the connection only disables
// dedup, it never blocks payment processing.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairdinkum/course-backend/config"
)

// Connect creates a client from configuration and verifies connectivity
// with a ping, so a bad address surfaces at startup rather than on the
// first webhook.
func Connect(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
