// Package core provides the shared infrastructure for the vepflow
// service: configuration, structured logging, the error taxonomy,
// exchange-id correlation, the Redis client wrapper and common HTTP
// middleware.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient wraps go-redis with connection validation and lifecycle
// management. All keyed-hash access used by the transaction store goes
// through the underlying client.
type RedisClient struct {
	client *redis.Client
	logger Logger
}

// RedisClientOptions configures the Redis client.
type RedisClientOptions struct {
	RedisURL string
	Logger   Logger
}

// NewRedisClient connects to Redis and verifies the connection with a
// bounded ping before returning.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", ErrConnectionFailed)
	}

	rc := &RedisClient{client: client, logger: opts.Logger}
	if rc.logger != nil {
		rc.logger.Info("Redis client connected", map[string]interface{}{
			"redis_url": opts.RedisURL,
		})
	}
	return rc, nil
}

// Client exposes the underlying go-redis client.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	err := r.client.Close()
	if err != nil && r.logger != nil {
		r.logger.Error("Failed to close Redis client", map[string]interface{}{
			"error": err,
		})
	}
	return err
}
