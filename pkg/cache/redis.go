package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Client wraps redis.Client with the configured key prefix
type Client struct {
	*redis.Client
	prefix string
	logger *logger.Logger
}

// New connects to Redis and verifies the connection with a PING
func New(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis")

	return Wrap(rdb, cfg.KeyPrefix, log), nil
}

// Wrap adapts an existing go-redis client
func Wrap(rdb *redis.Client, prefix string, log *logger.Logger) *Client {
	return &Client{Client: rdb, prefix: prefix, logger: log}
}

// Key namespaces name under the configured prefix
func (c *Client) Key(name string) string {
	return c.prefix + name
}

// Health returns the health status of Redis
func (c *Client) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"status": "up",
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	if err := c.Client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	c.logger.Info().Msg("redis connection closed")
	return nil
}
