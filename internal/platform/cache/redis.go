// Package cache wraps the Redis client used for read-through caching of
// small, hot lookups (user roles). The console runs fine without Redis; a
// nil *Client disables caching.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

// New creates a Redis client from a URL, or returns nil when the URL is
// empty (Redis not configured).
func New(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// GetString returns the cached value for key, with ok=false on miss or any
// Redis error. Callers always fall back to the primary store.
func (c *Client) GetString(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// SetString stores key=val with a TTL, ignoring errors: the cache is an
// optimization, never a source of truth.
func (c *Client) SetString(ctx context.Context, key, val string, ttl time.Duration) {
	if c == nil {
		return
	}
	_ = c.Set(ctx, key, val, ttl).Err()
}

func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.Ping(ctx).Err()
}
