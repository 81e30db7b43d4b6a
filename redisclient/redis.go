package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with the connectivity helpers the rest of
// this sidecar needs (the decision cache talks to *redis.Client directly;
// main.go uses this wrapper only as a fail-fast connectivity probe at
// startup).
type Client struct {
	c *redis.Client
}

// New creates a Redis client from a redis:// URL. Returns an error if the
// URL cannot be parsed.
func New(url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

// Raw exposes the underlying client for full API access. The decision
// cache's Redis backend builds its own client and does not use it.
func (r *Client) Raw() *redis.Client {
	return r.c
}

func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

func (r *Client) Close() error {
	return r.c.Close()
}
