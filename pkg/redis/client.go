package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/earningsedge/pkg/config"
)

// Health values reported by Status
const (
	StatusDisabled = "disabled"
	StatusOK       = "ok"
	StatusDown     = "down"
)

const connectTimeout = 5 * time.Second

// Client is the optional shared cache behind run summaries, seeded
// simulations and the cross-instance simulate limit
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb *redis.Client // nil when disabled
	ttl time.Duration
}

// New connects when Redis is enabled in cfg. A disabled client turns every
// cache and limiter call into a no-op, so callers never branch on it.
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{ttl: cfg.Redis.TTL}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: connectTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection to %s failed: %w", rdb.Options().Addr, err)
	}
	return NewWithClient(rdb, cfg.Redis.TTL), nil
}

// NewWithClient wraps an existing connection; rdb nil yields a disabled client
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{rdb: rdb, ttl: ttl}
}

// Close closes the connection, if any
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Enabled reports whether calls reach Redis
func (c *Client) Enabled() bool {
	return c.rdb != nil
}

// TTL is the default expiry for cached artifacts
func (c *Client) TTL() time.Duration {
	return c.ttl
}

// Redis exposes the underlying client (scripts, pipelines)
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Status pings the server: StatusDisabled, StatusOK or StatusDown
func (c *Client) Status(ctx context.Context) string {
	if !c.Enabled() {
		return StatusDisabled
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return StatusDown
	}
	return StatusOK
}
