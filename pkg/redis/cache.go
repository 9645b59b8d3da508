package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached artifact lifetimes
const (
	TTLShort = 1 * time.Minute // 시뮬레이션 결과
	TTLLong  = 1 * time.Hour   // run 요약
)

// Cache stores JSON documents under a namespaced key space
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a cache whose keys live under "<prefix>:cache:"
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(key string) string {
	return c.prefix + ":cache:" + key
}

// Get decodes the value under key into dest; found is false on a miss or
// when the cache is disabled
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (found bool, err error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key; ttl 0 uses the client default
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}
	if ttl == 0 {
		ttl = c.client.TTL()
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Redis().Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Fetch returns the cached value under key, or computes it with fn and
// caches the result. Cache errors never fail the call: an unreadable entry
// is recomputed and a failed write is dropped. Errors from fn are not cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var cached T
	if found, err := c.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	value, err := fn()
	if err != nil {
		return value, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}

// RunMetricsKey caches metrics.json of a run
func RunMetricsKey(run string) string {
	return fmt.Sprintf("run:%s:metrics", run)
}

// RunCurvesKey caches one policy's curves of a run
func RunCurvesKey(run, policy string) string {
	return fmt.Sprintf("run:%s:curves:%s", run, policy)
}

// SimulationKey caches a seeded on-demand episode; "*" stands for a sampled symbol
func SimulationKey(policy string, seed int64, symbol string, episodeLen int) string {
	if symbol == "" {
		symbol = "*"
	}
	return fmt.Sprintf("sim:%s:%d:%s:%d", policy, seed, symbol, episodeLen)
}
