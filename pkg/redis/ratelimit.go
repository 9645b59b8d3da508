package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, admits the call when under limit and
// reports the remaining budget and the ms until the oldest entry expires.
// KEYS[1] window key; ARGV now_ms, window_ms, limit, member
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, limit - count - 1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = window
if oldest[2] then
	wait = tonumber(oldest[2]) + window - now
end
return {0, 0, wait}
`)

// Window is a request budget: Limit calls per Window
type Window struct {
	Name   string // key segment, e.g. "simulate"
	Limit  int
	Window time.Duration
}

// SimulateWindow bounds on-demand simulations per client across API instances
var SimulateWindow = Window{Name: "simulate", Limit: 10, Window: time.Second}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// RateLimiter is a Redis sorted-set sliding window shared by every instance
// ⭐ SSOT: 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
	window Window
	now    func() time.Time
	seq    atomic.Uint64
}

// NewRateLimiter creates a limiter for one window under prefix
func NewRateLimiter(client *Client, prefix string, window Window) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, window: window, now: time.Now}
}

// Window returns the configured budget
func (r *RateLimiter) Window() Window {
	return r.window
}

func (r *RateLimiter) key(subject string) string {
	return fmt.Sprintf("%s:ratelimit:%s:%s", r.prefix, r.window.Name, subject)
}

// Allow records one call by subject (a client address) when the budget permits.
// A disabled client admits everything.
func (r *RateLimiter) Allow(ctx context.Context, subject string) (Decision, error) {
	if !r.client.Enabled() {
		return Decision{Allowed: true, Remaining: r.window.Limit}, nil
	}

	now := r.now().UnixMilli()
	// members must be unique within a millisecond
	member := fmt.Sprintf("%d-%d", now, r.seq.Add(1))

	res, err := slidingWindow.Run(ctx, r.client.Redis(), []string{r.key(subject)},
		now, r.window.Window.Milliseconds(), r.window.Limit, member).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", r.window.Name, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", r.window.Name, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
