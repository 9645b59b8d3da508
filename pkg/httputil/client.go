package httputil

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/earningsedge/pkg/logger"
)

// UserAgent is sent with every request
const UserAgent = "earningsedge/1 (+raw-table-fetch)"

// Client fetches raw tables over HTTP with retry, backoff and optional pacing
// ⭐ SSOT: 모든 외부 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	http    *http.Client
	logger  *logger.Logger
	retry   RetryPolicy
	limiter *rate.Limiter // nil → unpaced
}

// RetryPolicy controls attempts after the first one.
// MaxRetries 0 disables retrying.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithTimeout bounds each attempt, body transfer included
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetry sets the retry count and first backoff delay
func WithRetry(maxRetries int, initialDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxRetries = maxRetries
		c.retry.InitialDelay = initialDelay
	}
}

// WithoutRetry makes every request a single attempt
func WithoutRetry() Option {
	return func(c *Client) { c.retry.MaxRetries = 0 }
}

// WithRateLimit paces attempts to rps with the given burst; data vendors
// throttle free-tier keys hard
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// New creates a client: 5 minute timeout (raw tables are large), 3 retries
// starting at 1s and capped at 30s
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Nop()
	}
	c := &Client{
		http:   &http.Client{Timeout: 5 * time.Minute},
		logger: log.Module("httputil"),
		retry: RetryPolicy{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET. Retryable statuses (5xx, 429) are retried; the final
// response is returned as is, so callers still check StatusCode.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := c.logger.WithFields(map[string]interface{}{"method": req.Method, "url": req.URL.String()})
	start := time.Now()
	delay := c.retry.InitialDelay

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.http.Do(req)
		retryable := err != nil || IsRetryableStatus(resp.StatusCode)
		if !retryable || attempt >= c.retry.MaxRetries {
			if err != nil {
				log.WithError(err).WithField("attempts", attempt+1).Error("HTTP request failed")
				return nil, err
			}
			log.WithFields(map[string]interface{}{
				"status_code": resp.StatusCode,
				"attempts":    attempt + 1,
				"duration":    time.Since(start).String(),
			}).Debug("HTTP request completed")
			return resp, nil
		}

		wait := delay
		if resp != nil {
			if ra, ok := retryAfter(resp); ok {
				wait = ra
			}
			resp.Body.Close()
		}
		if wait > c.retry.MaxDelay {
			wait = c.retry.MaxDelay
		}
		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   wait.String(),
		}).Warn("Retrying HTTP request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

// retryAfter reads a delay-seconds Retry-After header
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// IsRetryableStatus reports whether a status is worth another attempt
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
