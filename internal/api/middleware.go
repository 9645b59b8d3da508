package api

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/earningsedge/internal/api/handlers"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/redis"
)

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack keeps websocket upgrades working behind the logger
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// loggingMiddleware logs one Debug line per request with the final status
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"req":     r.Method + " " + r.URL.Path,
				"status":  rec.status,
				"elapsed": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware turns a handler panic into a logged 500
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"panic": fmt.Sprint(err),
						"req":   r.Method + " " + r.URL.Path,
					}).Error("Handler panicked")

					handlers.WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Limiter throttles simulation requests: a token bucket per process plus an
// optional Redis sliding window shared by every API instance
type Limiter struct {
	local  *rate.Limiter
	shared *redis.RateLimiter
	logger *logger.Logger
}

// NewLimiter creates a limiter allowing rps requests per second with burst.
// shared may be nil.
func NewLimiter(rps float64, burst int, shared *redis.RateLimiter, log *logger.Logger) *Limiter {
	return &Limiter{
		local:  rate.NewLimiter(rate.Limit(rps), burst),
		shared: shared,
		logger: log,
	}
}

// Middleware rejects requests over either limit with 429
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.local.Allow() {
			tooMany(w, time.Second)
			return
		}

		if l.shared != nil {
			d, err := l.shared.Allow(r.Context(), clientAddr(r))
			if err != nil {
				// Redis trouble must not take the API down
				l.logger.WithError(err).Warn("Shared rate limit check failed")
			} else if !d.Allowed {
				tooMany(w, d.RetryAfter)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}

		next.ServeHTTP(w, r)
	})
}

// tooMany answers 429 with a whole-second Retry-After hint
func tooMany(w http.ResponseWriter, retry time.Duration) {
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	handlers.WriteError(w, http.StatusTooManyRequests, "Too many simulation requests")
}

// clientAddr keys the shared window by the first forwarded address, else the peer host
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
