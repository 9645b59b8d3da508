package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/earningsedge/internal/api/handlers"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/redis"
)

// Handlers groups every route target of the API
type Handlers struct {
	Runs     *handlers.RunsHandler
	Simulate *handlers.SimulateHandler
}

// RouterOptions configures optional routes and limits
type RouterOptions struct {
	MetricsEnabled bool
	Limiter        *Limiter      // nil → simulation routes are not rate limited
	Redis          *redis.Client // nil → health does not report the cache
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, opts RouterOptions, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(opts.Redis)).Methods("GET")
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Evaluation artifacts
	api.HandleFunc("/runs", h.Runs.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{run}/metrics", h.Runs.GetMetrics).Methods("GET")
	api.HandleFunc("/runs/{run}/curves/{policy}", h.Runs.GetCurves).Methods("GET")
	api.HandleFunc("/runs/{run}/meta", h.Runs.GetMeta).Methods("GET")

	// On-demand simulation
	sim := api.NewRoute().Subrouter()
	sim.HandleFunc("/simulate", h.Simulate.Simulate).Methods("POST")
	sim.HandleFunc("/ws/episode", h.Simulate.StreamEpisode).Methods("GET")
	if opts.Limiter != nil {
		sim.Use(opts.Limiter.Middleware)
	}

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler reports liveness; an unreachable cache degrades but
// does not fail the API since every cache path falls back to computing
func healthCheckHandler(rc *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{
			"status":  "ok",
			"service": "earningsedge-api",
		}
		if rc != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			body["redis"] = rc.Status(ctx)
			cancel()
			if body["redis"] == redis.StatusDown {
				body["status"] = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}
