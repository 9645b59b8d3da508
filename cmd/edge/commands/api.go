package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/api"
	"github.com/wonny/earningsedge/internal/api/handlers"
	"github.com/wonny/earningsedge/internal/backtest"
	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/env"
	"github.com/wonny/earningsedge/internal/policy"
	"github.com/wonny/earningsedge/internal/s1_universe"
	"github.com/wonny/earningsedge/pkg/metrics"
	"github.com/wonny/earningsedge/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  GET  /api/runs                        - run 목록
  GET  /api/runs/{run}/metrics          - 정책별 요약 (없으면 curves에서 재계산)
  GET  /api/runs/{run}/curves/{policy}  - 에피소드 곡선
  GET  /api/runs/{run}/meta             - run_meta.json
  POST /api/simulate                    - 온디맨드 에피소드
  GET  /api/ws/episode                  - 스텝 단위 WebSocket 스트림

Example:
  go run ./cmd/edge api
  go run ./cmd/edge api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}
	if apiPort != "" {
		a.cfg.Port = apiPort
	}
	log := a.log

	redisClient, err := redis.New(a.cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, cacheNamespace)

	universe, err := s1_universe.LoadUniverse(a.experiment.Paths.Universe)
	if errors.Is(err, contracts.ErrMissingArtifact) {
		log.WithField("path", a.experiment.Paths.Universe).Warn("Universe file missing, simulating over every panel symbol")
		universe, err = nil, nil
	}
	if err != nil {
		return err
	}

	registry := policy.NewRegistry()
	if model, err := policy.LoadLinear(a.experiment.ModelPath()); err == nil {
		registry.Register(policy.NewLearned(policy.LearnedName, model))
	} else {
		log.WithError(err).Warn("Learned policy not available on /api/simulate")
	}

	var recorder backtest.Metrics
	if a.cfg.MetricsEnabled {
		recorder = metrics.New()
	}

	h := api.Handlers{
		Runs: handlers.NewRunsHandler(a.cfg.RunsDir, cache, log),
		Simulate: handlers.NewSimulateHandler(handlers.SimulateDeps{
			Panels:    env.NewPanelCache(nil),
			PanelPath: a.experiment.Paths.Panel,
			Universe:  universe,
			Defaults:  a.experiment.EnvConfig(),
			Registry:  registry,
			Metrics:   recorder,
			Cache:     cache,
			Logger:    log,
		}),
	}

	var shared *redis.RateLimiter
	if redisClient.Enabled() {
		window := redis.SimulateWindow
		if a.cfg.SimulateBurst > 0 {
			window.Limit = a.cfg.SimulateBurst
		}
		shared = redis.NewRateLimiter(redisClient, cacheNamespace, window)
	}
	router := api.NewRouter(h, api.RouterOptions{
		MetricsEnabled: a.cfg.MetricsEnabled,
		Limiter:        api.NewLimiter(a.cfg.SimulateRPS, a.cfg.SimulateBurst, shared, log),
		Redis:          redisClient,
	}, log)

	server := api.New(a.cfg, log, router)

	fmt.Fprintf(report, "\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Fprintln(report, "Press Ctrl+C to stop")

	if err := server.Run(cmd.Context()); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}
