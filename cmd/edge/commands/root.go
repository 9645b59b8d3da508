package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/envconfig"
	"github.com/wonny/earningsedge/pkg/config"
	"github.com/wonny/earningsedge/pkg/logger"
)

var (
	// persistent flags shared by every subcommand
	configFile string
	verbose    bool
)

// rootCmd is "edge"; every stage is a subcommand
var rootCmd = &cobra.Command{
	Use:   "edge",
	Short: "Earnings-edge - 실적 발표 구간 노출 조절 시뮬레이터",
	Long: `Earnings-edge Unified CLI

일별 가격 + 실적 발표일 → 피처 패널 → 유동성 유니버스 → 에피소드 시뮬레이터 →
정책 평가 (ppo, buy_hold, flat, avoid_earnings).

Usage:
  go run ./cmd/edge [command]

Examples:
  go run ./cmd/edge panel build
  go run ./cmd/edge universe build
  go run ./cmd/edge universe split
  go run ./cmd/edge evaluate --episodes 25 --seed 42
  go run ./cmd/edge api`,
	SilenceUsage: true,
}

// Execute runs the CLI; main only maps the error to an exit code.
// Ctrl+C and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "experiment config YAML (default: $EDGE_CONFIG, else built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// cacheNamespace prefixes every Redis key written by the CLI, API and scheduler
const cacheNamespace = "edge"

// app bundles what every command loads first
type app struct {
	cfg        *config.Config
	experiment *envconfig.Config
	log        *logger.Logger
}

// loadRuntime reads process env config, the experiment YAML and builds the logger
func loadRuntime() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	path := configFile
	if path == "" {
		path = cfg.ExperimentFile
	}
	experiment, err := envconfig.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load experiment config: %w", err)
	}

	return &app{
		cfg:        cfg,
		experiment: experiment,
		log:        logger.New(cfg),
	}, nil
}
