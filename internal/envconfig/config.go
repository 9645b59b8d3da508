package envconfig

import (
	"path/filepath"

	"github.com/wonny/earningsedge/internal/env"
	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/internal/s1_universe"
)

// Config는 실험 전체 설정
// ⭐ SSOT: 경로, 시뮬레이터, 유니버스, 분할, 평가 설정은 여기서만
type Config struct {
	Meta     Meta     `yaml:"meta" json:"meta"`
	Paths    Paths    `yaml:"paths" json:"paths"`
	Env      Env      `yaml:"env" json:"env"`
	Universe Universe `yaml:"universe" json:"universe"`
	Split    Split    `yaml:"split" json:"split"`
	Evaluate Evaluate `yaml:"evaluate" json:"evaluate"`
}

// Meta 메타 정보
type Meta struct {
	ExperimentID string `yaml:"experiment_id" json:"experiment_id" default:"earnings_edge" validate:"required"`
	Version      string `yaml:"version" json:"version" default:"v1"`
}

// Paths 입력/출력 파일 위치
type Paths struct {
	RawPrices   string `yaml:"raw_prices" json:"raw_prices" default:"data/raw/stock_prices_latest.csv" validate:"required"`
	RawEarnings string `yaml:"raw_earnings" json:"raw_earnings" default:"data/raw/earnings_latest.csv" validate:"required"`
	Panel       string `yaml:"panel" json:"panel" default:"data/processed/panel.csv" validate:"required"`
	Universe    string `yaml:"universe" json:"universe" default:"data/processed/universe_top200.csv" validate:"required"`
	RunDir      string `yaml:"run_dir" json:"run_dir" default:"runs/default" validate:"required"`
	Split       string `yaml:"split" json:"split"` // empty → <run_dir>/universe_split.json
	Model       string `yaml:"model" json:"model"` // empty → <run_dir>/ppo_linear.json
}

// Env S2: 에피소드 시뮬레이터
type Env struct {
	EpisodeLen         int     `yaml:"episode_len" json:"episode_len" default:"252" validate:"gte=1"`
	Warmup             int     `yaml:"warmup" json:"warmup" default:"30" validate:"gte=0"`
	TransactionCostBps float64 `yaml:"transaction_cost_bps" json:"transaction_cost_bps" default:"5" validate:"gte=0"`
	DDPenalty          float64 `yaml:"dd_penalty" json:"dd_penalty" default:"0.10" validate:"gte=0"`
	Seed               *int64  `yaml:"seed" json:"seed,omitempty"` // nil → time-seeded
}

// Universe S1: 유동성 순위
type Universe struct {
	TopK    int `yaml:"top_k" json:"top_k" default:"200" validate:"gte=1"`
	MinRows int `yaml:"min_rows" json:"min_rows" default:"252" validate:"gte=1"`
}

// Split train/test 분할
type Split struct {
	TestFraction float64 `yaml:"test_fraction" json:"test_fraction" default:"0.2" validate:"gt=0,lt=1"`
	Seed         int64   `yaml:"seed" json:"seed" default:"42"`
	MaxTrain     int     `yaml:"max_train" json:"max_train" validate:"gte=0"` // 0 = no cap
	MaxTest      int     `yaml:"max_test" json:"max_test" validate:"gte=0"`   // 0 = no cap
}

// Evaluate S3: 정책 평가
type Evaluate struct {
	Episodes       int      `yaml:"episodes" json:"episodes" default:"25" validate:"gte=1"`
	Policies       []string `yaml:"policies" json:"policies" default:"[\"ppo\",\"buy_hold\",\"flat\",\"avoid_earnings\"]" validate:"min=1,unique,dive,oneof=ppo buy_hold flat avoid_earnings"`
	UseTestSymbols bool     `yaml:"use_test_symbols" json:"use_test_symbols"`
	Workers        int      `yaml:"workers" json:"workers" validate:"gte=0"` // 0 = one per policy
}

// SplitPath resolves the split file location
func (c *Config) SplitPath() string {
	if c.Paths.Split != "" {
		return c.Paths.Split
	}
	return filepath.Join(c.Paths.RunDir, "universe_split.json")
}

// ModelPath resolves the learned policy artifact location
func (c *Config) ModelPath() string {
	if c.Paths.Model != "" {
		return c.Paths.Model
	}
	return filepath.Join(c.Paths.RunDir, "ppo_linear.json")
}

// EnvConfig converts the env section for the simulator
func (c *Config) EnvConfig() env.Config {
	cfg := env.Config{
		EpisodeLen:         c.Env.EpisodeLen,
		Warmup:             c.Env.Warmup,
		TransactionCostBps: c.Env.TransactionCostBps,
		DDPenalty:          c.Env.DDPenalty,
	}
	if c.Env.Seed != nil {
		cfg = cfg.WithSeed(*c.Env.Seed)
	}
	return cfg
}

// PanelConfig converts paths and the universe section for the panel builder
func (c *Config) PanelConfig() s0_data.BuilderConfig {
	return s0_data.BuilderConfig{
		PricesPath:   c.Paths.RawPrices,
		EarningsPath: c.Paths.RawEarnings,
		PanelPath:    c.Paths.Panel,
		MinRows:      c.Universe.MinRows,
	}
}

// UniverseConfig converts the universe section for the selector
func (c *Config) UniverseConfig() s1_universe.Config {
	return s1_universe.Config{TopK: c.Universe.TopK}
}

// SplitConfig converts the split section
func (c *Config) SplitConfig() s1_universe.SplitConfig {
	return s1_universe.SplitConfig{
		TestFraction: c.Split.TestFraction,
		Seed:         c.Split.Seed,
		MaxTrain:     c.Split.MaxTrain,
		MaxTest:      c.Split.MaxTest,
	}
}
