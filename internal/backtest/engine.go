package backtest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/env"
	"github.com/wonny/earningsedge/internal/policy"
	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/stats"
)

// Metrics receives per-step and per-episode observations
type Metrics interface {
	RecordStep(policy string, reward float64)
	RecordEpisode(policy string, finalEquity, maxDrawdown float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordStep(string, float64)             {}
func (nopMetrics) RecordEpisode(string, float64, float64) {}
func (nopMetrics) RecordError(string)                     {}
func (nopMetrics) RecordLatency(string, float64)          {}

// Config holds evaluation configuration
type Config struct {
	Episodes int        // episodes per policy
	Env      env.Config // Seed drives every policy's environment
	Workers  int        // policies evaluated concurrently (0 → one per policy)
}

// PolicyResult is the outcome of one policy
type PolicyResult struct {
	Policy   string                    `json:"policy"`
	Episodes []contracts.EpisodeRecord `json:"episodes"`
	Summary  contracts.PolicySummary   `json:"summary"`
	Risk     RiskSummary               `json:"risk"`
}

// Result holds evaluation results, in policy order
type Result struct {
	Config   Config          `json:"-"`
	Policies []*PolicyResult `json:"policies"`
	Duration time.Duration   `json:"duration"`
}

// Get returns the result of the named policy
func (r *Result) Get(name string) (*PolicyResult, bool) {
	for _, p := range r.Policies {
		if p.Policy == name {
			return p, true
		}
	}
	return nil, false
}

// Engine drives simulator episodes with policies
// ⭐ SSOT: 정책 평가 실행은 여기서만
type Engine struct {
	panel    *s0_data.Panel
	universe *contracts.Universe
	metrics  Metrics
	logger   *logger.Logger
}

// NewEngine creates a new evaluation engine. universe and metrics may be nil.
func NewEngine(panel *s0_data.Panel, universe *contracts.Universe, metrics Metrics, log *logger.Logger) *Engine {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		panel:    panel,
		universe: universe,
		metrics:  metrics,
		logger:   log.Module("backtest"),
	}
}

// NewEnv builds an environment over the engine's panel and universe
func (e *Engine) NewEnv(cfg env.Config) (*env.TradingEnv, error) {
	return env.NewTradingEnv(e.panel, e.universe, cfg, e.logger)
}

// Run evaluates every policy. Each policy gets its own environment seeded
// identically, so with an explicit seed all policies see the same sequence of
// (symbol, start) episodes.
func (e *Engine) Run(ctx context.Context, config Config, policies []policy.Policy) (*Result, error) {
	if config.Episodes < 1 {
		return nil, fmt.Errorf("episodes must be >= 1, got %d", config.Episodes)
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("no policies to evaluate")
	}

	e.logger.WithFields(map[string]interface{}{
		"episodes": config.Episodes,
		"policies": len(policies),
	}).Info("Starting evaluation")

	start := time.Now()
	results := make([]*PolicyResult, len(policies))

	g, ctx := errgroup.WithContext(ctx)
	workers := config.Workers
	if workers <= 0 {
		workers = len(policies)
	}
	g.SetLimit(workers)

	for i, p := range policies {
		i, p := i, p
		g.Go(func() error {
			records, err := e.RunPolicy(ctx, config, p)
			if err != nil {
				e.metrics.RecordError("run_policy")
				return fmt.Errorf("policy %s: %w", p.Name(), err)
			}

			pr := &PolicyResult{
				Policy:   p.Name(),
				Episodes: records,
				Summary:  Summarize(records),
				Risk:     SummarizeRisk(records),
			}

			results[i] = pr

			e.logger.WithFields(map[string]interface{}{
				"policy":              p.Name(),
				"mean_final_equity":   pr.Summary.MeanFinalEquity,
				"median_final_equity": pr.Summary.MedianFinalEquity,
				"mean_max_drawdown":   pr.Summary.MeanMaxDrawdown,
			}).Info("Policy evaluated")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Config:   config,
		Policies: results,
		Duration: time.Since(start),
	}
	e.metrics.RecordLatency("evaluate", result.Duration.Seconds())

	e.logger.WithField("duration", result.Duration.String()).Info("Evaluation completed")
	return result, nil
}

// RunPolicy runs config.Episodes episodes of p on a fresh environment
func (e *Engine) RunPolicy(ctx context.Context, config Config, p policy.Policy) ([]contracts.EpisodeRecord, error) {
	environment, err := e.NewEnv(config.Env)
	if err != nil {
		return nil, err
	}

	records := make([]contracts.EpisodeRecord, 0, config.Episodes)
	for i := 0; i < config.Episodes; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := e.runEpisode(environment, p, nil)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", i+1, err)
		}
		records = append(records, record)

		if (i+1)%10 == 0 || i+1 == config.Episodes {
			e.logger.WithFields(map[string]interface{}{
				"policy":    p.Name(),
				"completed": i + 1,
				"total":     config.Episodes,
			}).Debug("Episodes progress")
		}
	}

	return records, nil
}

// StepFunc observes each step of an episode
type StepFunc func(step int, action int, res env.StepResult) error

// RunEpisode drives one reset → terminate loop of environment with p
func (e *Engine) RunEpisode(environment *env.TradingEnv, p policy.Policy, onStep StepFunc) (contracts.EpisodeRecord, error) {
	return e.runEpisode(environment, p, onStep)
}

func (e *Engine) runEpisode(environment *env.TradingEnv, p policy.Policy, onStep StepFunc) (contracts.EpisodeRecord, error) {
	record, err := RunEpisode(environment, p, func(step, action int, res env.StepResult) error {
		e.metrics.RecordStep(p.Name(), res.Reward)
		if onStep != nil {
			return onStep(step, action, res)
		}
		return nil
	})
	if err != nil {
		return record, err
	}

	e.metrics.RecordEpisode(p.Name(), record.FinalEquity, record.MaxDrawdown)
	return record, nil
}

// RunEpisode resets environment once and steps with p until termination.
// Curves start with the pre-step baseline (1.0 equity, 0.0 drawdown).
func RunEpisode(environment *env.TradingEnv, p policy.Policy, onStep StepFunc) (contracts.EpisodeRecord, error) {
	obs, info, err := environment.Reset(env.ResetOptions{})
	if err != nil {
		return contracts.EpisodeRecord{}, fmt.Errorf("reset: %w", err)
	}

	record := contracts.EpisodeRecord{
		Symbol:        info.Symbol,
		EquityCurve:   []float64{1.0},
		DrawdownCurve: []float64{0.0},
	}

	for step := 1; ; step++ {
		action := p.Decide(obs)
		res, err := environment.Step(action)
		if err != nil {
			return record, err
		}

		record.EquityCurve = append(record.EquityCurve, res.Info.Equity)
		record.DrawdownCurve = append(record.DrawdownCurve, res.Info.Drawdown)

		if onStep != nil {
			if err := onStep(step, action, res); err != nil {
				return record, err
			}
		}

		if res.Terminated || res.Truncated {
			break
		}
		obs = res.Observation
	}

	record.FinalEquity = record.EquityCurve[len(record.EquityCurve)-1]
	record.MaxDrawdown = stats.Max(record.DrawdownCurve)
	return record, nil
}
