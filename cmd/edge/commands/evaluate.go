package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/backtest"
	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/envconfig"
	"github.com/wonny/earningsedge/internal/policy"
	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/internal/s1_universe"
	"github.com/wonny/earningsedge/pkg/metrics"
	"github.com/wonny/earningsedge/pkg/redis"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "S3: 정책 평가 (curves, metrics, summary table)",
	Long: `각 정책을 동일한 시드의 시뮬레이터로 N 에피소드 실행합니다.

출력 (<run_dir>/):
  <policy>_curves.json         - 에피소드별 equity/drawdown 곡선
  <policy>_summary.csv         - 에피소드별 final equity / max drawdown
  metrics.json                 - 정책별 요약 통계
  risk.json                    - 정책별 Sharpe/Sortino, VaR/CVaR (95%)
  summary_table.csv            - 정책별 요약 표
  symbol_failure_summary.csv   - ppo 종목별 실패 분석 (ppo + buy_hold 평가 시)
  run_meta.json                - run id, config hash, seed, pool

Example:
  go run ./cmd/edge evaluate --episodes 25 --seed 42
  go run ./cmd/edge evaluate --use-test-symbols --policies buy_hold,avoid_earnings`,
	RunE: runEvaluate,
}

var (
	evalEpisodes       int
	evalSeed           int64
	evalPolicies       []string
	evalUseTestSymbols bool
	evalRunDir         string
	evalModel          string
	evalWorkers        int
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().IntVar(&evalEpisodes, "episodes", 0, "episodes per policy (default: evaluate.episodes)")
	evaluateCmd.Flags().Int64Var(&evalSeed, "seed", 0, "environment seed shared by every policy (default: env.seed, else time)")
	evaluateCmd.Flags().StringSliceVar(&evalPolicies, "policies", nil, "policies to evaluate (default: evaluate.policies)")
	evaluateCmd.Flags().BoolVar(&evalUseTestSymbols, "use-test-symbols", false, "sample only the test side of the split")
	evaluateCmd.Flags().StringVar(&evalRunDir, "run-dir", "", "output directory (default: paths.run_dir)")
	evaluateCmd.Flags().StringVar(&evalModel, "model", "", "learned policy artifact (default: <run_dir>/ppo_linear.json)")
	evaluateCmd.Flags().IntVar(&evalWorkers, "workers", 0, "policies evaluated concurrently (default: one per policy)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}
	exp := a.experiment
	applyEvaluateFlags(cmd, exp)

	started := time.Now()
	log := a.log.WithField("stage", contracts.StageEvaluation.ShortName())

	panel, err := s0_data.ReadPanel(exp.Paths.Panel)
	if err != nil {
		return err
	}

	universe, err := s1_universe.LoadUniverse(exp.Paths.Universe)
	if errors.Is(err, contracts.ErrMissingArtifact) {
		log.WithField("path", exp.Paths.Universe).Warn("Universe file missing, sampling every panel symbol")
		universe, err = nil, nil
	}
	if err != nil {
		return err
	}

	envCfg := exp.EnvConfig()
	if envCfg.Seed == nil {
		envCfg = envCfg.WithSeed(time.Now().UnixNano())
	}

	pool, poolSize, splitPath := "universe", len(panel.Symbols()), ""
	if universe != nil {
		poolSize = universe.Count()
	}
	if exp.Evaluate.UseTestSymbols {
		splitPath = exp.SplitPath()
		split, err := s1_universe.LoadSplit(splitPath)
		if err != nil {
			return err
		}
		envCfg.Symbols = split.Test
		pool, poolSize = "test", len(split.Test)
	}

	policies, err := resolvePolicies(exp)
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(panel, universe, metrics.New(), log)
	result, err := engine.Run(cmd.Context(), backtest.Config{
		Episodes: exp.Evaluate.Episodes,
		Env:      envCfg,
		Workers:  exp.Evaluate.Workers,
	}, policies)
	if err != nil {
		return err
	}

	dir, err := backtest.NewRunDir(exp.Paths.RunDir)
	if err != nil {
		return err
	}
	if err := dir.WriteResult(result); err != nil {
		return err
	}

	if err := writeFailureSummary(dir, result); err != nil {
		return err
	}

	hash, err := envconfig.Hash(exp)
	if err != nil {
		return err
	}
	meta := contracts.RunMeta{
		RunID:      uuid.NewString(),
		Timestamp:  started.UTC().Format(time.RFC3339),
		ConfigHash: hash,
		Seed:       *envCfg.Seed,
		PanelPath:  exp.Paths.Panel,
		SplitPath:  splitPath,
		Pool:       pool,
		PoolSize:   poolSize,
		Episodes:   exp.Evaluate.Episodes,
		Policies:   exp.Evaluate.Policies,
		ElapsedSec: time.Since(started).Seconds(),
	}
	if err := dir.WriteRunMeta(meta); err != nil {
		return err
	}

	cacheMetrics(cmd, a, dir, result)
	printResult(result, meta, dir.Path)
	return nil
}

func applyEvaluateFlags(cmd *cobra.Command, exp *envconfig.Config) {
	flags := cmd.Flags()
	if evalEpisodes > 0 {
		exp.Evaluate.Episodes = evalEpisodes
	}
	if flags.Changed("seed") {
		seed := evalSeed
		exp.Env.Seed = &seed
	}
	if len(evalPolicies) > 0 {
		exp.Evaluate.Policies = evalPolicies
	}
	if evalUseTestSymbols {
		exp.Evaluate.UseTestSymbols = true
	}
	if evalRunDir != "" {
		exp.Paths.RunDir = evalRunDir
	}
	if evalModel != "" {
		exp.Paths.Model = evalModel
	}
	if evalWorkers > 0 {
		exp.Evaluate.Workers = evalWorkers
	}
}

// resolvePolicies loads the learned model only when it is requested
func resolvePolicies(exp *envconfig.Config) ([]policy.Policy, error) {
	registry := policy.NewRegistry()
	for _, name := range exp.Evaluate.Policies {
		if strings.TrimSpace(name) != policy.LearnedName {
			continue
		}
		model, err := policy.LoadLinear(exp.ModelPath())
		if err != nil {
			return nil, err
		}
		registry.Register(policy.NewLearned(policy.LearnedName, model))
	}
	return registry.Resolve(exp.Evaluate.Policies)
}

// writeFailureSummary needs the learned policy and the buy-and-hold baseline
func writeFailureSummary(dir *backtest.RunDir, result *backtest.Result) error {
	target, ok := result.Get(policy.LearnedName)
	if !ok {
		return nil
	}
	buyHold, ok := result.Get("buy_hold")
	if !ok {
		return nil
	}

	var avoid []contracts.EpisodeRecord
	if pr, ok := result.Get("avoid_earnings"); ok {
		avoid = pr.Episodes
	}
	return dir.WriteSymbolFailures(backtest.SymbolFailures(target.Episodes, buyHold.Episodes, avoid))
}

// cacheMetrics publishes the run summary for the API; failures only warn
func cacheMetrics(cmd *cobra.Command, a *app, dir *backtest.RunDir, result *backtest.Result) {
	client, err := redis.New(a.cfg)
	if err != nil {
		a.log.WithError(err).Warn("Redis unavailable, run metrics not cached")
		return
	}
	defer client.Close()

	summaries := make(map[string]contracts.PolicySummary, len(result.Policies))
	for _, pr := range result.Policies {
		summaries[pr.Policy] = pr.Summary
	}

	cache := redis.NewCache(client, cacheNamespace)
	if err := cache.Set(cmd.Context(), redis.RunMetricsKey(filepath.Base(dir.Path)), summaries, redis.TTLLong); err != nil {
		a.log.WithError(err).Warn("Failed to cache run metrics")
	}
}

func printResult(result *backtest.Result, meta contracts.RunMeta, path string) {
	banner(fmt.Sprintf("Evaluation %s", meta.RunID))
	field("Seed", fmt.Sprintf("%d", meta.Seed), 9)
	field("Pool", fmt.Sprintf("%s (%d symbols)", meta.Pool, meta.PoolSize), 9)
	field("Episodes", fmt.Sprintf("%d per policy", meta.Episodes), 9)
	fmt.Fprintln(report)

	tbl := newTable(16, 10, 10, 10, 10, 8, 8)
	tbl.header("Policy", "Mean EQ", "Median EQ", "Mean MDD", "Med MDD", "Sharpe", "VaR95")
	for _, pr := range result.Policies {
		s := pr.Summary
		tbl.row(
			pr.Policy,
			fmt.Sprintf("%.4f", s.MeanFinalEquity),
			fmt.Sprintf("%.4f", s.MedianFinalEquity),
			fmt.Sprintf("%.4f", s.MeanMaxDrawdown),
			fmt.Sprintf("%.4f", s.MedianMaxDrawdown),
			fmt.Sprintf("%.2f", pr.Risk.MeanSharpeRatio),
			fmt.Sprintf("%.4f", pr.Risk.StepTail.VaR),
		)
	}
	fmt.Fprintln(report)
	okf("Artifacts written to %s in %.2fs", path, meta.ElapsedSec)
}
