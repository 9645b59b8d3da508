package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/backtest"
	"github.com/wonny/earningsedge/internal/env"
	"github.com/wonny/earningsedge/internal/policy"
	"github.com/wonny/earningsedge/internal/s0_data"
)

// demoCmd prints one AvoidEarnings episode step by step
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "AvoidEarnings 에피소드 한 번을 단계별로 출력",
	Long: `AvoidEarnings 정책으로 에피소드 하나를 실행하고
각 스텝의 노출, 실적 구간 여부, equity를 출력합니다.

Example:
  go run ./cmd/edge demo --seed 7 --symbol AAPL --steps 40`,
	RunE: runDemo,
}

var (
	demoSeed   int64
	demoSymbol string
	demoSteps  int
	demoPolicy string
)

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().Int64Var(&demoSeed, "seed", 7, "environment seed")
	demoCmd.Flags().StringVar(&demoSymbol, "symbol", "", "force a symbol")
	demoCmd.Flags().IntVar(&demoSteps, "steps", 0, "episode length (default: env.episode_len)")
	demoCmd.Flags().StringVar(&demoPolicy, "policy", "avoid_earnings", "baseline policy to show")
}

func runDemo(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}

	panel, err := s0_data.ReadPanel(a.experiment.Paths.Panel)
	if err != nil {
		return err
	}

	p, err := policy.NewRegistry().Get(demoPolicy)
	if err != nil {
		return err
	}

	cfg := a.experiment.EnvConfig().WithSeed(demoSeed)
	cfg.Symbol = demoSymbol
	if demoSteps > 0 {
		cfg.EpisodeLen = demoSteps
	}

	engine := backtest.NewEngine(panel, nil, nil, a.log)
	environment, err := engine.NewEnv(cfg)
	if err != nil {
		return err
	}

	tbl := newTable(5, 9, 8, 10, 9, 10)
	tbl.header("T", "Exposure", "Earn", "Equity", "DD", "Reward")

	record, err := engine.RunEpisode(environment, p, func(step, action int, res env.StepResult) error {
		earn := ""
		if res.Info.EarningsWindow {
			earn = "●"
		}
		tbl.row(
			fmt.Sprintf("%d", step),
			fmt.Sprintf("%.2f", env.ExposureLevels[action]),
			earn,
			fmt.Sprintf("%.4f", res.Info.Equity),
			fmt.Sprintf("%.4f", res.Info.Drawdown),
			fmt.Sprintf("%+.5f", res.Reward),
		)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(report)
	field("Symbol", record.Symbol, 12)
	field("Final equity", fmt.Sprintf("%.4f", record.FinalEquity), 12)
	field("Max drawdown", fmt.Sprintf("%.4f", record.MaxDrawdown), 12)
	return nil
}
