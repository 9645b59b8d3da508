package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/backtest"
)

// metricsCmd rebuilds metrics.json and summary_table.csv from curve files
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "curves.json → metrics.json / summary_table.csv 재생성",
	Long: `기존 <policy>_curves.json 파일에서 요약 통계를 다시 계산합니다.
곡선 파일의 형식(리스트, {"episodes": [...]}, {"data": [...]})과
equity 키 별칭(equity, equity_curve, equityCurve, values, curve.equity)을 모두 허용합니다.
없는 정책 파일은 경고 후 건너뜁니다.

Example:
  go run ./cmd/edge metrics --run-dir runs/exp1
  go run ./cmd/edge metrics --policies ppo,buy_hold`,
	RunE: runMetrics,
}

var (
	metricsRunDir   string
	metricsPolicies []string
)

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().StringVar(&metricsRunDir, "run-dir", "", "run directory (default: paths.run_dir)")
	metricsCmd.Flags().StringSliceVar(&metricsPolicies, "policies", nil, "policies to read (default: evaluate.policies)")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}

	path := a.experiment.Paths.RunDir
	if metricsRunDir != "" {
		path = metricsRunDir
	}
	policies := a.experiment.Evaluate.Policies
	if len(metricsPolicies) > 0 {
		policies = metricsPolicies
	}

	dir, err := backtest.NewRunDir(path)
	if err != nil {
		return err
	}

	summaries, err := backtest.NewMetricsBuilder(dir, a.log).Write(policies)
	if err != nil {
		return err
	}

	tbl := newTable(16, 6, 10, 10, 10, 10)
	tbl.header("Policy", "N", "Mean EQ", "Median EQ", "Mean MDD", "Med MDD")
	for _, name := range policies {
		s, ok := summaries[name]
		if !ok {
			continue
		}
		tbl.row(
			name,
			fmt.Sprintf("%d", s.Episodes),
			fmt.Sprintf("%.4f", s.MeanFinalEquity),
			fmt.Sprintf("%.4f", s.MedianFinalEquity),
			fmt.Sprintf("%.4f", s.MeanMaxDrawdown),
			fmt.Sprintf("%.4f", s.MedianMaxDrawdown),
		)
	}
	okf("metrics.json and summary_table.csv written to %s", dir.Path)
	return nil
}
