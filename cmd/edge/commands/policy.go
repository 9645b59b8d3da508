package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/policy"
)

// policyCmd manages learned policy artifacts
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "학습 정책 아티팩트 관리",
}

var (
	policyInitCmd = &cobra.Command{
		Use:   "init",
		Short: "AvoidEarnings와 동일하게 동작하는 선형 모델 작성",
		Long: `학습기가 없을 때 ppo 슬롯을 채우는 선형 모델을 작성합니다.
실적 구간 플래그가 flat 행동 점수를 올리도록 설정됩니다.

Example:
  go run ./cmd/edge policy init
  go run ./cmd/edge policy init --out runs/exp1/ppo_linear.json`,
		RunE: runPolicyInit,
	}

	policyOut   string
	policyForce bool
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyInitCmd)

	policyInitCmd.Flags().StringVar(&policyOut, "out", "", "model path (default: <run_dir>/ppo_linear.json)")
	policyInitCmd.Flags().BoolVar(&policyForce, "force", false, "overwrite an existing model")
}

func runPolicyInit(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}

	path := a.experiment.ModelPath()
	if policyOut != "" {
		path = policyOut
	}

	if _, err := os.Stat(path); err == nil && !policyForce {
		return fmt.Errorf("%s already exists (pass --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	if err := policy.AvoidEarningsModel().Save(path); err != nil {
		return err
	}
	okf("Linear model written to %s", path)
	return nil
}
