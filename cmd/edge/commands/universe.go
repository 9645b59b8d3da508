package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/internal/s1_universe"
	"github.com/wonny/earningsedge/pkg/database"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "S1: 유니버스 생성 및 train/test 분할",
	Long: `패널에서 유동성 상위 종목을 선택하고 train/test로 분할합니다.

Subcommands:
  build   - 중앙값 거래대금 상위 K 종목 (data/processed/universe_top200.csv)
  split   - 시드 기반 train/test 분할 (<run_dir>/universe_split.json)

Example:
  go run ./cmd/edge universe build --top-k 200
  go run ./cmd/edge universe split --seed 42 --test-fraction 0.2`,
}

var (
	universeBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "유니버스 생성",
		RunE:  runUniverseBuild,
	}

	universeSplitCmd = &cobra.Command{
		Use:   "split",
		Short: "train/test 분할 (기존 파일이 있으면 재사용)",
		RunE:  runUniverseSplit,
	}

	// Flags
	universeTopK     int
	universeToDB     bool
	splitSeed        int64
	splitFraction    float64
	splitMaxTrain    int
	splitMaxTest     int
	splitForce       bool
	splitName        string
	splitOut         string
	universeSplitsDB bool
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeBuildCmd)
	universeCmd.AddCommand(universeSplitCmd)

	universeBuildCmd.Flags().IntVar(&universeTopK, "top-k", 0, "universe size (default: universe.top_k)")
	universeBuildCmd.Flags().BoolVar(&universeToDB, "db", false, "also store a universe snapshot in PostgreSQL")

	universeSplitCmd.Flags().Int64Var(&splitSeed, "seed", 0, "shuffle seed (default: split.seed)")
	universeSplitCmd.Flags().Float64Var(&splitFraction, "test-fraction", 0, "test share in (0, 1) (default: split.test_fraction)")
	universeSplitCmd.Flags().IntVar(&splitMaxTrain, "max-train", 0, "cap on train symbols")
	universeSplitCmd.Flags().IntVar(&splitMaxTest, "max-test", 0, "cap on test symbols")
	universeSplitCmd.Flags().BoolVar(&splitForce, "force", false, "re-split even when the split file exists")
	universeSplitCmd.Flags().StringVar(&splitOut, "out", "", "split file (default: <run_dir>/universe_split.json)")
	universeSplitCmd.Flags().BoolVar(&universeSplitsDB, "db", false, "also store the split in PostgreSQL")
	universeSplitCmd.Flags().StringVar(&splitName, "name", "", "split name in PostgreSQL (default: meta.experiment_id)")
}

func runUniverseBuild(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}

	uc := a.experiment.UniverseConfig()
	if universeTopK > 0 {
		uc.TopK = universeTopK
	}

	panel, err := s0_data.ReadPanel(a.experiment.Paths.Panel)
	if err != nil {
		return err
	}

	universe, ranked, err := s1_universe.NewBuilder(uc, a.log).Build(panel)
	if err != nil {
		return err
	}

	out := a.experiment.Paths.Universe
	if err := s1_universe.SaveUniverse(out, universe); err != nil {
		return err
	}

	if universeToDB {
		db, err := database.New(a.cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo := s1_universe.NewRepository(db.Pool)
		if err := db.Migrate(cmd.Context(), repo); err != nil {
			return err
		}
		if err := repo.SaveUniverse(cmd.Context(), universe); err != nil {
			return err
		}
	}

	tbl := newTable(5, 10, 22)
	tbl.header("Rank", "Symbol", "Median $ Volume")
	for i, r := range ranked {
		if i == 10 {
			fmt.Fprintf(report, "... %d more\n", len(ranked)-10)
			break
		}
		tbl.row(fmt.Sprintf("%d", i+1), r.Symbol, fmt.Sprintf("%.0f", r.MedianDollarVolume))
	}
	okf("Universe of %d symbols written to %s", universe.Count(), out)
	return nil
}

func runUniverseSplit(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}

	sc := a.experiment.SplitConfig()
	if cmd.Flags().Changed("seed") {
		sc.Seed = splitSeed
	}
	if splitFraction > 0 {
		sc.TestFraction = splitFraction
	}
	if splitMaxTrain > 0 {
		sc.MaxTrain = splitMaxTrain
	}
	if splitMaxTest > 0 {
		sc.MaxTest = splitMaxTest
	}

	path := a.experiment.SplitPath()
	if splitOut != "" {
		path = splitOut
	}
	if splitForce {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old split: %w", err)
		}
	}

	universe, err := s1_universe.LoadUniverse(a.experiment.Paths.Universe)
	if err != nil {
		return err
	}

	split, created, err := s1_universe.LoadOrCreateSplit(path, universe, sc)
	if err != nil {
		return err
	}

	if universeSplitsDB {
		db, err := database.New(a.cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo := s1_universe.NewRepository(db.Pool)
		if err := db.Migrate(cmd.Context(), repo); err != nil {
			return err
		}
		name := splitName
		if name == "" {
			name = a.experiment.Meta.ExperimentID
		}
		if err := repo.SaveSplit(cmd.Context(), name, split, sc); err != nil {
			return err
		}
	}

	if created {
		okf("Split written to %s", filepath.Clean(path))
	} else {
		notef("Reusing existing split %s (pass --force to re-split)", filepath.Clean(path))
	}
	field("Train", fmt.Sprintf("%d", len(split.Train)), 6)
	field("Test", fmt.Sprintf("%d: %s", len(split.Test), preview(split.Test, 8)), 6)
	return nil
}

// preview joins the first n symbols
func preview(symbols []string, n int) string {
	if len(symbols) <= n {
		return strings.Join(symbols, ", ")
	}
	return strings.Join(symbols[:n], ", ") + ", ..."
}
