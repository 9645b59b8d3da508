package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/pkg/database"
	"github.com/wonny/earningsedge/pkg/httputil"
)

// panelCmd represents the panel command
var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "S0: 피처 패널 생성",
	Long: `원시 가격/실적 CSV로부터 피처 패널을 생성합니다.

Subcommands:
  build   - 패널 생성 (data/processed/panel.csv)
  fetch   - 원시 CSV 다운로드

Example:
  go run ./cmd/edge panel build
  go run ./cmd/edge panel build --db
  go run ./cmd/edge panel fetch --prices-url https://... --earnings-url https://...`,
}

var (
	panelBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "패널 생성",
		RunE:  runPanelBuild,
	}

	panelFetchCmd = &cobra.Command{
		Use:   "fetch",
		Short: "원시 CSV 다운로드",
		RunE:  runPanelFetch,
	}

	// Flags
	panelPrices      string
	panelEarnings    string
	panelOut         string
	panelMinRows     int
	panelToDB        bool
	panelPricesURL   string
	panelEarningsURL string
	panelFetchRPS    float64
)

func init() {
	rootCmd.AddCommand(panelCmd)
	panelCmd.AddCommand(panelBuildCmd)
	panelCmd.AddCommand(panelFetchCmd)

	panelBuildCmd.Flags().StringVar(&panelPrices, "prices", "", "raw prices CSV (default: paths.raw_prices)")
	panelBuildCmd.Flags().StringVar(&panelEarnings, "earnings", "", "raw earnings CSV (default: paths.raw_earnings)")
	panelBuildCmd.Flags().StringVar(&panelOut, "out", "", "panel output (default: paths.panel)")
	panelBuildCmd.Flags().IntVar(&panelMinRows, "min-rows", 0, "minimum rows per symbol (default: universe.min_rows)")
	panelBuildCmd.Flags().BoolVar(&panelToDB, "db", false, "also store the panel in PostgreSQL")

	panelFetchCmd.Flags().StringVar(&panelPricesURL, "prices-url", "", "URL of the raw prices CSV")
	panelFetchCmd.Flags().StringVar(&panelEarningsURL, "earnings-url", "", "URL of the raw earnings CSV")
	panelFetchCmd.Flags().Float64Var(&panelFetchRPS, "rps", 0, "max requests per second to the data vendor (0 = unpaced)")
}

func runPanelBuild(cmd *cobra.Command, args []string) error {
	a, err := loadRuntime()
	if err != nil {
		return err
	}

	bc := a.experiment.PanelConfig()
	if panelPrices != "" {
		bc.PricesPath = panelPrices
	}
	if panelEarnings != "" {
		bc.EarningsPath = panelEarnings
	}
	if panelOut != "" {
		bc.PanelPath = panelOut
	}
	if panelMinRows > 0 {
		bc.MinRows = panelMinRows
	}

	ctx := cmd.Context()
	var repo *s0_data.PanelRepository
	if panelToDB {
		db, err := database.New(a.cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo = s0_data.NewPanelRepository(db.Pool)
		if err := db.Migrate(ctx, repo); err != nil {
			return err
		}
	}

	result, err := s0_data.NewBuilder(bc, a.log, repo).Build(ctx)
	if err != nil {
		return err
	}

	banner("Panel Build")
	field("Output", result.PanelPath, 16)
	field("Price rows", fmt.Sprintf("%d", result.PriceRows), 16)
	field("Earnings events", fmt.Sprintf("%d", result.EarningsEvents), 16)
	field("Panel rows", fmt.Sprintf("%d", result.PanelRows), 16)
	field("Symbols", fmt.Sprintf("%d (dropped %d)", result.Symbols, result.DroppedSymbols), 16)
	if result.Quality != nil {
		field("Quality score", fmt.Sprintf("%.3f", result.Quality.QualityScore), 16)
		if !result.Quality.Passed {
			warnf("Panel is below the quality thresholds")
		}
	}
	okf("Panel written in %s", result.Duration)
	return nil
}

func runPanelFetch(cmd *cobra.Command, args []string) error {
	if panelPricesURL == "" && panelEarningsURL == "" {
		return fmt.Errorf("at least one of --prices-url or --earnings-url is required")
	}

	a, err := loadRuntime()
	if err != nil {
		return err
	}

	var opts []httputil.Option
	if panelFetchRPS > 0 {
		opts = append(opts, httputil.WithRateLimit(panelFetchRPS, 1))
	}
	downloader := s0_data.NewDownloader(httputil.New(a.log, opts...), a.log)
	targets := []struct {
		url  string
		dest string
	}{
		{panelPricesURL, a.experiment.Paths.RawPrices},
		{panelEarningsURL, a.experiment.Paths.RawEarnings},
	}

	ctx := cmd.Context()
	for _, t := range targets {
		if t.url == "" {
			continue
		}
		n, err := downloader.Fetch(ctx, t.url, t.dest)
		if err != nil {
			return err
		}
		okf("%s (%d bytes)", t.dest, n)
	}
	return nil
}
