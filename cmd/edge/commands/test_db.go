package commands

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/internal/s1_universe"
	"github.com/wonny/earningsedge/pkg/config"
	"github.com/wonny/earningsedge/pkg/database"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "test-db",
		Short: "DATABASE_URL 접속 확인 및 edge 스키마 준비",
		Long: `DATABASE_URL로 접속해 응답 시간과 커넥션 풀 상태를 출력하고,
패널·유니버스·스플릿 테이블을 만든 뒤 테이블별 행 수를 보여줍니다.
마이그레이션은 advisory lock 아래에서 실행되므로 스케줄러와 동시에 돌려도 됩니다.`,
		RunE: runTestDB,
	})
}

func runTestDB(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(report, "Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	okf("Config loaded (ENV: %s)", cfg.Env)
	field("Database URL", maskPassword(cfg.Database.URL), 12)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	okf("Database connection established")

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	field("Healthy", fmt.Sprintf("%v", status.Healthy), 12)
	field("Response", status.ResponseTime.String(), 12)
	field("Total conns", fmt.Sprintf("%d", status.Stats.TotalConns), 12)
	field("Idle conns", fmt.Sprintf("%d", status.Stats.IdleConns), 12)

	if err := db.Migrate(ctx, s0_data.NewPanelRepository(db.Pool), s1_universe.NewRepository(db.Pool)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	okf("Schema %s is ready", database.Schema)

	counts, err := db.TableCounts(ctx)
	if err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	tbl := newTable(22, 10)
	tbl.header("Table", "Rows")
	for _, name := range names {
		tbl.row(name, fmt.Sprintf("%d", counts[name]))
	}
	return nil
}

// maskPassword hides the password of a database URL
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	// Redacted writes a literal placeholder; "***" set via UserPassword would be percent-escaped
	return strings.Replace(u.Redacted(), ":xxxxx@", ":***@", 1)
}
