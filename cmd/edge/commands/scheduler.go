package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/internal/s1_universe"
	"github.com/wonny/earningsedge/internal/scheduler"
	"github.com/wonny/earningsedge/internal/scheduler/jobs"
	"github.com/wonny/earningsedge/pkg/database"
	"github.com/wonny/earningsedge/pkg/redis"
)

var schedulerUseDB bool

// scheduler start|list|run: cron rebuilds of the panel and universe plus the
// runs cache refresh
func init() {
	root := &cobra.Command{
		Use:   "scheduler",
		Short: "주기 작업 (패널·유니버스 재생성, run 캐시)",
		Long: `cron 기반 주기 작업을 실행하거나 조회합니다.

  edge scheduler start                 # 포그라운드 실행, Ctrl+C로 종료
  edge scheduler list                  # 작업, 스케줄, 선행 작업
  edge scheduler run panel_rebuild     # 즉시 1회 실행 (후속 작업 포함)

작업:
  panel_rebuild       평일 18:00  원시 CSV → 패널
  universe_rebuild    평일 18:30  패널 → 유니버스 (panel_rebuild 성공 후에도 실행)
  runs_cache_refresh  10분마다    run 요약 → Redis`,
	}
	root.PersistentFlags().BoolVar(&schedulerUseDB, "db", false, "also store panels and universes in PostgreSQL")

	root.AddCommand(
		&cobra.Command{Use: "start", Short: "포그라운드로 스케줄 실행", RunE: runScheduler},
		&cobra.Command{Use: "list", Short: "작업 목록과 스케줄", RunE: listJobs},
		&cobra.Command{Use: "run JOB", Short: "작업을 즉시 실행하고 결과 출력", Args: cobra.ExactArgs(1), RunE: runJob},
	)
	rootCmd.AddCommand(root)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	sched.Start()

	okf("Scheduler started")
	fmt.Fprintln(report, "\nRegistered jobs:")
	bullets(sched.Jobs())
	fmt.Fprintln(report, "\nPress Ctrl+C to stop")

	<-cmd.Context().Done()

	fmt.Fprintln(report, "\nShutting down scheduler...")
	sched.Stop()
	fmt.Fprintln(report, "Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	tbl := newTable(20, 18, 16)
	tbl.header("Job", "Schedule", "After")
	for _, st := range sched.Stats() {
		after := st.After
		if after == "" {
			after = "-"
		}
		tbl.row(st.JobName, st.Schedule, after)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	result, err := sched.RunNow(args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempts (%s): %s", result.JobName, result.Attempts, result.Duration, result.Error)
	}

	okf("Job %s completed in %s", result.JobName, result.Duration)
	for _, name := range sched.Jobs() {
		history, _ := sched.History(name)
		for _, r := range history {
			if r.Trigger == scheduler.TriggerChain {
				notef("Followed by %s (success=%t)", r.JobName, r.Success)
			}
		}
	}
	return nil
}

// initScheduler wires the rebuild jobs; cleanup closes the connections it opened
func initScheduler(cmd *cobra.Command) (*scheduler.Scheduler, func(), error) {
	a, err := loadRuntime()
	if err != nil {
		return nil, nil, err
	}
	exp := a.experiment
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var panelRepo *s0_data.PanelRepository
	var universeRepo *s1_universe.Repository
	if schedulerUseDB {
		db, err := database.New(a.cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		closers = append(closers, db.Close)

		panelRepo = s0_data.NewPanelRepository(db.Pool)
		universeRepo = s1_universe.NewRepository(db.Pool)
		if err := db.Migrate(cmd.Context(), panelRepo, universeRepo); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	redisClient, err := redis.New(a.cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	sched := scheduler.New(a.log)

	panelBuilder := s0_data.NewBuilder(exp.PanelConfig(), a.log, panelRepo)
	universeBuilder := s1_universe.NewBuilder(exp.UniverseConfig(), a.log)

	for _, job := range []scheduler.Job{
		jobs.NewPanelJob(panelBuilder, "", a.log),
		jobs.NewUniverseJob(universeBuilder, universeRepo, exp.Paths.Panel, exp.Paths.Universe, "", a.log),
		jobs.NewRunsCacheJob(a.cfg.RunsDir, redis.NewCache(redisClient, cacheNamespace), a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return sched, cleanup, nil
}
