package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/earningsedge/internal/backtest"
	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/redis"
)

// RunsCacheSchedule refreshes every 10 minutes
const RunsCacheSchedule = "0 */10 * * * *"

// RunsCacheJob warms the cache with the metrics of every run directory
type RunsCacheJob struct {
	runsDir string
	cache   *redis.Cache
	logger  *logger.Logger
}

// NewRunsCacheJob creates a new cache refresh job
func NewRunsCacheJob(runsDir string, cache *redis.Cache, log *logger.Logger) *RunsCacheJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RunsCacheJob{
		runsDir: runsDir,
		cache:   cache,
		logger:  log.Module("jobs"),
	}
}

// Name returns the job name
func (j *RunsCacheJob) Name() string {
	return "runs_cache_refresh"
}

// Schedule returns the cron schedule (with seconds)
func (j *RunsCacheJob) Schedule() string {
	return RunsCacheSchedule
}

// Run caches metrics.json of each run, rebuilding it from curves when absent
func (j *RunsCacheJob) Run(ctx context.Context) error {
	runs, err := backtest.ListRuns(j.runsDir)
	if err != nil {
		return err
	}

	cached := 0
	for _, name := range runs {
		if err := ctx.Err(); err != nil {
			return err
		}

		dir, err := backtest.OpenRun(j.runsDir, name)
		if err != nil {
			return err
		}

		metrics, err := dir.ReadMetrics()
		if errors.Is(err, contracts.ErrMissingArtifact) {
			policies, perr := dir.CurvePolicies()
			if perr != nil {
				return perr
			}
			metrics, _, err = backtest.NewMetricsBuilder(dir, j.logger).Build(policies)
		}
		if err != nil {
			j.logger.WithError(err).WithField("run", name).Warn("Skipping run")
			continue
		}

		if err := j.cache.Set(ctx, redis.RunMetricsKey(name), metrics, redis.TTLLong); err != nil {
			return fmt.Errorf("cache run %s: %w", name, err)
		}
		cached++
	}

	j.logger.WithFields(map[string]interface{}{
		"runs":   len(runs),
		"cached": cached,
	}).Debug("Runs cache refreshed")
	return nil
}
