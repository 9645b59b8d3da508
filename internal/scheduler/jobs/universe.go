package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/internal/s1_universe"
	"github.com/wonny/earningsedge/pkg/logger"
)

// UniverseSchedule is a fallback; the job also follows every successful panel rebuild
const UniverseSchedule = "0 30 18 * * 1-5"

// UniverseJob recomputes the liquidity universe from the current panel
// ⭐ SSOT: Universe 생성 스케줄은 이 Job에서만
type UniverseJob struct {
	builder      *s1_universe.Builder
	repo         *s1_universe.Repository // optional
	panelPath    string
	universePath string
	schedule     string
	logger       *logger.Logger
}

// NewUniverseJob creates a new universe job. repo may be nil.
func NewUniverseJob(builder *s1_universe.Builder, repo *s1_universe.Repository, panelPath, universePath, schedule string, log *logger.Logger) *UniverseJob {
	if schedule == "" {
		schedule = UniverseSchedule
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UniverseJob{
		builder:      builder,
		repo:         repo,
		panelPath:    panelPath,
		universePath: universePath,
		schedule:     schedule,
		logger:       log.Module("jobs"),
	}
}

// Name returns the job name
func (j *UniverseJob) Name() string {
	return "universe_rebuild"
}

// Schedule returns the cron schedule (with seconds)
func (j *UniverseJob) Schedule() string {
	return j.schedule
}

// After chains the job to the panel rebuild
func (j *UniverseJob) After() string {
	return PanelJobName
}

// Run executes the universe generation
func (j *UniverseJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled universe generation")

	// Read fresh every run: the panel job replaces the file underneath
	panel, err := s0_data.ReadPanel(j.panelPath)
	if err != nil {
		return fmt.Errorf("read panel: %w", err)
	}

	universe, ranked, err := j.builder.Build(panel)
	if err != nil {
		return fmt.Errorf("build universe: %w", err)
	}

	if err := s1_universe.SaveUniverse(j.universePath, universe); err != nil {
		return fmt.Errorf("save universe: %w", err)
	}

	if j.repo != nil {
		if err := j.repo.SaveUniverse(ctx, universe); err != nil {
			return fmt.Errorf("save universe snapshot: %w", err)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"ranked":   len(ranked),
		"selected": universe.Count(),
		"path":     j.universePath,
	}).Info("Universe generated successfully")

	return nil
}
