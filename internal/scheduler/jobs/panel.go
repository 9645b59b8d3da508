package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/pkg/logger"
)

// PanelSchedule rebuilds after the US close on weekdays
const PanelSchedule = "0 0 18 * * 1-5"

// PanelJobName identifies the panel rebuild; the universe job follows it
const PanelJobName = "panel_rebuild"

// PanelJob rebuilds the feature panel from the raw tables
// ⭐ SSOT: 패널 재생성 스케줄은 이 Job에서만
type PanelJob struct {
	builder  *s0_data.Builder
	schedule string
	logger   *logger.Logger
}

// NewPanelJob creates a new panel job. An empty schedule uses PanelSchedule.
func NewPanelJob(builder *s0_data.Builder, schedule string, log *logger.Logger) *PanelJob {
	if schedule == "" {
		schedule = PanelSchedule
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PanelJob{
		builder:  builder,
		schedule: schedule,
		logger:   log.Module("jobs"),
	}
}

// Name returns the job name
func (j *PanelJob) Name() string {
	return PanelJobName
}

// Schedule returns the cron schedule (with seconds)
func (j *PanelJob) Schedule() string {
	return j.schedule
}

// Run executes the panel rebuild
func (j *PanelJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled panel rebuild")

	result, err := j.builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build panel: %w", err)
	}

	fields := map[string]interface{}{
		"panel_rows": result.PanelRows,
		"symbols":    result.Symbols,
		"dropped":    result.DroppedSymbols,
		"duration":   result.Duration.String(),
	}
	if result.Quality != nil {
		fields["quality_score"] = result.Quality.QualityScore
		fields["quality_passed"] = result.Quality.Passed
	}
	j.logger.WithFields(fields).Info("Panel rebuilt successfully")

	return nil
}
