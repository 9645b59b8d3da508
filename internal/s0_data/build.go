package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/s0_data/quality"
	"github.com/wonny/earningsedge/pkg/logger"
)

// DefaultMinRows is the history a symbol needs to stay in the panel (about one trading year)
const DefaultMinRows = 252

// BuilderConfig locates the raw inputs and the panel output
type BuilderConfig struct {
	PricesPath   string
	EarningsPath string
	PanelPath    string
	MinRows      int
}

// BuildResult summarizes one panel build
type BuildResult struct {
	PanelPath      string          `json:"panel_path"`
	PriceRows      int             `json:"price_rows"`
	EarningsEvents int             `json:"earnings_events"`
	PanelRows      int             `json:"panel_rows"`
	Symbols        int             `json:"symbols"`
	DroppedSymbols int             `json:"dropped_symbols"`
	Quality        *quality.Report `json:"quality"`
	Duration       time.Duration   `json:"duration"`
}

// Builder turns raw price and earnings tables into the feature panel
// ⭐ SSOT: S0 패널 생성은 여기서만
type Builder struct {
	config BuilderConfig
	logger *logger.Logger
	repo   *PanelRepository
}

// NewBuilder creates a panel builder. repo may be nil.
func NewBuilder(cfg BuilderConfig, log *logger.Logger, repo *PanelRepository) *Builder {
	if cfg.MinRows == 0 {
		cfg.MinRows = DefaultMinRows
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{config: cfg, logger: log.Module("panel"), repo: repo}
}

// Build loads both inputs, derives the features and writes the panel.
// A schema error in either input aborts before anything is written.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()

	prices, err := LoadPrices(b.config.PricesPath)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	events, err := LoadEarnings(b.config.EarningsPath)
	if err != nil {
		return nil, fmt.Errorf("load earnings: %w", err)
	}

	b.logger.WithFields(map[string]interface{}{
		"prices":   len(prices),
		"earnings": len(events),
	}).Info("Loaded raw tables")

	all := DeriveFeatures(prices, events)
	rows := FilterMinRows(all, b.config.MinRows)

	before := countSymbols(all)
	after := countSymbols(rows)
	if before > after {
		b.logger.WithFields(map[string]interface{}{
			"dropped":  before - after,
			"min_rows": b.config.MinRows,
		}).Warn("Dropped symbols with short history")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := WritePanel(b.config.PanelPath, rows); err != nil {
		return nil, err
	}

	if b.repo != nil {
		if err := b.repo.SavePanel(ctx, rows); err != nil {
			return nil, fmt.Errorf("save panel to database: %w", err)
		}
	}

	result := &BuildResult{
		PanelPath:      b.config.PanelPath,
		PriceRows:      len(prices),
		EarningsEvents: len(events),
		PanelRows:      len(rows),
		Symbols:        after,
		DroppedSymbols: before - after,
		Quality:        quality.NewQualityGate(quality.DefaultConfig()).Check(rows),
		Duration:       time.Since(start),
	}

	if !result.Quality.Passed {
		b.logger.WithFields(map[string]interface{}{
			"score":    result.Quality.QualityScore,
			"earnings": result.Quality.Coverage["earnings"],
			"volume":   result.Quality.Coverage["volume"],
		}).Warn("Panel below quality thresholds")
	}

	b.logger.WithFields(map[string]interface{}{
		"path":     result.PanelPath,
		"rows":     result.PanelRows,
		"symbols":  result.Symbols,
		"duration": result.Duration.String(),
	}).Info("Panel written")

	return result, nil
}

func countSymbols(rows []contracts.FeatureRow) int {
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[r.Symbol] = struct{}{}
	}
	return len(seen)
}
