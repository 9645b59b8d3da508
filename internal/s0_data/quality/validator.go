package quality

import (
	"math"
	"time"

	"github.com/wonny/earningsedge/internal/contracts"
)

// Report is a coverage snapshot of a built panel
type Report struct {
	CheckedAt    time.Time          `json:"checked_at"`
	TotalSymbols int                `json:"total_symbols"`
	ValidSymbols int                `json:"valid_symbols"`
	TotalRows    int                `json:"total_rows"`
	Coverage     map[string]float64 `json:"coverage"`
	QualityScore float64            `json:"quality_score"`
	Passed       bool               `json:"passed"`
}

// Config holds quality gate thresholds
type Config struct {
	MinVolumeCoverage   float64 `yaml:"min_volume_coverage"`   // 0.99
	MinEarningsCoverage float64 `yaml:"min_earnings_coverage"` // 0.80
	MinScore            float64 `yaml:"min_score"`             // 0.80
}

// DefaultConfig returns the thresholds used by `edge panel build`
func DefaultConfig() Config {
	return Config{
		MinVolumeCoverage:   0.99,
		MinEarningsCoverage: 0.80,
		MinScore:            0.80,
	}
}

// QualityGate scores a panel before it is handed to the universe stage
type QualityGate struct {
	config Config
}

// NewQualityGate creates a new QualityGate instance
func NewQualityGate(config Config) *QualityGate {
	return &QualityGate{config: config}
}

// Check computes coverage ratios over the panel rows
// ⭐ SSOT: S0 → S1 품질 검증
func (g *QualityGate) Check(rows []contracts.FeatureRow) *Report {
	report := &Report{
		CheckedAt: time.Now().UTC(),
		TotalRows: len(rows),
		Coverage:  make(map[string]float64),
	}

	type symbolStats struct {
		rows, withVolume, withEarnings, inWindow int
	}
	bySymbol := make(map[string]*symbolStats)
	for _, r := range rows {
		s, ok := bySymbol[r.Symbol]
		if !ok {
			s = &symbolStats{}
			bySymbol[r.Symbol] = s
		}
		s.rows++
		if r.Volume > 0 && !math.IsNaN(r.Volume) {
			s.withVolume++
		}
		if r.DaysToEarnings != contracts.NoEarnings || r.DaysSinceEarnings != contracts.NoEarnings {
			s.withEarnings++
		}
		if r.IsEarningsWindow {
			s.inWindow++
		}
	}
	report.TotalSymbols = len(bySymbol)

	if len(rows) == 0 {
		return report
	}

	// 1. 행 단위 커버리지
	var withVolume, inWindow int
	symbolsWithEarnings := 0
	for _, s := range bySymbol {
		withVolume += s.withVolume
		inWindow += s.inWindow
		if s.withEarnings > 0 {
			symbolsWithEarnings++
		}
		if s.withEarnings > 0 && s.withVolume == s.rows {
			report.ValidSymbols++
		}
	}
	report.Coverage["volume"] = float64(withVolume) / float64(len(rows))
	report.Coverage["earnings"] = float64(symbolsWithEarnings) / float64(len(bySymbol))
	report.Coverage["window"] = float64(inWindow) / float64(len(rows))

	// 2. 품질 점수 계산
	report.QualityScore = g.calculateScore(report.Coverage)
	report.Passed = report.Coverage["volume"] >= g.config.MinVolumeCoverage &&
		report.Coverage["earnings"] >= g.config.MinEarningsCoverage &&
		report.QualityScore >= g.config.MinScore

	return report
}

// calculateScore calculates overall quality score using weighted average
func (g *QualityGate) calculateScore(coverage map[string]float64) float64 {
	// 가중치 (합계 = 1.0), window 비율은 참고용
	weights := map[string]float64{
		"volume":   0.5,
		"earnings": 0.5,
	}

	score := 0.0
	for key, weight := range weights {
		if cov, exists := coverage[key]; exists {
			score += cov * weight
		}
	}

	return score
}
