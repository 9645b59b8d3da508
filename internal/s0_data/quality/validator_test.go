package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/earningsedge/internal/contracts"
)

func row(sym string, volume float64, to, since int) contracts.FeatureRow {
	return contracts.FeatureRow{
		Symbol:            sym,
		Date:              contracts.MustDate("2024-01-02"),
		AdjustedClose:     10,
		Volume:            volume,
		DaysToEarnings:    to,
		DaysSinceEarnings: since,
		IsEarningsWindow:  contracts.InEarningsWindow(to, since),
	}
}

func TestQualityGate_Check(t *testing.T) {
	gate := NewQualityGate(DefaultConfig())

	rows := []contracts.FeatureRow{
		row("AAPL", 100, 3, 60),
		row("AAPL", 100, 2, 61),
		row("MSFT", 100, contracts.NoEarnings, contracts.NoEarnings),
		row("MSFT", 0, contracts.NoEarnings, contracts.NoEarnings),
	}

	report := gate.Check(rows)

	assert.Equal(t, 2, report.TotalSymbols)
	assert.Equal(t, 1, report.ValidSymbols)
	assert.Equal(t, 4, report.TotalRows)
	assert.InDelta(t, 0.75, report.Coverage["volume"], 1e-12)
	assert.InDelta(t, 0.5, report.Coverage["earnings"], 1e-12)
	assert.InDelta(t, 0.5, report.Coverage["window"], 1e-12)
	assert.InDelta(t, 0.625, report.QualityScore, 1e-12)
	assert.False(t, report.Passed)
}

func TestQualityGate_CheckEmpty(t *testing.T) {
	report := NewQualityGate(DefaultConfig()).Check(nil)

	assert.Zero(t, report.TotalSymbols)
	assert.Zero(t, report.QualityScore)
	assert.False(t, report.Passed)
}

func TestQualityGate_calculateScore(t *testing.T) {
	gate := &QualityGate{config: Config{}}

	tests := []struct {
		name     string
		coverage map[string]float64
		expected float64
	}{
		{"perfect", map[string]float64{"volume": 1, "earnings": 1}, 1.0},
		{"no earnings", map[string]float64{"volume": 1, "earnings": 0}, 0.5},
		{"window ignored", map[string]float64{"volume": 1, "earnings": 1, "window": 0.2}, 1.0},
		{"missing keys", map[string]float64{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, gate.calculateScore(tt.coverage), 1e-12)
		})
	}
}
