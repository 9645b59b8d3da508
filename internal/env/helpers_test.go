package env

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/s0_data"
)

// fakeSeries describes one synthetic symbol
type fakeSeries struct {
	symbol  string
	prices  []float64
	volumes []float64 // nil → constant 1000
	window  []bool    // nil → never in an earnings window
}

func buildPanel(t *testing.T, series ...fakeSeries) *s0_data.Panel {
	t.Helper()

	var rows []contracts.FeatureRow
	for _, s := range series {
		start := contracts.MustDate("2020-01-01")
		for i, p := range s.prices {
			row := contracts.FeatureRow{
				Symbol:            s.symbol,
				Date:              contracts.NewDate(start.AddDate(0, 0, i)),
				AdjustedClose:     p,
				Close:             p,
				Volume:            1000,
				DaysToEarnings:    contracts.NoEarnings,
				DaysSinceEarnings: contracts.NoEarnings,
			}
			if s.volumes != nil {
				row.Volume = s.volumes[i]
			}
			if s.window != nil && s.window[i] {
				row.IsEarningsWindow = true
				row.DaysToEarnings = 0
				row.DaysSinceEarnings = 0
			}
			rows = append(rows, row)
		}
	}

	panel, err := s0_data.NewPanel(rows)
	require.NoError(t, err)
	return panel
}

func constantPrices(n int, p float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

// walkPrices is a deterministic zig-zag with drift
func walkPrices(n int, seed float64) []float64 {
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + 0.02*math.Sin(float64(i)*seed) + 0.001
		out[i] = p
	}
	return out
}

func seeded(cfg Config, seed int64) Config {
	return cfg.WithSeed(seed)
}
