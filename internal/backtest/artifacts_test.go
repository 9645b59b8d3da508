package backtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/policy"
)

func TestRunDir_WriteResultRoundTrip(t *testing.T) {
	panel := testPanel(t, "AAA", "BBB")
	engine := NewEngine(panel, nil, nil, nil)
	result, err := engine.Run(context.Background(), Config{Episodes: 3, Env: testEnvConfig(11)}, policy.Baselines())
	require.NoError(t, err)

	dir, err := NewRunDir(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, err)
	require.NoError(t, dir.WriteResult(result))

	for _, name := range []string{"buy_hold", "flat", "avoid_earnings"} {
		assert.FileExists(t, filepath.Join(dir.Path, CurvesFile(name)))
		assert.FileExists(t, filepath.Join(dir.Path, EpisodeSummaryFile(name)))

		records, err := dir.ReadCurves(name)
		require.NoError(t, err)
		pr, _ := result.Get(name)
		require.Len(t, records, len(pr.Episodes))
		for i := range records {
			assert.Equal(t, pr.Episodes[i].Symbol, records[i].Symbol)
			assert.Equal(t, pr.Episodes[i].EquityCurve, records[i].EquityCurve)
			assert.Equal(t, pr.Episodes[i].MaxDrawdown, records[i].MaxDrawdown)
		}
	}

	metrics, err := dir.ReadMetrics()
	require.NoError(t, err)
	assert.Len(t, metrics, 3)
	assert.Equal(t, 3, metrics["flat"].Episodes)
	assert.FileExists(t, filepath.Join(dir.Path, RiskFile))

	summary, err := os.ReadFile(filepath.Join(dir.Path, EpisodeSummaryFile("flat")))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(summary)), "\n")
	assert.Equal(t, "symbol,final_equity,max_drawdown", lines[0])
	assert.Len(t, lines, 4)
}

func TestRunDir_CurvesUseEpisodeRecordFields(t *testing.T) {
	dir, err := NewRunDir(t.TempDir())
	require.NoError(t, err)

	records := []contracts.EpisodeRecord{{
		Symbol:        "AAA",
		FinalEquity:   1.1,
		MaxDrawdown:   0,
		EquityCurve:   []float64{1, 1.1},
		DrawdownCurve: []float64{0, 0},
	}}
	require.NoError(t, dir.WriteCurves("ppo", records))

	raw, err := os.ReadFile(filepath.Join(dir.Path, "ppo_curves.json"))
	require.NoError(t, err)
	for _, key := range []string{`"symbol"`, `"final_equity"`, `"max_drawdown"`, `"equity_curve"`, `"drawdown_curve"`} {
		assert.Contains(t, string(raw), key)
	}
	assert.True(t, strings.HasPrefix(string(raw), "["))
}

func TestRunDir_RunMeta(t *testing.T) {
	dir, err := NewRunDir(t.TempDir())
	require.NoError(t, err)

	meta := contracts.RunMeta{
		RunID:    "11111111-2222-3333-4444-555555555555",
		Seed:     42,
		Pool:     "test",
		PoolSize: 40,
		Episodes: 25,
		Policies: []string{"ppo", "buy_hold"},
	}
	require.NoError(t, dir.WriteRunMeta(meta))

	got, err := dir.ReadRunMeta()
	require.NoError(t, err)
	assert.Equal(t, meta, *got)
}

func TestRunDir_MissingArtifacts(t *testing.T) {
	dir := &RunDir{Path: t.TempDir()}

	_, err := dir.ReadMetrics()
	assert.ErrorIs(t, err, contracts.ErrMissingArtifact)

	_, err = dir.ReadCurves("ppo")
	assert.ErrorIs(t, err, contracts.ErrMissingArtifact)
}
