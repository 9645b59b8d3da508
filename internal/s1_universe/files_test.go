package s1_universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/earningsedge/internal/contracts"
)

func TestUniverseFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed", "universe_top200.csv")
	u := &contracts.Universe{Symbols: []string{"NVDA", "AAPL", "MSFT"}}

	require.NoError(t, SaveUniverse(path, u))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "symbol\nNVDA\nAAPL\nMSFT\n", string(data))

	loaded, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, u.Symbols, loaded.Symbols)
}

func TestLoadUniverse_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadUniverse(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, contracts.ErrMissingArtifact)
	assert.Contains(t, err.Error(), "edge universe build")

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("ticker\nAAPL\n"), 0o644))
	_, err = LoadUniverse(bad)
	assert.ErrorIs(t, err, contracts.ErrMissingColumn)
}

func TestLoadUniverse_SkipsBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.csv")
	require.NoError(t, os.WriteFile(path, []byte("symbol\nAAPL\n \nMSFT\n"), 0o644))

	u, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, u.Symbols)
}
