package s1_universe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/earningsedge/internal/contracts"
)

func universeOf(n int) *contracts.Universe {
	u := &contracts.Universe{}
	for i := 0; i < n; i++ {
		u.Symbols = append(u.Symbols, fmt.Sprintf("S%03d", i))
	}
	return u
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		cfg       SplitConfig
		wantTest  int
		wantTrain int
	}{
		{"default 80/20", 200, DefaultSplitConfig(), 40, 160},
		{"minimum one test", 3, SplitConfig{TestFraction: 0.1, Seed: 1}, 1, 2},
		{"banker's rounding", 5, SplitConfig{TestFraction: 0.5, Seed: 1}, 2, 3},
		{"caps", 100, SplitConfig{TestFraction: 0.2, Seed: 7, MaxTrain: 10, MaxTest: 5}, 5, 10},
		{"all test", 4, SplitConfig{TestFraction: 1, Seed: 7}, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := Split(universeOf(tt.n), tt.cfg)
			require.NoError(t, err)

			assert.Len(t, split.Test, tt.wantTest)
			assert.Len(t, split.Train, tt.wantTrain)
			assert.Empty(t, split.Overlap())
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	u := universeOf(50)

	a, err := Split(u, SplitConfig{TestFraction: 0.2, Seed: 42})
	require.NoError(t, err)
	b, err := Split(u, SplitConfig{TestFraction: 0.2, Seed: 42})
	require.NoError(t, err)
	c, err := Split(u, SplitConfig{TestFraction: 0.2, Seed: 43})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Test, c.Test)
	assert.Equal(t, universeOf(50), u, "input must not be reordered")
}

func TestSplit_DropsBlankAndDuplicates(t *testing.T) {
	u := &contracts.Universe{Symbols: []string{" AAPL ", "AAPL", "", "MSFT", "NVDA"}}

	split, err := Split(u, SplitConfig{TestFraction: 0.34, Seed: 3})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "NVDA"}, append(split.Train, split.Test...))
}

func TestSplit_Errors(t *testing.T) {
	_, err := Split(&contracts.Universe{}, DefaultSplitConfig())
	assert.ErrorIs(t, err, contracts.ErrEmptyPool)

	_, err = Split(universeOf(5), SplitConfig{TestFraction: 1.5})
	assert.Error(t, err)
}

func TestSplit_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splits", "universe_split.json")

	split, err := Split(universeOf(30), DefaultSplitConfig())
	require.NoError(t, err)
	require.NoError(t, SaveSplit(path, split))

	loaded, err := LoadSplit(path)
	require.NoError(t, err)

	assert.ElementsMatch(t, split.Train, loaded.Train)
	assert.ElementsMatch(t, split.Test, loaded.Test)
	assert.Empty(t, loaded.Overlap())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"train\": [")
}

func TestLoadSplit_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe_split.json")

	_, err := LoadSplit(path)

	var artifactErr *contracts.ArtifactError
	require.ErrorAs(t, err, &artifactErr)
	assert.Equal(t, path, artifactErr.Path)
	assert.True(t, errors.Is(err, contracts.ErrMissingArtifact))
	assert.Contains(t, err.Error(), "edge universe split")
}

func TestLoadSplit_Overlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "split.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"train":["AAPL","MSFT"],"test":["MSFT"]}`), 0o644))

	_, err := LoadSplit(path)
	assert.ErrorIs(t, err, contracts.ErrSplitOverlap)
	assert.Contains(t, err.Error(), "MSFT")
}

func TestLoadOrCreateSplit_Reuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "split.json")

	first, created, err := LoadOrCreateSplit(path, universeOf(20), SplitConfig{TestFraction: 0.2, Seed: 1})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := LoadOrCreateSplit(path, universeOf(20), SplitConfig{TestFraction: 0.2, Seed: 99})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
}

func TestRepository_Split(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "database connection failed")
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.EnsureSchema(ctx))

	cfg := DefaultSplitConfig()
	split, err := Split(universeOf(25), cfg)
	require.NoError(t, err)

	require.NoError(t, repo.SaveSplit(ctx, "test_split", split, cfg))
	loaded, err := repo.GetSplit(ctx, "test_split")
	require.NoError(t, err)
	assert.Equal(t, split, loaded)

	_, err = repo.GetSplit(ctx, "does_not_exist")
	assert.ErrorIs(t, err, contracts.ErrMissingArtifact)

	u := universeOf(5)
	require.NoError(t, repo.SaveUniverse(ctx, u))
	latest, _, err := repo.GetLatestUniverse(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.Symbols, latest.Symbols)
}
