package s1_universe

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/wonny/earningsedge/internal/contracts"
)

// SplitConfig controls the train/test partition
type SplitConfig struct {
	TestFraction float64 `yaml:"test_fraction"` // 0.2
	Seed         int64   `yaml:"seed"`          // 42
	MaxTrain     int     `yaml:"max_train"`     // 0 = no cap
	MaxTest      int     `yaml:"max_test"`      // 0 = no cap
}

// DefaultSplitConfig returns the conventional 80/20 split
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{TestFraction: 0.2, Seed: 42}
}

// Split shuffles the universe with a seeded generator and takes the first
// round(n × test_fraction) symbols (at least one) as test, the rest as train.
// Caps apply after the split. Blank and duplicate symbols are dropped first.
func Split(universe *contracts.Universe, cfg SplitConfig) (*contracts.UniverseSplit, error) {
	if cfg.TestFraction < 0 || cfg.TestFraction > 1 {
		return nil, fmt.Errorf("test fraction must be in [0, 1], got %v", cfg.TestFraction)
	}

	symbols := uniqueSymbols(universe.Symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("split universe: %w", contracts.ErrEmptyPool)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	rng.Shuffle(len(symbols), func(i, j int) {
		symbols[i], symbols[j] = symbols[j], symbols[i]
	})

	n := len(symbols)
	nTest := int(math.RoundToEven(float64(n) * cfg.TestFraction))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n {
		nTest = n
	}

	split := &contracts.UniverseSplit{
		Test:  append([]string(nil), symbols[:nTest]...),
		Train: append([]string{}, symbols[nTest:]...),
	}

	if cfg.MaxTrain > 0 && len(split.Train) > cfg.MaxTrain {
		split.Train = split.Train[:cfg.MaxTrain]
	}
	if cfg.MaxTest > 0 && len(split.Test) > cfg.MaxTest {
		split.Test = split.Test[:cfg.MaxTest]
	}

	if err := checkDisjoint(split); err != nil {
		return nil, err
	}
	return split, nil
}

func uniqueSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func checkDisjoint(split *contracts.UniverseSplit) error {
	if overlap := split.Overlap(); len(overlap) > 0 {
		if len(overlap) > 10 {
			overlap = overlap[:10]
		}
		return fmt.Errorf("%w: %v", contracts.ErrSplitOverlap, overlap)
	}
	return nil
}

// SaveSplit writes {"train": [...], "test": [...]} with two-space indentation
func SaveSplit(path string, split *contracts.UniverseSplit) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create split dir: %w", err)
	}

	data, err := json.MarshalIndent(split, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal split: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write split: %w", err)
	}
	return nil
}

// LoadSplit reads a split file. A missing file is an ArtifactError naming the split command.
func LoadSplit(path string) (*contracts.UniverseSplit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &contracts.ArtifactError{Path: path, Producer: "edge universe split"}
		}
		return nil, fmt.Errorf("read split: %w", err)
	}

	var split contracts.UniverseSplit
	if err := json.Unmarshal(data, &split); err != nil {
		return nil, fmt.Errorf("parse split %s: %w", path, err)
	}
	if split.Train == nil {
		split.Train = []string{}
	}
	if split.Test == nil {
		split.Test = []string{}
	}

	if err := checkDisjoint(&split); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &split, nil
}

// LoadOrCreateSplit reuses an existing split file, otherwise splits and saves.
// created reports whether a new split was written.
func LoadOrCreateSplit(path string, universe *contracts.Universe, cfg SplitConfig) (split *contracts.UniverseSplit, created bool, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		split, err = LoadSplit(path)
		return split, false, err
	}

	split, err = Split(universe, cfg)
	if err != nil {
		return nil, false, err
	}
	if err := SaveSplit(path, split); err != nil {
		return nil, false, err
	}
	return split, true, nil
}
