package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListRuns returns the names of run directories under root, sorted.
// A run directory holds metrics.json or at least one curves file.
func ListRuns(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if isRunDir(filepath.Join(root, e.Name())) {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// OpenRun resolves a run name under root, rejecting path traversal
func OpenRun(root, name string) (*RunDir, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid run name %q", name)
	}
	path := filepath.Join(root, name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("run %q not found: %w", name, os.ErrNotExist)
	}
	return &RunDir{Path: path}, nil
}

// CurvePolicies lists the policies that have a curves file in the run
func (d *RunDir) CurvePolicies() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.Path, "*_curves.json"))
	if err != nil {
		return nil, err
	}
	policies := make([]string, 0, len(matches))
	for _, m := range matches {
		policies = append(policies, strings.TrimSuffix(filepath.Base(m), "_curves.json"))
	}
	sort.Strings(policies)
	return policies, nil
}

func isRunDir(path string) bool {
	if _, err := os.Stat(filepath.Join(path, MetricsFile)); err == nil {
		return true
	}
	matches, _ := filepath.Glob(filepath.Join(path, "*_curves.json"))
	return len(matches) > 0
}
