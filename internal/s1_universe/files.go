package s1_universe

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/wonny/earningsedge/internal/contracts"
)

type universeRow struct {
	Symbol string `csv:"symbol"`
}

// SaveUniverse writes the one-column `symbol` CSV in rank order
func SaveUniverse(path string, universe *contracts.Universe) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create universe dir: %w", err)
	}

	rows := make([]*universeRow, 0, universe.Count())
	for _, sym := range universe.Symbols {
		rows = append(rows, &universeRow{Symbol: sym})
	}

	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return fmt.Errorf("encode universe: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write universe: %w", err)
	}
	return nil
}

// LoadUniverse reads a universe CSV; blank symbols are skipped, order is kept
func LoadUniverse(path string) (*contracts.Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &contracts.ArtifactError{Path: path, Producer: contracts.StageUniverse.Command()}
		}
		return nil, fmt.Errorf("read universe: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	if !hasColumn(header, "symbol") {
		return nil, &contracts.SchemaError{Source: path, Missing: []string{"symbol"}, Found: header}
	}

	var rows []*universeRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("%s: decode universe: %w", path, err)
	}

	universe := &contracts.Universe{Symbols: make([]string, 0, len(rows))}
	for _, r := range rows {
		if sym := strings.TrimSpace(r.Symbol); sym != "" {
			universe.Symbols = append(universe.Symbols, sym)
		}
	}
	return universe, nil
}

func hasColumn(header []string, name string) bool {
	for _, col := range header {
		if strings.TrimSpace(col) == name {
			return true
		}
	}
	return false
}
