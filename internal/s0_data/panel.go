package s0_data

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"

	"github.com/wonny/earningsedge/internal/contracts"
)

// Series is one symbol's slice of the panel with the numeric columns unpacked
type Series struct {
	Symbol   string
	Rows     []contracts.FeatureRow
	AdjClose []float64
	Volume   []float64
}

// Len returns the number of rows
func (s *Series) Len() int {
	return len(s.Rows)
}

// Panel is the loaded feature panel. It is read-only once built and may be
// shared by any number of simulator instances.
type Panel struct {
	series  map[string]*Series
	symbols []string
	rows    int
}

// NewPanel groups rows by symbol (sorted by date within each symbol).
// Rows must carry a symbol, a date and a finite adjusted close.
func NewPanel(rows []contracts.FeatureRow) (*Panel, error) {
	sorted := make([]contracts.FeatureRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})

	p := &Panel{series: make(map[string]*Series), rows: len(sorted)}
	for i, r := range sorted {
		if r.Symbol == "" || !r.Date.Valid() {
			return nil, fmt.Errorf("panel row %d: symbol and date are required", i)
		}
		if math.IsNaN(r.AdjustedClose) || math.IsInf(r.AdjustedClose, 0) {
			return nil, fmt.Errorf("panel row %d (%s %s): adj_close is not finite", i, r.Symbol, r.Date)
		}

		s, ok := p.series[r.Symbol]
		if !ok {
			s = &Series{Symbol: r.Symbol}
			p.series[r.Symbol] = s
			p.symbols = append(p.symbols, r.Symbol)
		}
		s.Rows = append(s.Rows, r)
		s.AdjClose = append(s.AdjClose, r.AdjustedClose)
		s.Volume = append(s.Volume, r.Volume)
	}

	return p, nil
}

// Series returns the rows of one symbol
func (p *Panel) Series(symbol string) (*Series, bool) {
	s, ok := p.series[symbol]
	return s, ok
}

// Symbols returns all symbols in ascending order
func (p *Panel) Symbols() []string {
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

// Len returns the total row count
func (p *Panel) Len() int {
	return p.rows
}

// Rows returns all rows ordered by (symbol, date)
func (p *Panel) Rows() []contracts.FeatureRow {
	out := make([]contracts.FeatureRow, 0, p.rows)
	for _, sym := range p.symbols {
		out = append(out, p.series[sym].Rows...)
	}
	return out
}

// WritePanel persists rows as CSV, creating the parent directory
func WritePanel(path string, rows []contracts.FeatureRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create panel dir: %w", err)
	}

	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return fmt.Errorf("encode panel: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write panel: %w", err)
	}
	return nil
}

// ReadPanel loads a persisted panel. A missing required column fails before any row is decoded.
func ReadPanel(path string) (*Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &contracts.ArtifactError{Path: path, Producer: contracts.StagePanel.Command()}
		}
		return nil, fmt.Errorf("read panel: %w", err)
	}
	return decodePanel(path, data)
}

func decodePanel(source string, data []byte) (*Panel, error) {
	t, err := parseTable(source, data, panelAliases)
	if err != nil {
		return nil, err
	}
	if err := t.require(contracts.PanelColumns...); err != nil {
		return nil, err
	}

	var rows []contracts.FeatureRow
	if err := gocsv.UnmarshalBytes(t.payload, &rows); err != nil {
		return nil, fmt.Errorf("%s: decode panel: %w", source, err)
	}

	return NewPanel(rows)
}

// older panels carry the adjusted close as close_adjusted
var panelAliases = columnAliases{
	{canonical: "adj_close", names: []string{"adj_close", "close_adjusted"}},
}
