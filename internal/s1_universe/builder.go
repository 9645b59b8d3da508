package s1_universe

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/stats"
)

// DefaultTopK is the conventional universe size
const DefaultTopK = 200

// Config holds universe selection criteria
type Config struct {
	TopK int `yaml:"top_k"` // 최대 종목 수
}

// Ranked is one symbol with its liquidity score
type Ranked struct {
	Symbol             string  `json:"symbol"`
	MedianDollarVolume float64 `json:"median_dollar_volume"`
}

// Builder ranks panel symbols by liquidity
type Builder struct {
	config Config
	logger *logger.Logger
}

// NewBuilder creates a new Universe Builder
func NewBuilder(config Config, log *logger.Logger) *Builder {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{config: config, logger: log}
}

// Build ranks every panel symbol by median dollar volume (adj_close × volume),
// descending with ties broken by symbol, and keeps the top K.
// ⭐ SSOT: S1 유니버스 생성
func (b *Builder) Build(panel *s0_data.Panel) (*contracts.Universe, []Ranked, error) {
	ranked := Rank(panel)
	if len(ranked) == 0 {
		return nil, nil, fmt.Errorf("rank universe: %w", contracts.ErrEmptyPool)
	}

	if len(ranked) > b.config.TopK {
		ranked = ranked[:b.config.TopK]
	}

	universe := &contracts.Universe{Symbols: make([]string, 0, len(ranked))}
	for _, r := range ranked {
		universe.Symbols = append(universe.Symbols, r.Symbol)
	}

	b.logger.WithFields(map[string]interface{}{
		"candidates": len(panel.Symbols()),
		"selected":   universe.Count(),
		"top_k":      b.config.TopK,
	}).Info("Universe built")

	return universe, ranked, nil
}

// Rank scores every symbol of the panel. Non-finite dollar volumes are skipped
// and a symbol without any finite value is left out.
func Rank(panel *s0_data.Panel) []Ranked {
	ranked := make([]Ranked, 0, len(panel.Symbols()))
	for _, sym := range panel.Symbols() {
		series, _ := panel.Series(sym)

		values := make([]float64, 0, series.Len())
		for _, row := range series.Rows {
			dv := row.DollarVolume()
			if math.IsNaN(dv) || math.IsInf(dv, 0) {
				continue
			}
			values = append(values, dv)
		}
		if len(values) == 0 {
			continue
		}

		ranked = append(ranked, Ranked{Symbol: sym, MedianDollarVolume: stats.Median(values)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].MedianDollarVolume != ranked[j].MedianDollarVolume {
			return ranked[i].MedianDollarVolume > ranked[j].MedianDollarVolume
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})
	return ranked
}
