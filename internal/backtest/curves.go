package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/pkg/logger"
)

// Curve file aliases, resolved in order
var (
	episodeContainers = []string{"episodes", "data"}
	equityKeys        = []string{"equity", "equity_curve", "equityCurve", "values"}
	drawdownKeys      = []string{"drawdown_curve", "drawdownCurve", "drawdown"}
	symbolKeys        = []string{"symbol", "ticker", "asset"}
)

// LoadCurves reads a curves file into episode records.
// Accepted shapes: a bare list, {"episodes": [...]} or {"data": [...]}.
// Episodes without an equity curve of at least two points are skipped.
// final_equity is always the last equity value; max_drawdown falls back to
// the drawdown curve and then to the equity curve when absent.
func LoadCurves(path string) ([]contracts.EpisodeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &contracts.ArtifactError{Path: path, Producer: contracts.StageEvaluation.Command()}
		}
		return nil, fmt.Errorf("read curves: %w", err)
	}
	return DecodeCurves(data)
}

// DecodeCurves parses curves JSON (see LoadCurves)
func DecodeCurves(data []byte) ([]contracts.EpisodeRecord, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse curves: %w", err)
	}

	episodes := iterEpisodes(raw)
	records := make([]contracts.EpisodeRecord, 0, len(episodes))
	for _, item := range episodes {
		ep, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		equity := extractEquity(ep)
		if len(equity) < 2 {
			continue
		}

		record := contracts.EpisodeRecord{
			Symbol:      extractSymbol(ep),
			FinalEquity: equity[len(equity)-1],
			EquityCurve: equity,
		}

		for _, key := range drawdownKeys {
			if dd, ok := numberList(ep[key]); ok {
				record.DrawdownCurve = dd
				break
			}
		}

		if mdd, ok := ep["max_drawdown"]; ok && !math.IsNaN(safeNumber(mdd)) {
			record.MaxDrawdown = safeNumber(mdd)
		} else if len(record.DrawdownCurve) > 0 {
			record.MaxDrawdown = maxFinite(record.DrawdownCurve)
		} else {
			record.MaxDrawdown = MaxDrawdown(equity)
		}

		records = append(records, record)
	}

	return records, nil
}

func iterEpisodes(raw interface{}) []interface{} {
	switch v := raw.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		for _, key := range episodeContainers {
			if list, ok := v[key].([]interface{}); ok {
				return list
			}
		}
	}
	return nil
}

func extractEquity(ep map[string]interface{}) []float64 {
	for _, key := range equityKeys {
		if eq, ok := numberList(ep[key]); ok {
			return eq
		}
	}
	// nested {"curve": {"equity": [...]}}
	if curve, ok := ep["curve"].(map[string]interface{}); ok {
		if eq, ok := numberList(curve["equity"]); ok {
			return eq
		}
	}
	return nil
}

func extractSymbol(ep map[string]interface{}) string {
	for _, key := range symbolKeys {
		if v, ok := ep[key]; ok && v != nil {
			s := strings.TrimSpace(fmt.Sprint(v))
			if s != "" {
				return s
			}
		}
	}
	return ""
}

func numberList(v interface{}) ([]float64, bool) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]float64, len(list))
	for i, x := range list {
		out[i] = safeNumber(x)
	}
	return out, true
}

// safeNumber coerces a JSON value to float64, NaN when not a finite number
func safeNumber(v interface{}) float64 {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		n = parsed
	case bool:
		if x {
			n = 1
		}
	default:
		return math.NaN()
	}
	if math.IsInf(n, 0) {
		return math.NaN()
	}
	return n
}

func maxFinite(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if !math.IsNaN(v) && v > m {
			m = v
		}
	}
	return m
}

// MetricsBuilder rebuilds metrics.json and summary_table.csv from curve files
type MetricsBuilder struct {
	dir    *RunDir
	logger *logger.Logger
}

// NewMetricsBuilder creates a builder over an existing run directory
func NewMetricsBuilder(dir *RunDir, log *logger.Logger) *MetricsBuilder {
	if log == nil {
		log = logger.Nop()
	}
	return &MetricsBuilder{
		dir:    dir,
		logger: log.Module("metrics"),
	}
}

// Build summarizes each policy's curves in order. Missing curve files are
// skipped with a warning; no curve file at all is an ArtifactError.
func (b *MetricsBuilder) Build(policies []string) (map[string]contracts.PolicySummary, []SummaryTableRow, error) {
	metrics := make(map[string]contracts.PolicySummary, len(policies))
	table := make([]SummaryTableRow, 0, len(policies))

	for _, name := range policies {
		records, err := b.dir.ReadCurves(name)
		if err != nil {
			var artifact *contracts.ArtifactError
			if errors.As(err, &artifact) {
				b.logger.WithField("path", artifact.Path).Warn("Curves file missing, skipping policy")
				continue
			}
			return nil, nil, fmt.Errorf("policy %s: %w", name, err)
		}
		if len(records) == 0 {
			b.logger.WithField("policy", name).Warn("No usable episodes in curves file")
			continue
		}

		summary := Summarize(records)
		metrics[name] = summary
		table = append(table, tableRow(name, summary))
	}

	if len(metrics) == 0 {
		return nil, nil, &contracts.ArtifactError{
			Path:     b.dir.file(CurvesFile("<policy>")),
			Producer: contracts.StageEvaluation.Command(),
		}
	}

	return metrics, table, nil
}

// Write runs Build and writes metrics.json and summary_table.csv
func (b *MetricsBuilder) Write(policies []string) (map[string]contracts.PolicySummary, error) {
	metrics, table, err := b.Build(policies)
	if err != nil {
		return nil, err
	}
	if err := b.dir.WriteMetrics(metrics); err != nil {
		return nil, err
	}
	if err := b.dir.WriteSummaryTable(table); err != nil {
		return nil, err
	}

	b.logger.WithFields(map[string]interface{}{
		"dir":      b.dir.Path,
		"policies": len(metrics),
	}).Info("Metrics rebuilt from curves")
	return metrics, nil
}
