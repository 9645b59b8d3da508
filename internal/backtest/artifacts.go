package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/wonny/earningsedge/internal/contracts"
)

// Artifact file names inside a run directory
const (
	MetricsFile      = "metrics.json"
	SummaryTableFile = "summary_table.csv"
	RunMetaFile      = "run_meta.json"
	RiskFile         = "risk.json"
	SplitFile        = "universe_split.json"
)

// CurvesFile returns "<policy>_curves.json"
func CurvesFile(policy string) string {
	return policy + "_curves.json"
}

// EpisodeSummaryFile returns "<policy>_summary.csv"
func EpisodeSummaryFile(policy string) string {
	return policy + "_summary.csv"
}

// SummaryTableRow is one line of summary_table.csv
type SummaryTableRow struct {
	Policy            string  `csv:"policy" json:"policy"`
	Episodes          int     `csv:"n_episodes" json:"n_episodes"`
	MeanFinalEquity   float64 `csv:"mean_final_equity" json:"mean_final_equity"`
	MedianFinalEquity float64 `csv:"median_final_equity" json:"median_final_equity"`
	MeanMaxDrawdown   float64 `csv:"mean_max_drawdown" json:"mean_max_drawdown"`
	MedianMaxDrawdown float64 `csv:"median_max_drawdown" json:"median_max_drawdown"`
}

func tableRow(policy string, s contracts.PolicySummary) SummaryTableRow {
	return SummaryTableRow{
		Policy:            policy,
		Episodes:          s.Episodes,
		MeanFinalEquity:   s.MeanFinalEquity,
		MedianFinalEquity: s.MedianFinalEquity,
		MeanMaxDrawdown:   s.MeanMaxDrawdown,
		MedianMaxDrawdown: s.MedianMaxDrawdown,
	}
}

// RunDir reads and writes the artifacts of one evaluation run
type RunDir struct {
	Path string
}

// NewRunDir creates the directory when needed
func NewRunDir(path string) (*RunDir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &RunDir{Path: path}, nil
}

func (d *RunDir) file(name string) string {
	return filepath.Join(d.Path, name)
}

// WriteResult writes curves, per-episode summaries, metrics.json and summary_table.csv
func (d *RunDir) WriteResult(result *Result) error {
	metrics := make(map[string]contracts.PolicySummary, len(result.Policies))
	risk := make(map[string]RiskSummary, len(result.Policies))
	table := make([]SummaryTableRow, 0, len(result.Policies))

	for _, pr := range result.Policies {
		if err := d.WriteCurves(pr.Policy, pr.Episodes); err != nil {
			return err
		}
		if err := d.WriteEpisodeSummary(pr.Policy, pr.Episodes); err != nil {
			return err
		}
		metrics[pr.Policy] = pr.Summary
		risk[pr.Policy] = pr.Risk
		table = append(table, tableRow(pr.Policy, pr.Summary))
	}

	if err := d.WriteMetrics(metrics); err != nil {
		return err
	}
	if err := writeJSON(d.file(RiskFile), risk, true); err != nil {
		return err
	}
	return d.WriteSummaryTable(table)
}

// WriteCurves writes the episode records of one policy as a JSON list
func (d *RunDir) WriteCurves(policy string, records []contracts.EpisodeRecord) error {
	if records == nil {
		records = []contracts.EpisodeRecord{}
	}
	return writeJSON(d.file(CurvesFile(policy)), records, false)
}

// WriteEpisodeSummary writes symbol, final_equity, max_drawdown per episode
func (d *RunDir) WriteEpisodeSummary(policy string, records []contracts.EpisodeRecord) error {
	rows := make([]contracts.EpisodeSummaryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.SummaryRow())
	}
	return writeCSV(d.file(EpisodeSummaryFile(policy)), &rows)
}

// WriteMetrics writes metrics.json (policy → summary, two-space indent)
func (d *RunDir) WriteMetrics(metrics map[string]contracts.PolicySummary) error {
	return writeJSON(d.file(MetricsFile), metrics, true)
}

// WriteSummaryTable writes summary_table.csv
func (d *RunDir) WriteSummaryTable(rows []SummaryTableRow) error {
	return writeCSV(d.file(SummaryTableFile), &rows)
}

// WriteRunMeta writes run_meta.json
func (d *RunDir) WriteRunMeta(meta contracts.RunMeta) error {
	return writeJSON(d.file(RunMetaFile), meta, true)
}

// ReadMetrics reads metrics.json
func (d *RunDir) ReadMetrics() (map[string]contracts.PolicySummary, error) {
	var metrics map[string]contracts.PolicySummary
	if err := readJSON(d.file(MetricsFile), &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// ReadRunMeta reads run_meta.json
func (d *RunDir) ReadRunMeta() (*contracts.RunMeta, error) {
	var meta contracts.RunMeta
	if err := readJSON(d.file(RunMetaFile), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ReadCurves reads <policy>_curves.json through the alias-tolerant loader
func (d *RunDir) ReadCurves(policy string) ([]contracts.EpisodeRecord, error) {
	path := d.file(CurvesFile(policy))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &contracts.ArtifactError{Path: path, Producer: contracts.StageEvaluation.Command()}
	}
	return LoadCurves(path)
}

func writeJSON(path string, v interface{}, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &contracts.ArtifactError{Path: path, Producer: contracts.StageEvaluation.Command()}
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, rows interface{}) error {
	data, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
