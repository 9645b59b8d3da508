package contracts

// EpisodeRecord is the outcome of one reset → terminate loop.
// Curves start with the pre-step baseline (equity 1.0, drawdown 0.0).
type EpisodeRecord struct {
	Symbol        string    `json:"symbol"`
	FinalEquity   float64   `json:"final_equity"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	EquityCurve   []float64 `json:"equity_curve"`
	DrawdownCurve []float64 `json:"drawdown_curve"`
}

// EpisodeSummaryRow is the per-episode line of <policy>_summary.csv
type EpisodeSummaryRow struct {
	Symbol      string  `csv:"symbol" json:"symbol"`
	FinalEquity float64 `csv:"final_equity" json:"final_equity"`
	MaxDrawdown float64 `csv:"max_drawdown" json:"max_drawdown"`
}

// SummaryRow drops the curves of the record
func (r EpisodeRecord) SummaryRow() EpisodeSummaryRow {
	return EpisodeSummaryRow{
		Symbol:      r.Symbol,
		FinalEquity: r.FinalEquity,
		MaxDrawdown: r.MaxDrawdown,
	}
}

// PolicySummary aggregates the episodes of one policy
type PolicySummary struct {
	Episodes          int     `json:"episodes"`
	MeanFinalEquity   float64 `json:"mean_final_equity"`
	MedianFinalEquity float64 `json:"median_final_equity"`
	MeanMaxDrawdown   float64 `json:"mean_max_drawdown"`
	MedianMaxDrawdown float64 `json:"median_max_drawdown"`
}

// RunMeta describes one evaluation run directory
type RunMeta struct {
	RunID      string   `json:"run_id"`
	Timestamp  string   `json:"timestamp"`
	ConfigHash string   `json:"config_hash"`
	Seed       int64    `json:"seed"`
	PanelPath  string   `json:"panel_path"`
	SplitPath  string   `json:"split_path,omitempty"`
	Pool       string   `json:"pool"`
	PoolSize   int      `json:"pool_size"`
	Episodes   int      `json:"episodes"`
	Policies   []string `json:"policies"`
	ElapsedSec float64  `json:"elapsed_sec"`
}
