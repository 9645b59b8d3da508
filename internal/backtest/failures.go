package backtest

import (
	"math"
	"sort"
	"strings"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/pkg/stats"
)

// SymbolFailureFile lists per-symbol failure diagnostics of the learned policy
const SymbolFailureFile = "symbol_failure_summary.csv"

// Failure flags, in priority order
const (
	FlagHardDrawdown = "HARD_DRAWDOWN"
	FlagLateCrash    = "LATE_CRASH"
	FlagLowEdge      = "LOW_EDGE"
	FlagMissingMeta  = "MISSING_META"
)

var flagPriority = []string{FlagHardDrawdown, FlagLateCrash, FlagLowEdge, FlagMissingMeta}

var flagReasons = map[string]string{
	FlagHardDrawdown: "Large peak-to-trough drawdown during episode",
	FlagLateCrash:    "Finished near the lows (late episode collapse)",
	FlagLowEdge:      "No meaningful edge vs baselines on this symbol",
	FlagMissingMeta:  "No episode metadata available to explain failures",
}

// Heuristic thresholds
const (
	failureFromPeak   = 0.95 // final < 95% of peak → failed episode
	hardDrawdown      = 0.35
	lateCrashOffPeak  = 0.25
	lateCrashNearLows = 0.25
)

// SymbolFailureRow is one line of symbol_failure_summary.csv
type SymbolFailureRow struct {
	Symbol                 string  `csv:"symbol"`
	Pairs                  int     `csv:"n_pairs"`
	FailRate               float64 `csv:"fail_rate"`
	Failures               int     `csv:"failures"`
	Reason                 string  `csv:"reason"`
	FailureFlags           string  `csv:"failure_flags"`
	PrimaryFlag            string  `csv:"primary_flag"`
	MeanDeltaEqVsBuyHold   float64 `csv:"mean_delta_eq_vs_buyhold"`
	MeanDDImproveVsBuyHold float64 `csv:"mean_dd_improve_vs_buyhold"`
	MeanDeltaEqVsAvoid     float64 `csv:"mean_delta_eq_vs_avoid"`
	MeanDDImproveVsAvoid   float64 `csv:"mean_dd_improve_vs_avoid"`
}

type symbolBucket struct {
	pairs, failures   int
	flags             []string
	primaryCounts     map[string]int
	deqBH, ddBH       []float64
	deqAvoid, ddAvoid []float64
}

// SymbolFailures groups the episodes of a policy by symbol and flags the
// failing ones. Baseline episodes are paired by index, which matches the
// engine's identically seeded environments; either baseline may be nil.
func SymbolFailures(target, buyHold, avoid []contracts.EpisodeRecord) []SymbolFailureRow {
	buckets := make(map[string]*symbolBucket)

	for i, ep := range target {
		sym := strings.ToUpper(strings.TrimSpace(ep.Symbol))
		if sym == "" || len(ep.EquityCurve) < 2 {
			continue
		}

		b, ok := buckets[sym]
		if !ok {
			b = &symbolBucket{primaryCounts: make(map[string]int)}
			buckets[sym] = b
		}
		b.pairs++

		eq := ep.EquityCurve
		final := eq[len(eq)-1]
		mdd := MaxDrawdown(eq)

		var deqBH, deqAvoid *float64
		if bh, ok := pairedEquity(buyHold, i); ok {
			d := final - bh[len(bh)-1]
			deqBH = &d
			b.deqBH = append(b.deqBH, d)
			b.ddBH = append(b.ddBH, MaxDrawdown(bh)-mdd)
		}
		if av, ok := pairedEquity(avoid, i); ok {
			d := final - av[len(av)-1]
			deqAvoid = &d
			b.deqAvoid = append(b.deqAvoid, d)
			b.ddAvoid = append(b.ddAvoid, MaxDrawdown(av)-mdd)
		}

		peak := stats.Max(eq)
		if peak <= 0 || final >= failureFromPeak*peak {
			continue
		}
		b.failures++

		flags := deriveFlags(eq, deqBH, deqAvoid)
		for _, f := range flags {
			if !contains(b.flags, f) {
				b.flags = append(b.flags, f)
			}
		}
		b.primaryCounts[primaryFlag(flags)]++
	}

	symbols := make([]string, 0, len(buckets))
	for sym := range buckets {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	rows := make([]SymbolFailureRow, 0, len(symbols))
	for _, sym := range symbols {
		b := buckets[sym]
		primary := mostFrequent(b.primaryCounts)
		rows = append(rows, SymbolFailureRow{
			Symbol:                 sym,
			Pairs:                  b.pairs,
			FailRate:               float64(b.failures) / float64(b.pairs),
			Failures:               b.failures,
			Reason:                 flagReasons[primary],
			FailureFlags:           strings.Join(b.flags, "|"),
			PrimaryFlag:            primary,
			MeanDeltaEqVsBuyHold:   meanOrNaN(b.deqBH),
			MeanDDImproveVsBuyHold: meanOrNaN(b.ddBH),
			MeanDeltaEqVsAvoid:     meanOrNaN(b.deqAvoid),
			MeanDDImproveVsAvoid:   meanOrNaN(b.ddAvoid),
		})
	}
	return rows
}

// WriteSymbolFailures writes symbol_failure_summary.csv
func (d *RunDir) WriteSymbolFailures(rows []SymbolFailureRow) error {
	return writeCSV(d.file(SymbolFailureFile), &rows)
}

func pairedEquity(records []contracts.EpisodeRecord, i int) ([]float64, bool) {
	if i >= len(records) || len(records[i].EquityCurve) == 0 {
		return nil, false
	}
	return records[i].EquityCurve, true
}

func deriveFlags(eq []float64, deqBH, deqAvoid *float64) []string {
	var flags []string

	if MaxDrawdown(eq) >= hardDrawdown {
		flags = append(flags, FlagHardDrawdown)
	}

	final := eq[len(eq)-1]
	peak := stats.Max(eq)
	trough := minOf(eq)
	if peak > 0 {
		offPeak := (peak - final) / peak
		nearLows := 1.0
		if peak-trough > 0 {
			nearLows = (final - trough) / (peak - trough)
		}
		if offPeak >= lateCrashOffPeak && nearLows <= lateCrashNearLows {
			flags = append(flags, FlagLateCrash)
		}
	}

	if (deqBH != nil && *deqBH < 0) || (deqAvoid != nil && *deqAvoid < 0) {
		flags = append(flags, FlagLowEdge)
	}

	if len(flags) == 0 {
		flags = append(flags, FlagMissingMeta)
	}
	return flags
}

func primaryFlag(flags []string) string {
	for _, p := range flagPriority {
		if contains(flags, p) {
			return p
		}
	}
	if len(flags) > 0 {
		return flags[0]
	}
	return ""
}

// mostFrequent breaks ties by flag priority
func mostFrequent(counts map[string]int) string {
	best, bestN := "", 0
	for _, f := range flagPriority {
		if counts[f] > bestN {
			best, bestN = f, counts[f]
		}
	}
	return best
}

func meanOrNaN(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stats.Mean(x)
}

func minOf(x []float64) float64 {
	m := math.Inf(1)
	for _, v := range x {
		if v < m {
			m = v
		}
	}
	return m
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
