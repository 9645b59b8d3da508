package backtest

import (
	"math"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/pkg/stats"
)

// tradingDays annualizes daily statistics
const tradingDays = 252

// Summarize aggregates final equity and max drawdown over episodes
func Summarize(records []contracts.EpisodeRecord) contracts.PolicySummary {
	finals := make([]float64, 0, len(records))
	mdds := make([]float64, 0, len(records))
	for _, r := range records {
		finals = append(finals, r.FinalEquity)
		mdds = append(mdds, r.MaxDrawdown)
	}

	return contracts.PolicySummary{
		Episodes:          len(records),
		MeanFinalEquity:   stats.Mean(finals),
		MedianFinalEquity: stats.Median(finals),
		MeanMaxDrawdown:   stats.Mean(mdds),
		MedianMaxDrawdown: stats.Median(mdds),
	}
}

// EpisodeRisk holds risk statistics derived from one equity curve
type EpisodeRisk struct {
	TotalReturn  float64 `json:"total_return"`
	Volatility   float64 `json:"volatility"` // annualized
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}

// RiskSummary averages EpisodeRisk over episodes
type RiskSummary struct {
	MeanTotalReturn  float64  `json:"mean_total_return"`
	MeanVolatility   float64  `json:"mean_volatility"`
	MeanSharpeRatio  float64  `json:"mean_sharpe_ratio"`
	MeanSortinoRatio float64  `json:"mean_sortino_ratio"`
	StepTail         TailRisk `json:"step_tail"`    // pooled per-step returns
	EpisodeTail      TailRisk `json:"episode_tail"` // final_equity - 1 per episode
}

// CalculateRisk computes risk statistics from an equity curve (zero risk-free rate)
func CalculateRisk(equity []float64) EpisodeRisk {
	var risk EpisodeRisk
	if len(equity) < 2 {
		return risk
	}

	first, last := equity[0], equity[len(equity)-1]
	if first != 0 {
		risk.TotalReturn = last/first - 1
	}

	returns := dailyReturns(equity)
	mean := stats.Mean(returns)

	risk.Volatility = calculateVolatility(returns) * math.Sqrt(tradingDays)
	if risk.Volatility > 0 {
		risk.SharpeRatio = mean * tradingDays / risk.Volatility
	}

	// Sortino Ratio (downside deviation)
	downside := make([]float64, 0)
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	downsideDeviation := calculateVolatility(downside) * math.Sqrt(tradingDays)
	if downsideDeviation > 0 {
		risk.SortinoRatio = mean * tradingDays / downsideDeviation
	}

	risk.MaxDrawdown = MaxDrawdown(equity)
	return risk
}

// SummarizeRisk averages the risk statistics of every episode
func SummarizeRisk(records []contracts.EpisodeRecord) RiskSummary {
	var totals, vols, sharpes, sortinos, steps []float64
	for _, r := range records {
		steps = append(steps, dailyReturns(r.EquityCurve)...)
		risk := CalculateRisk(r.EquityCurve)
		totals = append(totals, risk.TotalReturn)
		vols = append(vols, risk.Volatility)
		sharpes = append(sharpes, risk.SharpeRatio)
		sortinos = append(sortinos, risk.SortinoRatio)
	}

	return RiskSummary{
		MeanTotalReturn:  stats.Mean(totals),
		MeanVolatility:   stats.Mean(vols),
		MeanSharpeRatio:  stats.Mean(sharpes),
		MeanSortinoRatio: stats.Mean(sortinos),
		StepTail:         HistoricalVaR(steps, TailConfidence),
		EpisodeTail:      HistoricalVaR(totals, TailConfidence),
	}
}

func dailyReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	return returns
}

// calculateVolatility calculates population standard deviation
func calculateVolatility(returns []float64) float64 {
	return stats.PopStdDev(returns)
}

// MaxDrawdown is the largest peak-to-trough decline of an equity curve,
// as a positive fraction of the running peak (peak starts at the first value).
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := equity[0]

	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}

		drawdown := (peak - v) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return maxDrawdown
}
