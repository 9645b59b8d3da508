package backtest

import (
	"math"
	"sort"
)

// TailConfidence is the confidence level of the reported VaR/CVaR
const TailConfidence = 0.95

// TailRisk holds historical VaR and CVaR.
// ⭐ SSOT: 손실을 양수로 표현 (VaR=0.05 → 5% 손실 가능)
type TailRisk struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"` // mean loss at or beyond VaR
}

// HistoricalVaR reads VaR at the (1-confidence) quantile of returns and CVaR as
// the mean of the tail up to that index. Gains report zero loss.
func HistoricalVaR(returns []float64, confidence float64) TailRisk {
	risk := TailRisk{Confidence: confidence}

	sorted := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return risk
	}
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	risk.VaR = lossOf(sorted[idx])

	var sum float64
	for _, r := range sorted[:idx+1] {
		sum += r
	}
	risk.CVaR = lossOf(sum / float64(idx+1))
	return risk
}

func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}
