// Package stats holds the small set of descriptive statistics shared by the
// simulator, the universe selector and the evaluation summaries.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// PopStdDev returns the population standard deviation (divide by N), 0 for an empty slice
func PopStdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(x, nil)
	return math.Sqrt(variance)
}

// PopMeanStdDev returns mean and population standard deviation in one pass
func PopMeanStdDev(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(x, nil)
	return mean, math.Sqrt(variance)
}

// Median averages the two middle values for even lengths; x is not modified
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, x)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Max returns the largest value, 0 for an empty slice
func Max(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
