package env

import (
	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/pkg/stats"
)

// Observation indices
const (
	ObsReturn1 = iota
	ObsReturn5
	ObsReturn20
	ObsVol10
	ObsVol20
	ObsVolumeZScore
	ObsDaysToEarnings
	ObsDaysSinceEarnings
	ObsEarningsFlag
	ObsExposure

	ObservationSize
)

// Observation is the fixed-length feature vector handed to a policy
type Observation [ObservationSize]float64

// ObservationNames label each index, in order
var ObservationNames = [ObservationSize]string{
	"r1", "r5", "r20", "vol10", "vol20", "volume_zscore",
	"days_to_earnings", "days_since_earnings", "is_earnings_window", "exposure",
}

// InEarningsWindow reports the earnings flag of the observation
func (o Observation) InEarningsWindow() bool {
	return o[ObsEarningsFlag] >= 0.5
}

// Exposure returns the exposure the previous action set
func (o Observation) Exposure() float64 {
	return o[ObsExposure]
}

// Slice returns the observation as a slice
func (o Observation) Slice() []float64 {
	return o[:]
}

const (
	// epsilon replaces a zero denominator
	epsilon = 1e-12

	// trailing window (in rows) for volatility and volume features
	featureWindow = 60

	// minimum returns for vol10/vol20, minimum rows for the volume z-score
	minVolReturns   = 25
	minVolumeWindow = 10
)

// guard returns d, or epsilon when d is exactly zero
func guard(d float64) float64 {
	if d == 0 {
		return epsilon
	}
	return d
}

// featuresAt computes the observation at idx. idx must be >= lookback.
func featuresAt(s *s0_data.Series, idx int, exposure float64) Observation {
	px := s.AdjClose

	var obs Observation
	obs[ObsReturn1] = px[idx]/guard(px[idx-1]) - 1
	obs[ObsReturn5] = px[idx]/guard(px[idx-5]) - 1
	obs[ObsReturn20] = px[idx]/guard(px[idx-20]) - 1

	lo := idx - featureWindow
	if lo < 0 {
		lo = 0
	}

	window := px[lo : idx+1]
	if len(window)-1 >= minVolReturns {
		rets := make([]float64, len(window)-1)
		for i := 1; i < len(window); i++ {
			rets[i-1] = window[i]/guard(window[i-1]) - 1
		}
		obs[ObsVol10] = stats.PopStdDev(rets[len(rets)-10:])
		obs[ObsVol20] = stats.PopStdDev(rets[len(rets)-20:])
	}

	volumes := s.Volume[lo : idx+1]
	if len(volumes) >= minVolumeWindow {
		mean, std := stats.PopMeanStdDev(volumes)
		obs[ObsVolumeZScore] = (s.Volume[idx] - mean) / (std + epsilon)
	}

	row := s.Rows[idx]
	obs[ObsDaysToEarnings] = float64(row.DaysToEarnings)
	obs[ObsDaysSinceEarnings] = float64(row.DaysSinceEarnings)
	if row.IsEarningsWindow {
		obs[ObsEarningsFlag] = 1
	}
	obs[ObsExposure] = exposure

	return obs
}
