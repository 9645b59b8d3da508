package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements backtest.Metrics using Prometheus.
type Recorder struct {
	episodesTotal *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	stepReward    *prometheus.HistogramVec
	finalEquity   *prometheus.HistogramVec
	maxDrawdown   *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg (tests pass a fresh registry).
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		episodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_episodes_total",
				Help: "Total number of completed episodes",
			},
			[]string{"policy"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_steps_total",
				Help: "Total number of simulator steps",
			},
			[]string{"policy"},
		),
		stepReward: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_step_reward",
				Help:    "Per-step reward",
				Buckets: []float64{-0.1, -0.05, -0.02, -0.01, -0.005, 0, 0.005, 0.01, 0.02, 0.05, 0.1},
			},
			[]string{"policy"},
		),
		finalEquity: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_episode_final_equity",
				Help:    "Final equity of completed episodes",
				Buckets: []float64{0.5, 0.7, 0.8, 0.9, 0.95, 1, 1.05, 1.1, 1.2, 1.5, 2},
			},
			[]string{"policy"},
		),
		maxDrawdown: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_episode_max_drawdown",
				Help:    "Max drawdown of completed episodes",
				Buckets: []float64{0.01, 0.02, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5},
			},
			[]string{"policy"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordStep records one simulator step.
func (r *Recorder) RecordStep(policy string, reward float64) {
	r.stepsTotal.WithLabelValues(policy).Inc()
	r.stepReward.WithLabelValues(policy).Observe(reward)
}

// RecordEpisode records a completed episode.
func (r *Recorder) RecordEpisode(policy string, finalEquity, maxDrawdown float64) {
	r.episodesTotal.WithLabelValues(policy).Inc()
	r.finalEquity.WithLabelValues(policy).Observe(finalEquity)
	r.maxDrawdown.WithLabelValues(policy).Observe(maxDrawdown)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
