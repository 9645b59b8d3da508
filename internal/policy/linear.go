package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/env"
)

// LinearModel scores each action as weights[a]·obs + bias[a] and picks the
// highest score (lowest index on ties). Sentinel earnings distances are fed
// as-is; the trainer is expected to have seen the same encoding.
type LinearModel struct {
	Weights [env.NumActions][env.ObservationSize]float64 `json:"weights"`
	Bias    [env.NumActions]float64                      `json:"bias"`
}

// linearFile is the on-disk shape, decoded loosely so dimensions can be checked
type linearFile struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// ModelProducer is the command that writes a model artifact
const ModelProducer = "edge policy init"

// LoadLinear reads a linear model artifact. A missing file is an ArtifactError
// naming the command that writes it.
func LoadLinear(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &contracts.ArtifactError{Path: path, Producer: ModelProducer}
		}
		return nil, fmt.Errorf("read model: %w", err)
	}

	var raw linearFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}

	if len(raw.Weights) != env.NumActions {
		return nil, fmt.Errorf("model %s: want %d weight rows, got %d", path, env.NumActions, len(raw.Weights))
	}
	if raw.Bias != nil && len(raw.Bias) != env.NumActions {
		return nil, fmt.Errorf("model %s: want %d biases, got %d", path, env.NumActions, len(raw.Bias))
	}

	m := &LinearModel{}
	for a, row := range raw.Weights {
		if len(row) != env.ObservationSize {
			return nil, fmt.Errorf("model %s: weight row %d has %d values, want %d", path, a, len(row), env.ObservationSize)
		}
		for i, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("model %s: weight [%d][%d] is not finite", path, a, i)
			}
		}
		copy(m.Weights[a][:], row)
	}
	copy(m.Bias[:], raw.Bias)

	return m, nil
}

// AvoidEarningsModel returns a linear model that reproduces AvoidEarnings:
// the earnings flag pushes the flat action above the fully invested one.
func AvoidEarningsModel() *LinearModel {
	m := &LinearModel{}
	m.Bias[ActionFull] = 0.5
	m.Weights[ActionFlat][env.ObsEarningsFlag] = 1
	return m
}

// Save writes the model in the format LoadLinear reads
func (m *LinearModel) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// Scores returns the per-action scores
func (m *LinearModel) Scores(obs env.Observation) [env.NumActions]float64 {
	var scores [env.NumActions]float64
	for a := range scores {
		s := m.Bias[a]
		for i, x := range obs {
			s += m.Weights[a][i] * x
		}
		scores[a] = s
	}
	return scores
}

// Predict returns the greedy action
func (m *LinearModel) Predict(obs env.Observation) int {
	scores := m.Scores(obs)
	best := 0
	for a := 1; a < len(scores); a++ {
		if scores[a] > scores[best] {
			best = a
		}
	}
	return best
}
