package env

import "fmt"

// ExposureLevels is the discrete action table: action i sets exposure to ExposureLevels[i]
var ExposureLevels = [...]float64{0.0, 0.25, 0.5, 1.0}

// NumActions is the size of the action space
const NumActions = len(ExposureLevels)

// lookback is the longest return horizon of the observation (r20)
const lookback = 20

// Config is the simulator configuration surface
type Config struct {
	EpisodeLen         int      `json:"episode_len"`
	Warmup             int      `json:"warmup"`
	TransactionCostBps float64  `json:"transaction_cost_bps"`
	DDPenalty          float64  `json:"dd_penalty"`
	Seed               *int64   `json:"seed,omitempty"`    // nil → time-seeded
	Symbols            []string `json:"symbols,omitempty"` // restrict sampling to a pool
	Symbol             string   `json:"symbol,omitempty"`  // force a single symbol
}

// DefaultConfig returns episode_len=252, warmup=30, 5 bps, dd_penalty=0.10
func DefaultConfig() Config {
	return Config{
		EpisodeLen:         252,
		Warmup:             30,
		TransactionCostBps: 5,
		DDPenalty:          0.10,
	}
}

// WithSeed returns a copy of c with an explicit seed
func (c Config) WithSeed(seed int64) Config {
	c.Seed = &seed
	return c
}

func (c Config) validate() error {
	if c.EpisodeLen < 1 {
		return fmt.Errorf("episode_len must be >= 1, got %d", c.EpisodeLen)
	}
	if c.Warmup < 0 {
		return fmt.Errorf("warmup must be >= 0, got %d", c.Warmup)
	}
	if c.TransactionCostBps < 0 {
		return fmt.Errorf("transaction_cost_bps must be >= 0, got %v", c.TransactionCostBps)
	}
	if c.DDPenalty < 0 {
		return fmt.Errorf("dd_penalty must be >= 0, got %v", c.DDPenalty)
	}
	return nil
}

// minStart is the first index with enough history for every lookback feature
func (c Config) minStart() int {
	return c.Warmup + lookback
}
