// Package env implements the single-asset episode simulator.
//
// A TradingEnv samples a symbol and a start index from the shared read-only
// panel, then advances one trading day per Step, applying the chosen exposure
// level to the next-day return, charging a flat cost on exposure changes and
// penalizing drawdown (three times harder inside an earnings window).
package env

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/pkg/logger"
)

// earningsPenaltyMultiplier scales the drawdown penalty inside an earnings window
const earningsPenaltyMultiplier = 3.0

type phase int

const (
	phaseUninitialized phase = iota
	phaseReady
	phaseTerminated
)

// ResetOptions overrides sampling for one reset. Zero values keep the
// environment's configured behavior.
type ResetOptions struct {
	Seed    *int64   // reseed the generator before sampling
	Symbol  string   // force this symbol (ignored when not in the pool of known symbols)
	Symbols []string // sample from this pool (unknown symbols dropped)
}

// ResetInfo describes the sampled episode
type ResetInfo struct {
	Symbol   string `json:"symbol"`
	StartIdx int    `json:"start_idx"`
	EndIdx   int    `json:"end_idx"`
}

// StepInfo is the accounting detail of one step
type StepInfo struct {
	Symbol          string  `json:"symbol"`
	Equity          float64 `json:"equity"`
	Exposure        float64 `json:"exposure"`
	Turnover        float64 `json:"turnover"`
	PortfolioReturn float64 `json:"port_r"`
	TransactionCost float64 `json:"transaction_cost"`
	Drawdown        float64 `json:"drawdown"`
	Peak            float64 `json:"peak"`
	T               int     `json:"t"`
	// EarningsWindow is the flag of the row the step was priced from, the
	// one that decides the drawdown penalty weight
	EarningsWindow bool `json:"earnings_window"`
}

// StepResult is what Step returns. Truncated is always false.
type StepResult struct {
	Observation Observation `json:"observation"`
	Reward      float64     `json:"reward"`
	Terminated  bool        `json:"terminated"`
	Truncated   bool        `json:"truncated"`
	Info        StepInfo    `json:"info"`
}

// episodeState is owned by one TradingEnv and replaced on every reset
type episodeState struct {
	symbol   string
	series   *s0_data.Series
	t        int
	start    int
	end      int
	exposure float64
	equity   float64
	peak     float64
}

// TradingEnv is the episode simulator. It is not safe for concurrent use;
// run one instance per goroutine over a shared panel.
type TradingEnv struct {
	panel  *s0_data.Panel
	config Config
	logger *logger.Logger

	symbols  []string // default sampling pool, universe order
	known    map[string]struct{}
	pool     []string // configured pool override (filtered)
	symbol   string   // configured single-symbol override (filtered)
	rng      *rand.Rand
	phase    phase
	state    episodeState
	episodes int
}

// NewTradingEnv builds an environment over panel. When universe is nil every
// panel symbol is eligible; otherwise universe symbols missing from the panel
// are ignored. Symbols without enough history for a single step are excluded.
func NewTradingEnv(panel *s0_data.Panel, universe *contracts.Universe, cfg Config, log *logger.Logger) (*TradingEnv, error) {
	if panel == nil {
		return nil, fmt.Errorf("new trading env: nil panel")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("new trading env: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	candidates := panel.Symbols()
	if universe != nil {
		candidates = universe.Symbols
	}

	e := &TradingEnv{
		panel:  panel,
		config: cfg,
		logger: log.Module("env"),
		known:  make(map[string]struct{}),
	}

	minRows := cfg.minStart() + 2
	var missing, short int
	for _, sym := range candidates {
		if _, dup := e.known[sym]; dup {
			continue
		}
		series, ok := panel.Series(sym)
		if !ok {
			missing++
			continue
		}
		if series.Len() < minRows {
			short++
			continue
		}
		e.known[sym] = struct{}{}
		e.symbols = append(e.symbols, sym)
	}

	if missing > 0 || short > 0 {
		e.logger.WithFields(map[string]interface{}{
			"not_in_panel":  missing,
			"short_history": short,
			"min_rows":      minRows,
		}).Warn("Ignoring unusable symbols")
	}
	if len(e.symbols) == 0 {
		return nil, fmt.Errorf("new trading env: %w", contracts.ErrEmptyPool)
	}

	e.pool = e.filterPool(cfg.Symbols)
	e.symbol = e.filterSymbol(cfg.Symbol)

	if cfg.Seed != nil {
		e.rng = rand.New(rand.NewSource(*cfg.Seed))
	} else {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return e, nil
}

// filterPool keeps the known symbols of pool; an empty result means "no override"
func (e *TradingEnv) filterPool(pool []string) []string {
	if len(pool) == 0 {
		return nil
	}
	out := make([]string, 0, len(pool))
	for _, sym := range pool {
		if _, ok := e.known[sym]; ok {
			out = append(out, sym)
		}
	}
	if len(out) == 0 {
		e.logger.WithField("requested", len(pool)).Warn("No requested symbol is available; sampling from the universe")
		return nil
	}
	return out
}

// filterSymbol returns sym when known, otherwise "" (default sampling)
func (e *TradingEnv) filterSymbol(sym string) string {
	if sym == "" {
		return ""
	}
	if _, ok := e.known[sym]; !ok {
		e.logger.WithField("symbol", sym).Warn("Forced symbol is not available; sampling instead")
		return ""
	}
	return sym
}

// Symbols returns the default sampling pool
func (e *TradingEnv) Symbols() []string {
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// Config returns the environment configuration
func (e *TradingEnv) Config() Config {
	return e.config
}

// Episodes returns how many resets have happened
func (e *TradingEnv) Episodes() int {
	return e.episodes
}

// Reset samples a new episode and returns the observation at its start index.
//
// Symbol priority: the per-reset symbol, the configured symbol, the pool
// override, then the default pool. An unknown symbol is skipped, not fatal.
// The start is drawn uniformly from [warmup+20, n-episode_len-1); when that
// range is empty the start falls back to warmup+20. The episode ends at
// start+episode_len, or at the last row for a symbol too short to hold it;
// such an episode terminates after fewer than episode_len steps.
func (e *TradingEnv) Reset(opts ResetOptions) (Observation, ResetInfo, error) {
	if opts.Seed != nil {
		e.rng = rand.New(rand.NewSource(*opts.Seed))
	}

	symbol := e.symbol
	pool := e.pool
	if forced := e.filterSymbol(opts.Symbol); forced != "" {
		symbol = forced
	}
	if len(opts.Symbols) > 0 {
		pool = e.filterPool(opts.Symbols)
	}

	switch {
	case symbol != "":
	case len(pool) > 0:
		symbol = pool[e.rng.Intn(len(pool))]
	default:
		symbol = e.symbols[e.rng.Intn(len(e.symbols))]
	}

	series, _ := e.panel.Series(symbol)
	n := series.Len()

	minStart := e.config.minStart()
	maxStart := n - e.config.EpisodeLen - 1
	start := minStart
	if maxStart > minStart {
		start = minStart + e.rng.Intn(maxStart-minStart)
	}

	end := start + e.config.EpisodeLen
	if end > n-1 {
		end = n - 1
	}

	e.state = episodeState{
		symbol:   symbol,
		series:   series,
		t:        start,
		start:    start,
		end:      end,
		exposure: 0,
		equity:   1,
		peak:     1,
	}
	e.phase = phaseReady
	e.episodes++

	e.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"start":  start,
		"end":    end,
	}).Debug("Episode reset")

	info := ResetInfo{Symbol: symbol, StartIdx: start, EndIdx: end}
	return featuresAt(series, start, 0), info, nil
}

// Step applies action (an index into ExposureLevels) for one trading day.
// It fails with ErrNotReady before the first Reset or after termination and
// with ErrInvalidAction for an index outside the table.
func (e *TradingEnv) Step(action int) (StepResult, error) {
	if e.phase != phaseReady {
		return StepResult{}, fmt.Errorf("step: %w (reset required)", contracts.ErrNotReady)
	}
	if action < 0 || action >= NumActions {
		return StepResult{}, fmt.Errorf("step: %w: %d (want 0..%d)", contracts.ErrInvalidAction, action, NumActions-1)
	}

	s := &e.state
	px := s.series.AdjClose

	prevExposure := s.exposure
	s.exposure = ExposureLevels[action]

	turnover := math.Abs(s.exposure - prevExposure)
	tc := e.config.TransactionCostBps / 10000.0 * turnover

	r := px[s.t+1]/guard(px[s.t]) - 1
	portR := s.exposure*r - tc

	s.equity *= 1 + portR
	s.peak = math.Max(s.peak, s.equity)
	dd := 0.0
	if s.peak > 0 {
		dd = (s.peak - s.equity) / s.peak
	}

	inWindow := s.series.Rows[s.t].IsEarningsWindow
	weight := e.config.DDPenalty
	if inWindow {
		weight *= earningsPenaltyMultiplier
	}
	reward := portR - weight*dd

	s.t++
	terminated := s.t >= s.end

	var obs Observation
	if terminated {
		e.phase = phaseTerminated
	} else {
		obs = featuresAt(s.series, s.t, s.exposure)
	}

	return StepResult{
		Observation: obs,
		Reward:      reward,
		Terminated:  terminated,
		Truncated:   false,
		Info: StepInfo{
			Symbol:          s.symbol,
			Equity:          s.equity,
			Exposure:        s.exposure,
			Turnover:        turnover,
			PortfolioReturn: portR,
			TransactionCost: tc,
			Drawdown:        dd,
			Peak:            s.peak,
			T:               s.t,
			EarningsWindow:  inWindow,
		},
	}, nil
}
