package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/pkg/logger"
)

func smallConfig(episodeLen int) Config {
	cfg := DefaultConfig()
	cfg.EpisodeLen = episodeLen
	cfg.Warmup = 5
	return cfg
}

func TestTradingEnv_Determinism(t *testing.T) {
	panel := buildPanel(t,
		fakeSeries{symbol: "AAPL", prices: walkPrices(400, 0.7)},
		fakeSeries{symbol: "MSFT", prices: walkPrices(400, 1.3)},
		fakeSeries{symbol: "NVDA", prices: walkPrices(400, 2.1)},
	)
	cfg := seeded(smallConfig(30), 7)

	run := func() ([]ResetInfo, []StepResult) {
		e, err := NewTradingEnv(panel, nil, cfg, logger.Nop())
		require.NoError(t, err)

		var resets []ResetInfo
		var steps []StepResult
		for ep := 0; ep < 5; ep++ {
			_, info, err := e.Reset(ResetOptions{})
			require.NoError(t, err)
			resets = append(resets, info)
			for i := 0; ; i++ {
				res, err := e.Step(i % NumActions)
				require.NoError(t, err)
				steps = append(steps, res)
				if res.Terminated {
					break
				}
			}
		}
		return resets, steps
	}

	resetsA, stepsA := run()
	resetsB, stepsB := run()

	assert.Equal(t, resetsA, resetsB)
	assert.Equal(t, stepsA, stepsB)
}

func TestTradingEnv_ResetSeedReproduces(t *testing.T) {
	panel := buildPanel(t,
		fakeSeries{symbol: "AAPL", prices: walkPrices(300, 0.5)},
		fakeSeries{symbol: "MSFT", prices: walkPrices(300, 0.9)},
	)
	e, err := NewTradingEnv(panel, nil, smallConfig(20), logger.Nop())
	require.NoError(t, err)

	seed := int64(123)
	obsA, infoA, err := e.Reset(ResetOptions{Seed: &seed})
	require.NoError(t, err)
	_, infoNext, err := e.Reset(ResetOptions{})
	require.NoError(t, err)

	obsB, infoB, err := e.Reset(ResetOptions{Seed: &seed})
	require.NoError(t, err)
	_, infoNextB, err := e.Reset(ResetOptions{})
	require.NoError(t, err)

	assert.Equal(t, infoA, infoB)
	assert.Equal(t, obsA, obsB)
	assert.Equal(t, infoNext, infoNextB)
}

func TestTradingEnv_TerminatesAfterEpisodeLen(t *testing.T) {
	const episodeLen = 10
	panel := buildPanel(t, fakeSeries{symbol: "AAPL", prices: walkPrices(200, 1.1)})
	e, err := NewTradingEnv(panel, nil, seeded(smallConfig(episodeLen), 1), logger.Nop())
	require.NoError(t, err)

	_, info, err := e.Reset(ResetOptions{})
	require.NoError(t, err)
	assert.Equal(t, info.StartIdx+episodeLen, info.EndIdx)

	for i := 1; i <= episodeLen; i++ {
		res, err := e.Step(3)
		require.NoError(t, err)
		if i < episodeLen {
			assert.False(t, res.Terminated, "step %d", i)
		} else {
			assert.True(t, res.Terminated)
			assert.Equal(t, Observation{}, res.Observation)
		}
		assert.False(t, res.Truncated)
	}

	_, err = e.Step(0)
	assert.ErrorIs(t, err, contracts.ErrNotReady)
}

func TestTradingEnv_StartRange(t *testing.T) {
	panel := buildPanel(t, fakeSeries{symbol: "AAPL", prices: walkPrices(120, 0.3)})
	cfg := smallConfig(40)
	e, err := NewTradingEnv(panel, nil, seeded(cfg, 5), logger.Nop())
	require.NoError(t, err)

	minStart := cfg.Warmup + 20
	maxStart := 120 - cfg.EpisodeLen - 1
	for i := 0; i < 200; i++ {
		_, info, err := e.Reset(ResetOptions{})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, info.StartIdx, minStart)
		assert.Less(t, info.StartIdx, maxStart)
	}
}

func TestTradingEnv_ShortHistoryFallsBack(t *testing.T) {
	// 40 rows: min_start = 25, max_start = 40-30-1 = 9 → start clamps to 25
	panel := buildPanel(t, fakeSeries{symbol: "AAPL", prices: walkPrices(40, 0.3)})
	e, err := NewTradingEnv(panel, nil, seeded(smallConfig(30), 5), logger.Nop())
	require.NoError(t, err)

	_, info, err := e.Reset(ResetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 25, info.StartIdx)
	assert.Equal(t, 39, info.EndIdx)

	steps := 0
	for {
		res, err := e.Step(1)
		require.NoError(t, err)
		steps++
		if res.Terminated {
			break
		}
	}
	assert.Equal(t, 14, steps)
}

func TestTradingEnv_ConstantPriceZeroReward(t *testing.T) {
	panel := buildPanel(t, fakeSeries{symbol: "FLAT", prices: constantPrices(60, 42)})
	e, err := NewTradingEnv(panel, nil, seeded(smallConfig(5), 3), logger.Nop())
	require.NoError(t, err)

	obs, _, err := e.Reset(ResetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, obs.Exposure())

	for i := 0; i < 5; i++ {
		res, err := e.Step(0)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Reward)
		assert.Equal(t, 1.0, res.Info.Equity)
		assert.Equal(t, i == 4, res.Terminated)
	}
}

func TestTradingEnv_ForcedSymbol(t *testing.T) {
	panel := buildPanel(t,
		fakeSeries{symbol: "AAPL", prices: walkPrices(200, 0.4)},
		fakeSeries{symbol: "MSFT", prices: walkPrices(200, 0.8)},
		fakeSeries{symbol: "NVDA", prices: walkPrices(200, 1.2)},
	)
	cfg := seeded(smallConfig(20), 11)
	cfg.Symbol = "AAPL"

	e, err := NewTradingEnv(panel, nil, cfg, logger.Nop())
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, info, err := e.Reset(ResetOptions{})
		require.NoError(t, err)
		assert.Equal(t, "AAPL", info.Symbol)
	}
}

func TestTradingEnv_SymbolOverrides(t *testing.T) {
	panel := buildPanel(t,
		fakeSeries{symbol: "AAPL", prices: walkPrices(200, 0.4)},
		fakeSeries{symbol: "MSFT", prices: walkPrices(200, 0.8)},
		fakeSeries{symbol: "NVDA", prices: walkPrices(200, 1.2)},
	)

	t.Run("pool restricts sampling", func(t *testing.T) {
		cfg := seeded(smallConfig(20), 2)
		cfg.Symbols = []string{"MSFT", "NVDA", "TSLA"}
		e, err := NewTradingEnv(panel, nil, cfg, logger.Nop())
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			_, info, err := e.Reset(ResetOptions{})
			require.NoError(t, err)
			assert.Contains(t, []string{"MSFT", "NVDA"}, info.Symbol)
		}
	})

	t.Run("unknown forced symbol falls back", func(t *testing.T) {
		cfg := seeded(smallConfig(20), 2)
		cfg.Symbol = "TSLA"
		e, err := NewTradingEnv(panel, nil, cfg, logger.Nop())
		require.NoError(t, err)

		seen := map[string]bool{}
		for i := 0; i < 60; i++ {
			_, info, err := e.Reset(ResetOptions{})
			require.NoError(t, err)
			seen[info.Symbol] = true
		}
		assert.Len(t, seen, 3)
	})

	t.Run("unknown reset symbol keeps configured symbol", func(t *testing.T) {
		cfg := seeded(smallConfig(20), 2)
		cfg.Symbol = "AAPL"
		e, err := NewTradingEnv(panel, nil, cfg, logger.Nop())
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			_, info, err := e.Reset(ResetOptions{Symbol: "ZZZ"})
			require.NoError(t, err)
			assert.Equal(t, "AAPL", info.Symbol)
		}
	})

	t.Run("reset override wins over configured pool", func(t *testing.T) {
		cfg := seeded(smallConfig(20), 2)
		cfg.Symbols = []string{"MSFT"}
		e, err := NewTradingEnv(panel, nil, cfg, logger.Nop())
		require.NoError(t, err)

		_, info, err := e.Reset(ResetOptions{Symbol: "NVDA"})
		require.NoError(t, err)
		assert.Equal(t, "NVDA", info.Symbol)

		_, info, err = e.Reset(ResetOptions{Symbols: []string{"AAPL"}})
		require.NoError(t, err)
		assert.Equal(t, "AAPL", info.Symbol)

		_, info, err = e.Reset(ResetOptions{})
		require.NoError(t, err)
		assert.Equal(t, "MSFT", info.Symbol)
	})
}

func TestTradingEnv_UniverseFiltering(t *testing.T) {
	panel := buildPanel(t,
		fakeSeries{symbol: "AAPL", prices: walkPrices(200, 0.4)},
		fakeSeries{symbol: "TINY", prices: walkPrices(10, 0.4)},
	)

	e, err := NewTradingEnv(panel, &contracts.Universe{Symbols: []string{"GONE", "TINY", "AAPL"}}, smallConfig(20), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, e.Symbols())

	_, err = NewTradingEnv(panel, &contracts.Universe{Symbols: []string{"GONE"}}, smallConfig(20), logger.Nop())
	assert.ErrorIs(t, err, contracts.ErrEmptyPool)
}

func TestTradingEnv_TransactionCost(t *testing.T) {
	panel := buildPanel(t, fakeSeries{symbol: "AAPL", prices: walkPrices(200, 0.9)})
	cfg := seeded(smallConfig(20), 4)
	cfg.TransactionCostBps = 7

	e, err := NewTradingEnv(panel, nil, cfg, logger.Nop())
	require.NoError(t, err)
	_, _, err = e.Reset(ResetOptions{})
	require.NoError(t, err)

	res, err := e.Step(3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Info.Turnover)
	assert.InDelta(t, 1.0*7/10000, res.Info.TransactionCost, 1e-15)

	res, err = e.Step(3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Info.Turnover)
	assert.Equal(t, 0.0, res.Info.TransactionCost)

	res, err = e.Step(1)
	require.NoError(t, err)
	assert.Equal(t, 0.75, res.Info.Turnover)
	assert.InDelta(t, 0.75*7/10000, res.Info.TransactionCost, 1e-15)
}

func TestTradingEnv_TransactionCostIndependentOfReturn(t *testing.T) {
	panel := buildPanel(t, fakeSeries{symbol: "FLAT", prices: constantPrices(80, 10)})
	e, err := NewTradingEnv(panel, nil, seeded(smallConfig(10), 4), logger.Nop())
	require.NoError(t, err)
	_, _, err = e.Reset(ResetOptions{})
	require.NoError(t, err)

	res, err := e.Step(3)
	require.NoError(t, err)
	assert.InDelta(t, -5.0/10000, res.Info.PortfolioReturn, 1e-15)
	assert.InDelta(t, 1-5.0/10000, res.Info.Equity, 1e-15)
}

func TestTradingEnv_PeakMonotonic(t *testing.T) {
	panel := buildPanel(t, fakeSeries{symbol: "AAPL", prices: walkPrices(500, 0.37)})
	e, err := NewTradingEnv(panel, nil, seeded(smallConfig(200), 9), logger.Nop())
	require.NoError(t, err)
	_, _, err = e.Reset(ResetOptions{})
	require.NoError(t, err)

	peak := 1.0
	for i := 0; ; i++ {
		res, err := e.Step((i / 7) % NumActions)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Info.Peak, peak)
		assert.GreaterOrEqual(t, res.Info.Peak, res.Info.Equity)
		assert.GreaterOrEqual(t, res.Info.Drawdown, 0.0)
		peak = res.Info.Peak
		if res.Terminated {
			break
		}
	}
}

func TestTradingEnv_EarningsPenalty(t *testing.T) {
	// price drops 10% every day from index 25 on
	prices := constantPrices(60, 100)
	for i := 26; i < len(prices); i++ {
		prices[i] = prices[i-1] * 0.9
	}
	window := make([]bool, 60)
	window[25] = true

	panel := buildPanel(t,
		fakeSeries{symbol: "EARN", prices: prices, window: window},
		fakeSeries{symbol: "PLAIN", prices: prices},
	)
	// 60 rows with episode_len 40 leave no start range: start = warmup + 20 = 25
	cfg := smallConfig(40)
	cfg.TransactionCostBps = 0

	rewardFor := func(symbol string) StepResult {
		c := seeded(cfg, 1)
		c.Symbol = symbol
		e, err := NewTradingEnv(panel, nil, c, logger.Nop())
		require.NoError(t, err)
		_, info, err := e.Reset(ResetOptions{})
		require.NoError(t, err)
		require.Equal(t, 25, info.StartIdx)

		res, err := e.Step(3)
		require.NoError(t, err)
		return res
	}

	earn := rewardFor("EARN")
	plain := rewardFor("PLAIN")

	assert.InDelta(t, -0.1, earn.Info.PortfolioReturn, 1e-12)
	assert.InDelta(t, 0.1, earn.Info.Drawdown, 1e-12)
	assert.InDelta(t, -0.1-0.10*0.1, plain.Reward, 1e-12)
	assert.InDelta(t, -0.1-3*0.10*0.1, earn.Reward, 1e-12)

	// the flag belongs to the priced row, not to the next observation
	assert.True(t, earn.Info.EarningsWindow)
	assert.False(t, earn.Observation.InEarningsWindow())
	assert.False(t, plain.Info.EarningsWindow)
}

func TestTradingEnv_Errors(t *testing.T) {
	panel := buildPanel(t, fakeSeries{symbol: "AAPL", prices: walkPrices(100, 1)})
	e, err := NewTradingEnv(panel, nil, seeded(smallConfig(10), 1), logger.Nop())
	require.NoError(t, err)

	_, err = e.Step(0)
	assert.ErrorIs(t, err, contracts.ErrNotReady)

	_, _, err = e.Reset(ResetOptions{})
	require.NoError(t, err)

	for _, action := range []int{-1, 4, 100} {
		_, err = e.Step(action)
		assert.ErrorIs(t, err, contracts.ErrInvalidAction)
	}

	_, err = e.Step(0)
	assert.NoError(t, err, "invalid actions must not advance the episode")

	_, err = NewTradingEnv(nil, nil, DefaultConfig(), logger.Nop())
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.EpisodeLen = 0
	_, err = NewTradingEnv(panel, nil, bad, logger.Nop())
	assert.Error(t, err)
}
