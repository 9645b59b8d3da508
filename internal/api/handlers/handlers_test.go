package handlers

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/earningsedge/internal/backtest"
	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/env"
	"github.com/wonny/earningsedge/internal/policy"
	"github.com/wonny/earningsedge/internal/s0_data"
	"github.com/wonny/earningsedge/pkg/config"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/redis"
)

func testCache(t *testing.T) *redis.Cache {
	t.Helper()
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)
	return redis.NewCache(client, "test")
}

func testPanel(t *testing.T, symbols ...string) *s0_data.Panel {
	t.Helper()

	var rows []contracts.FeatureRow
	start := contracts.MustDate("2021-01-04")
	for k, sym := range symbols {
		p := 50.0
		for i := 0; i < 120; i++ {
			p *= 1 + 0.015*math.Sin(float64(i+k)*0.7) + 0.0005
			row := contracts.FeatureRow{
				Symbol:            sym,
				Date:              contracts.NewDate(start.AddDate(0, 0, i)),
				AdjustedClose:     p,
				Close:             p,
				Volume:            1000,
				DaysToEarnings:    contracts.NoEarnings,
				DaysSinceEarnings: contracts.NoEarnings,
			}
			if i%30 < 4 {
				row.IsEarningsWindow = true
				row.DaysToEarnings = 0
				row.DaysSinceEarnings = 0
			}
			rows = append(rows, row)
		}
	}

	panel, err := s0_data.NewPanel(rows)
	require.NoError(t, err)
	return panel
}

func newSimulateHandler(t *testing.T) *SimulateHandler {
	t.Helper()
	panel := testPanel(t, "AAA", "BBB")

	cfg := env.DefaultConfig()
	cfg.EpisodeLen = 20
	cfg.Warmup = 5

	return NewSimulateHandler(SimulateDeps{
		Panels: env.NewPanelCache(func(string) (*s0_data.Panel, error) {
			return panel, nil
		}),
		PanelPath: "panel.csv",
		Defaults:  cfg,
		Registry:  policy.NewRegistry(),
		Cache:     testCache(t),
		Logger:    logger.Nop(),
	})
}

func postSimulate(t *testing.T, h *SimulateHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Simulate(rec, req)
	return rec
}

func TestSimulate_SeededIsReproducible(t *testing.T) {
	h := newSimulateHandler(t)

	var first, second contracts.EpisodeRecord
	rec := postSimulate(t, h, `{"policy":"buy_hold","seed":7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = postSimulate(t, h, `{"policy":"buy_hold","seed":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	assert.Equal(t, first, second)
	assert.Len(t, first.EquityCurve, 21)
	assert.Equal(t, 1.0, first.EquityCurve[0])
	assert.Contains(t, []string{"AAA", "BBB"}, first.Symbol)
}

func TestSimulate_DefaultsAndOverrides(t *testing.T) {
	h := newSimulateHandler(t)

	rec := postSimulate(t, h, `{"seed":1,"symbol":"BBB","episode_len":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var record contracts.EpisodeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "BBB", record.Symbol)
	assert.Len(t, record.EquityCurve, 11)
}

func TestSimulate_FlatStaysAtOne(t *testing.T) {
	h := newSimulateHandler(t)

	rec := postSimulate(t, h, `{"policy":"flat"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var record contracts.EpisodeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	for _, eq := range record.EquityCurve {
		assert.Equal(t, 1.0, eq)
	}
	assert.Equal(t, 0.0, record.MaxDrawdown)
}

func TestSimulate_BadRequests(t *testing.T) {
	h := newSimulateHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"policy":`},
		{"unknown policy", `{"policy":"yolo"}`},
		{"negative episode_len", `{"episode_len":-1}`},
		{"episode_len too long", `{"episode_len":100000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postSimulate(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, "bad_request", body.Code)
		})
	}
}

func TestRequestFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/ws/episode?policy=flat&seed=3&symbol=AAA&episode_len=5", nil)
	req, err := requestFromQuery(r)
	require.NoError(t, err)
	assert.Equal(t, "flat", req.Policy)
	require.NotNil(t, req.Seed)
	assert.Equal(t, int64(3), *req.Seed)
	assert.Equal(t, "AAA", req.Symbol)
	assert.Equal(t, 5, req.EpisodeLen)

	r = httptest.NewRequest(http.MethodGet, "/api/ws/episode?seed=abc", nil)
	_, err = requestFromQuery(r)
	assert.Error(t, err)

	r = httptest.NewRequest(http.MethodGet, "/api/ws/episode", nil)
	req, err = requestFromQuery(r)
	require.NoError(t, err)
	assert.Equal(t, "avoid_earnings", req.Policy)
	assert.Nil(t, req.Seed)
}

func TestStreamEpisode(t *testing.T) {
	h := newSimulateHandler(t)
	srv := httptest.NewServer(http.HandlerFunc(h.StreamEpisode))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?policy=buy_hold&seed=11&episode_len=8"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	steps := 0
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &head))

		if head.Type == "step" {
			var msg StepMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			steps++
			assert.Equal(t, steps, msg.Step)
			assert.Equal(t, policy.ActionFull, msg.Action)
			assert.Equal(t, steps == 8, msg.Done)
			assert.Equal(t, msg.Info.EarningsWindow, msg.InWindow)
			continue
		}

		require.Equal(t, "episode", head.Type, string(data))
		var msg struct {
			Record contracts.EpisodeRecord `json:"record"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Len(t, msg.Record.EquityCurve, 9)
		break
	}
	assert.Equal(t, 8, steps)
}

func TestStreamEpisode_BadQuery(t *testing.T) {
	h := newSimulateHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ws/episode?episode_len=x", nil)
	rec := httptest.NewRecorder()
	h.StreamEpisode(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func writeRun(t *testing.T, root, name string) {
	t.Helper()
	dir, err := backtest.NewRunDir(filepath.Join(root, name))
	require.NoError(t, err)
	require.NoError(t, dir.WriteCurves("buy_hold", []contracts.EpisodeRecord{
		{Symbol: "AAA", FinalEquity: 1.1, MaxDrawdown: 0.05, EquityCurve: []float64{1, 1.05, 1.1}, DrawdownCurve: []float64{0, 0, 0}},
		{Symbol: "BBB", FinalEquity: 0.9, MaxDrawdown: 0.1, EquityCurve: []float64{1, 0.9}, DrawdownCurve: []float64{0, 0.1}},
	}))
}

func runsRouter(h *RunsHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/runs", h.ListRuns)
	r.HandleFunc("/api/runs/{run}/metrics", h.GetMetrics)
	r.HandleFunc("/api/runs/{run}/curves/{policy}", h.GetCurves)
	r.HandleFunc("/api/runs/{run}/meta", h.GetMeta)
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewReader(nil)))
	return rec
}

func TestRunsHandler(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "exp1")
	router := runsRouter(NewRunsHandler(root, testCache(t), logger.Nop()))

	t.Run("list", func(t *testing.T) {
		rec := serve(router, http.MethodGet, "/api/runs")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Runs []string `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []string{"exp1"}, body.Runs)
	})

	t.Run("metrics rebuilt from curves", func(t *testing.T) {
		rec := serve(router, http.MethodGet, "/api/runs/exp1/metrics")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var metrics map[string]contracts.PolicySummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
		require.Contains(t, metrics, "buy_hold")
		assert.Equal(t, 2, metrics["buy_hold"].Episodes)
		assert.InDelta(t, 1.0, metrics["buy_hold"].MeanFinalEquity, 1e-9)
	})

	t.Run("curves", func(t *testing.T) {
		rec := serve(router, http.MethodGet, "/api/runs/exp1/curves/buy_hold")
		require.Equal(t, http.StatusOK, rec.Code)

		var records []contracts.EpisodeRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		assert.Len(t, records, 2)
		assert.Equal(t, "AAA", records[0].Symbol)
	})

	t.Run("missing artifacts are 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/runs/exp1/curves/ppo").Code)
		assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/runs/exp1/meta").Code)
		assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/runs/nope/metrics").Code)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(&contracts.ArtifactError{Path: "x", Producer: "edge evaluate"}))
	assert.Equal(t, http.StatusBadRequest, statusFor(contracts.ErrEmptyPool))
	assert.Equal(t, http.StatusBadRequest, statusFor(&requestError{assert.AnError}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
