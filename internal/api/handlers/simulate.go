package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/wonny/earningsedge/internal/backtest"
	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/internal/env"
	"github.com/wonny/earningsedge/internal/policy"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/redis"
)

var validate = validator.New()

// SimulateRequest asks for one episode of a policy
type SimulateRequest struct {
	Policy     string `json:"policy" default:"avoid_earnings" validate:"required"`
	Seed       *int64 `json:"seed,omitempty"` // nil → time-seeded, not cached
	Symbol     string `json:"symbol,omitempty"`
	EpisodeLen int    `json:"episode_len,omitempty" validate:"gte=0,lte=2520"` // 0 → configured default
}

// SimulateHandler runs on-demand episodes over the shared panel
// ⭐ SSOT: 온디맨드 시뮬레이션 API는 이 구조체에서만
type SimulateHandler struct {
	panels    *env.PanelCache
	panelPath string
	universe  *contracts.Universe
	defaults  env.Config
	registry  *policy.Registry
	metrics   backtest.Metrics
	cache     *redis.Cache
	logger    *logger.Logger
}

// SimulateDeps groups the collaborators of SimulateHandler
type SimulateDeps struct {
	Panels    *env.PanelCache
	PanelPath string
	Universe  *contracts.Universe // nil → every panel symbol
	Defaults  env.Config
	Registry  *policy.Registry
	Metrics   backtest.Metrics
	Cache     *redis.Cache
	Logger    *logger.Logger
}

// NewSimulateHandler creates a new simulate handler
func NewSimulateHandler(deps SimulateDeps) *SimulateHandler {
	if deps.Metrics == nil {
		deps.Metrics = noMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &SimulateHandler{
		panels:    deps.Panels,
		panelPath: deps.PanelPath,
		universe:  deps.Universe,
		defaults:  deps.Defaults,
		registry:  deps.Registry,
		metrics:   deps.Metrics,
		cache:     deps.Cache,
		logger:    deps.Logger,
	}
}

// Simulate runs one episode and returns its record
// POST /api/simulate
func (h *SimulateHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := checkRequest(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var record contracts.EpisodeRecord
	var err error
	if req.Seed != nil {
		key := redis.SimulationKey(req.Policy, *req.Seed, req.Symbol, req.EpisodeLen)
		record, err = redis.Fetch(r.Context(), h.cache, key, redis.TTLShort, func() (contracts.EpisodeRecord, error) {
			return h.runEpisode(req, nil)
		})
	} else {
		record, err = h.runEpisode(req, nil)
	}
	if err != nil {
		h.logger.WithError(err).WithField("policy", req.Policy).Warn("Simulation failed")
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// runEpisode builds a private environment and drives one episode
func (h *SimulateHandler) runEpisode(req SimulateRequest, onStep backtest.StepFunc) (contracts.EpisodeRecord, error) {
	p, err := h.registry.Get(req.Policy)
	if err != nil {
		return contracts.EpisodeRecord{}, &requestError{err}
	}

	panel, err := h.panels.Get(h.panelPath)
	if err != nil {
		return contracts.EpisodeRecord{}, err
	}

	cfg := h.defaults
	if req.Symbol != "" {
		cfg.Symbol = req.Symbol
	}
	cfg.Seed = req.Seed
	if req.EpisodeLen > 0 {
		cfg.EpisodeLen = req.EpisodeLen
	}

	engine := backtest.NewEngine(panel, h.universe, h.metrics, h.logger)
	environment, err := engine.NewEnv(cfg)
	if err != nil {
		return contracts.EpisodeRecord{}, &requestError{err}
	}

	start := time.Now()
	record, err := engine.RunEpisode(environment, p, onStep)
	if err != nil {
		return record, err
	}
	h.metrics.RecordLatency("simulate", time.Since(start).Seconds())
	return record, nil
}

type noMetrics struct{}

func (noMetrics) RecordStep(string, float64)             {}
func (noMetrics) RecordEpisode(string, float64, float64) {}
func (noMetrics) RecordError(string)                     {}
func (noMetrics) RecordLatency(string, float64)          {}

// requestError marks failures caused by the request itself
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func checkRequest(req *SimulateRequest) error {
	if err := defaults.Set(req); err != nil {
		return err
	}
	req.Policy = strings.TrimSpace(req.Policy)
	req.Symbol = strings.TrimSpace(req.Symbol)

	if err := validate.Struct(req); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return fmt.Errorf("%s failed %s %s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param())
		}
		return err
	}
	return nil
}

// requestFromQuery reads policy, seed, symbol and episode_len query params
func requestFromQuery(r *http.Request) (SimulateRequest, error) {
	q := r.URL.Query()
	req := SimulateRequest{
		Policy: q.Get("policy"),
		Symbol: q.Get("symbol"),
	}

	if s := q.Get("seed"); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid seed %q", s)
		}
		req.Seed = &seed
	}
	if s := q.Get("episode_len"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("invalid episode_len %q", s)
		}
		req.EpisodeLen = n
	}

	return req, checkRequest(&req)
}
