package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/earningsedge/internal/backtest"
	"github.com/wonny/earningsedge/internal/contracts"
	"github.com/wonny/earningsedge/pkg/logger"
	"github.com/wonny/earningsedge/pkg/redis"
)

// RunsHandler serves evaluation artifacts from the runs directory
// ⭐ SSOT: run 아티팩트 조회 API는 이 구조체에서만
type RunsHandler struct {
	runsDir string
	cache   *redis.Cache
	logger  *logger.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(runsDir string, cache *redis.Cache, log *logger.Logger) *RunsHandler {
	return &RunsHandler{
		runsDir: runsDir,
		cache:   cache,
		logger:  log,
	}
}

// ListRuns returns the run directory names
// GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := backtest.ListRuns(h.runsDir)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetMetrics returns metrics.json of a run, rebuilt from curves when absent
// GET /api/runs/{run}/metrics
func (h *RunsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["run"]
	dir, err := backtest.OpenRun(h.runsDir, name)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	metrics, err := redis.Fetch(r.Context(), h.cache, redis.RunMetricsKey(name), redis.TTLLong, func() (map[string]contracts.PolicySummary, error) {
		m, err := dir.ReadMetrics()
		if errors.Is(err, contracts.ErrMissingArtifact) {
			policies, perr := dir.CurvePolicies()
			if perr != nil {
				return nil, perr
			}
			m, _, err = backtest.NewMetricsBuilder(dir, h.logger).Build(policies)
		}
		return m, err
	})
	if err != nil {
		h.logger.WithError(err).WithField("run", name).Warn("Failed to load run metrics")
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

// GetCurves returns the episode records of one policy
// GET /api/runs/{run}/curves/{policy}
func (h *RunsHandler) GetCurves(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, policyName := vars["run"], vars["policy"]

	dir, err := backtest.OpenRun(h.runsDir, name)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	records, err := redis.Fetch(r.Context(), h.cache, redis.RunCurvesKey(name, policyName), redis.TTLLong, func() ([]contracts.EpisodeRecord, error) {
		return dir.ReadCurves(policyName)
	})
	if err != nil {
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// GetMeta returns run_meta.json
// GET /api/runs/{run}/meta
func (h *RunsHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	dir, err := backtest.OpenRun(h.runsDir, mux.Vars(r)["run"])
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	meta, err := dir.ReadRunMeta()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
