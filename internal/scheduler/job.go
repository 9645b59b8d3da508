package scheduler

import (
	"context"
	"sync"
	"time"
)

// Job is one pipeline maintenance task run on a cron schedule
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string
	Run(ctx context.Context) error
	// Schedule is a six-field cron spec (seconds first) or a descriptor like "@hourly"
	Schedule() string
}

// Follower is implemented by jobs that must also run after another job
// succeeds (the universe is ranked from the panel the rebuild just wrote).
type Follower interface {
	After() string
}

// Trigger records what started a run
type Trigger string

const (
	TriggerCron   Trigger = "cron"
	TriggerManual Trigger = "manual"
	TriggerChain  Trigger = "chain"
)

// JobResult is one finished run, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	Trigger   Trigger       `json:"trigger"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobStats summarises the retained history of one job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	After        string     `json:"after,omitempty"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

const historySize = 50

// history is a bounded ring of results, oldest first when read
type history struct {
	mu      sync.Mutex
	results []JobResult
	next    int
	full    bool
}

func newHistory() *history {
	return &history{results: make([]JobResult, historySize)}
}

func (h *history) record(r JobResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results[h.next] = r
	h.next = (h.next + 1) % len(h.results)
	if h.next == 0 {
		h.full = true
	}
}

// snapshot returns the retained results in execution order
func (h *history) snapshot() []JobResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]JobResult(nil), h.results[:h.next]...)
	}
	out := make([]JobResult, 0, len(h.results))
	out = append(out, h.results[h.next:]...)
	return append(out, h.results[:h.next]...)
}

func (h *history) stats(name, schedule, after string) JobStats {
	runs := h.snapshot()
	st := JobStats{JobName: name, Schedule: schedule, After: after, TotalRuns: len(runs)}
	for i := range runs {
		r := runs[i]
		if r.Success {
			st.SuccessCount++
			st.LastSuccess = &runs[i].StartTime
		} else {
			st.FailureCount++
			st.LastFailure = &runs[i].StartTime
		}
		st.LastRun = &runs[i].StartTime
	}
	if st.TotalRuns > 0 {
		st.SuccessRate = float64(st.SuccessCount) / float64(st.TotalRuns)
	}
	return st
}
