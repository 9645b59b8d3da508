package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name     string
	schedule string
	after    string
	failures int32 // fail this many times before succeeding
	calls    int32
	started  chan struct{} // signalled before blocking
	block    chan struct{}
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	if j.block != nil {
		j.started <- struct{}{}
		<-j.block
	}
	n := atomic.AddInt32(&j.calls, 1)
	if n <= j.failures {
		return errors.New("transient")
	}
	return nil
}

// followingJob adds Follower to fakeJob
type followingJob struct{ *fakeJob }

func (j followingJob) After() string { return j.after }

func TestScheduler_AddJob(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.AddJob(&fakeJob{name: "panel_rebuild", schedule: "0 0 18 * * 1-5"}))
	assert.Error(t, s.AddJob(&fakeJob{name: "panel_rebuild", schedule: "@daily"}))
	assert.Error(t, s.AddJob(&fakeJob{name: "bad", schedule: "not a schedule"}))

	require.NoError(t, s.AddJob(&fakeJob{name: "universe_rebuild", schedule: "@daily"}))
	assert.Equal(t, []string{"panel_rebuild", "universe_rebuild"}, s.Jobs())

	require.NoError(t, s.RemoveJob("panel_rebuild"))
	assert.ErrorIs(t, s.RemoveJob("panel_rebuild"), ErrJobNotFound)
	assert.Equal(t, []string{"universe_rebuild"}, s.Jobs())
}

func TestScheduler_RunNowRetries(t *testing.T) {
	s := New(nil, WithRetry(2, 0))
	job := &fakeJob{name: "flaky", schedule: "@hourly", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow("flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, TriggerManual, result.Trigger)
	assert.Equal(t, int32(3), atomic.LoadInt32(&job.calls))

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].TotalRuns)
	assert.Equal(t, 1, stats[0].SuccessCount)
	assert.Equal(t, 1.0, stats[0].SuccessRate)
	assert.NotNil(t, stats[0].LastSuccess)
	assert.Nil(t, stats[0].LastFailure)
}

func TestScheduler_RunNowExhaustsRetries(t *testing.T) {
	s := New(nil, WithRetry(1, 0))
	job := &fakeJob{name: "broken", schedule: "@hourly", failures: 100}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow("broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "transient", result.Error)
	assert.Equal(t, 2, result.Attempts)

	history, err := s.History("broken")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)

	_, err = s.RunNow("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_FollowerRunsAfterSuccess(t *testing.T) {
	s := New(nil, WithRetry(0, 0))
	panel := &fakeJob{name: "panel_rebuild", schedule: "@daily"}
	universe := followingJob{&fakeJob{name: "universe_rebuild", schedule: "@daily", after: "panel_rebuild"}}
	require.NoError(t, s.AddJob(panel))
	require.NoError(t, s.AddJob(universe))

	_, err := s.RunNow("panel_rebuild")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&universe.calls))

	history, err := s.History("universe_rebuild")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, TriggerChain, history[0].Trigger)

	for _, st := range s.Stats() {
		if st.JobName == "universe_rebuild" {
			assert.Equal(t, "panel_rebuild", st.After)
		}
	}
}

func TestScheduler_FollowerSkippedOnFailure(t *testing.T) {
	s := New(nil, WithRetry(0, 0))
	panel := &fakeJob{name: "panel_rebuild", schedule: "@daily", failures: 1}
	universe := followingJob{&fakeJob{name: "universe_rebuild", schedule: "@daily", after: "panel_rebuild"}}
	require.NoError(t, s.AddJob(panel))
	require.NoError(t, s.AddJob(universe))

	result, err := s.RunNow("panel_rebuild")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(0), atomic.LoadInt32(&universe.calls))
}

func TestScheduler_RejectsOverlappingRun(t *testing.T) {
	s := New(nil, WithRetry(0, 0))
	job := &fakeJob{name: "slow", schedule: "@hourly", started: make(chan struct{}), block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	done := make(chan JobResult)
	go func() {
		r, _ := s.RunNow("slow")
		done <- r
	}()

	select {
	case <-job.started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}
	_, err := s.RunNow("slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	assert.True(t, (<-done).Success)
}

func TestScheduler_StopCancelsRetryWait(t *testing.T) {
	s := New(nil)
	job := &fakeJob{name: "broken", schedule: "@hourly", failures: 100}
	require.NoError(t, s.AddJob(job))

	s.Start()
	s.Stop()

	// retry delay is a minute; a stopped scheduler must not wait for it
	result, err := s.RunNow("broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestHistory_RingKeepsNewest(t *testing.T) {
	h := newHistory()
	for i := 0; i < historySize+10; i++ {
		h.record(JobResult{Attempts: i, Success: i%2 == 0})
	}
	runs := h.snapshot()
	require.Len(t, runs, historySize)
	assert.Equal(t, 10, runs[0].Attempts)
	assert.Equal(t, historySize+9, runs[len(runs)-1].Attempts)

	st := h.stats("x", "@daily", "")
	assert.Equal(t, historySize, st.TotalRuns)
	assert.Equal(t, 0.5, st.SuccessRate)
	assert.NotNil(t, st.LastFailure)
}
