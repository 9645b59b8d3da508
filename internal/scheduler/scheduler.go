package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/earningsedge/pkg/logger"
)

var (
	// ErrJobNotFound is returned for names never added (or removed)
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned when a run is requested while one is in flight
	ErrJobRunning = errors.New("job already running")
)

// entry is a registered job with its cron id, run guard and history
type entry struct {
	job  Job
	id   cron.EntryID
	busy sync.Mutex
	hist *history
}

// Scheduler runs the panel/universe/cache maintenance jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	mu      sync.RWMutex
	entries map[string]*entry

	// runCtx is cancelled by Stop so retries do not outlive the scheduler
	runCtx context.Context
	cancel context.CancelFunc

	maxRetries int
	retryDelay time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRetry overrides the retry count and delay between attempts
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// New creates a scheduler whose cron parser accepts a leading seconds field
func New(log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Module("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:     log,
		entries:    make(map[string]*entry),
		runCtx:     ctx,
		cancel:     cancel,
		maxRetries: 3,
		retryDelay: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers job under its name; names are unique
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	e := &entry{job: job, hist: newHistory()}
	id, err := s.cron.AddFunc(job.Schedule(), func() {
		s.dispatch(e, TriggerCron)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	e.id = id
	s.entries[name] = e

	fields := map[string]interface{}{"job": name, "schedule": job.Schedule()}
	if f, ok := job.(Follower); ok {
		fields["after"] = f.After()
	}
	s.logger.WithFields(fields).Info("Job added to scheduler")
	return nil
}

// RemoveJob unschedules a job and forgets its history
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	s.logger.WithField("job", name).Info("Job removed from scheduler")
	return nil
}

// Start begins cron dispatch in the background
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels pending retries and waits for running cron jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Trigger starts a job in the background
func (s *Scheduler) Trigger(name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}
	go s.dispatch(e, TriggerManual)
	return nil
}

// RunNow runs a job on the caller's goroutine and returns its result.
// Followers of the job are run the same way when it succeeds.
func (s *Scheduler) RunNow(name string) (JobResult, error) {
	e, err := s.entry(name)
	if err != nil {
		return JobResult{}, err
	}
	if !e.busy.TryLock() {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	result := s.execute(e, TriggerManual)
	e.busy.Unlock()

	if result.Success {
		s.runFollowers(name)
	}
	return result, nil
}

func (s *Scheduler) entry(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e, nil
}

// dispatch runs e unless a previous run is still in flight, then its followers
func (s *Scheduler) dispatch(e *entry, trigger Trigger) {
	if !e.busy.TryLock() {
		s.logger.WithFields(map[string]interface{}{
			"job":     e.job.Name(),
			"trigger": trigger,
		}).Warn("Previous run still in progress, skipping")
		return
	}
	result := s.execute(e, trigger)
	e.busy.Unlock()

	if result.Success {
		s.runFollowers(e.job.Name())
	}
}

func (s *Scheduler) runFollowers(name string) {
	for _, f := range s.followers(name) {
		s.dispatch(f, TriggerChain)
	}
}

// followers returns jobs declaring After() == name, in name order
func (s *Scheduler) followers(name string) []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entry
	for _, e := range s.entries {
		if f, ok := e.job.(Follower); ok && f.After() == name {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].job.Name() < out[j].job.Name() })
	return out
}

// execute runs the job with retries and records the outcome
func (s *Scheduler) execute(e *entry, trigger Trigger) JobResult {
	name := e.job.Name()
	log := s.logger.WithFields(map[string]interface{}{"job": name, "trigger": trigger})
	log.Info("Job started")

	result := JobResult{JobName: name, Trigger: trigger, StartTime: time.Now()}
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts++
		lastErr = e.job.Run(s.runCtx)
		if lastErr == nil {
			break
		}
		log.WithError(lastErr).WithField("attempt", result.Attempts).Warn("Job attempt failed")

		if attempt == s.maxRetries || s.runCtx.Err() != nil {
			break
		}
		select {
		case <-s.runCtx.Done():
		case <-time.After(s.retryDelay):
		}
		if s.runCtx.Err() != nil {
			break
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = lastErr == nil
	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	e.hist.record(result)

	log = log.WithFields(map[string]interface{}{
		"duration": result.Duration.String(),
		"attempts": result.Attempts,
	})
	if result.Success {
		log.Info("Job completed successfully")
	} else {
		log.WithField("error", result.Error).Error("Job failed after all retries")
	}
	return result
}

// Jobs returns the registered job names, sorted
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History returns the retained results of a job, oldest first
func (s *Scheduler) History(name string) ([]JobResult, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return e.hist.snapshot(), nil
}

// Stats returns one summary per job, sorted by name
func (s *Scheduler) Stats() []JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobStats, 0, len(s.entries))
	for name, e := range s.entries {
		after := ""
		if f, ok := e.job.(Follower); ok {
			after = f.After()
		}
		out = append(out, e.hist.stats(name, e.job.Schedule(), after))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	return out
}

// cronLogger routes robfig/cron's own messages (recovered panics, schedule
// errors) into the process logger
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithFields(pairs(keysAndValues)).Debug("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).WithFields(pairs(keysAndValues)).Error("cron: " + msg)
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
