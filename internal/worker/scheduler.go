package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/retry"
	"github.com/robfig/cron/v3"
)

// ScheduledJob is a named handler run on a cron schedule (with seconds)
type ScheduledJob struct {
	Name     string
	Schedule string
	Handler  func(ctx context.Context) error
}

// JobStatus is the last known state of a scheduled job
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	NextRun   time.Time `json:"nextRun,omitempty"`
}

// SchedulerConfig configures a Scheduler
type SchedulerConfig struct {
	// JobTimeout bounds a single run including retries
	JobTimeout time.Duration
	// Retry retries failed runs. Nil means a single attempt.
	Retry  *retry.RetryConfig
	Logger *logging.Logger
}

// Scheduler runs the pipeline's periodic jobs. A job that is still running
// when its next tick fires is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	config  SchedulerConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	jobs    map[string]*ScheduledJob
	entries map[string]cron.EntryID
	status  map[string]*JobStatus
	running bool
}

// NewScheduler creates a stopped scheduler
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	cronLogger := cronLogAdapter{logger: logger.WithField("component", "cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		config:  cfg,
		logger:  logger,
		jobs:    make(map[string]*ScheduledJob),
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]*JobStatus),
	}
}

// AddJob registers a job. Names must be unique.
func (s *Scheduler) AddJob(job ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s is already registered", job.Name)
	}

	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		_ = s.RunNow(context.Background(), job.Name)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}

	s.jobs[job.Name] = &job
	s.entries[job.Name] = entryID
	s.status[job.Name] = &JobStatus{Name: job.Name, Schedule: job.Schedule}
	return nil
}

// RemoveJob unregisters a job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, exists := s.entries[name]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, name)
		delete(s.jobs, name)
		delete(s.status, name)
	}
}

// RunNow runs a registered job immediately in the calling goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown job %s", name)
	}
	status := s.status[name]
	if status.Running {
		s.mu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	status.Running = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()
	logger := s.logger.WithField("job", name)
	ctx = logging.WithLogger(ctx, logger)

	start := time.Now()
	logger.Info("Executing scheduled job")
	var err error
	if s.config.Retry != nil {
		err = retry.WithExponentialBackoff(ctx, s.config.Retry, func(ctx context.Context, _ int) error {
			return job.Handler(ctx)
		}).Err()
	} else {
		err = job.Handler(ctx)
	}
	metrics.ObserveStage("job_"+name, err)

	s.mu.Lock()
	status.Running = false
	status.Runs++
	status.LastRun = start
	status.LastError = ""
	if err != nil {
		status.Failures++
		status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		logger.WithError(err).Error("Scheduled job failed")
		return err
	}
	logger.WithField("duration", time.Since(start).String()).Info("Scheduled job finished")
	return nil
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.WithField("jobs", len(s.jobs)).Info("Job scheduler started")
}

// Stop stops the cron loop and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for running jobs: %w", ctx.Err())
	}
}

// Status returns the status of every registered job ordered by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.status))
	for name, st := range s.status {
		copied := *st
		if entryID, ok := s.entries[name]; ok {
			copied.NextRun = s.cron.Entry(entryID).Next
		}
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogAdapter sends cron's own log lines to the structured logger
type cronLogAdapter struct {
	logger *logging.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
