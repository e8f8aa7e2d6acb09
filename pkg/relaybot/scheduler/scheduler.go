// Package scheduler runs relaybot's periodic maintenance: expiring
// premium plans, cleaning the media workspace and sweeping cooldowns.
// Uses robfig/cron for schedule parsing and execution.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Func is the work done by a job.
type Func func(ctx context.Context) error

// Job is a registered periodic task.
type Job struct {
	// Name identifies the job, e.g. "premium-expiry".
	Name string

	// Schedule is a 5-field cron expression or a descriptor such as
	// "@every 5m" or "@hourly".
	Schedule string

	// Timeout bounds a single run. 0 uses the scheduler default.
	Timeout time.Duration

	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastError       string
	RunCount        int

	fn      Func
	entryID cron.EntryID
	running bool
}

// Config configures the scheduler.
type Config struct {
	// Enabled turns maintenance jobs on.
	Enabled bool `yaml:"enabled"`

	// JobTimeout is the default run timeout.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// PremiumExpiry, TempCleanup and CooldownSweep are the job schedules.
	PremiumExpiry string `yaml:"premium_expiry"`
	TempCleanup   string `yaml:"temp_cleanup"`
	CooldownSweep string `yaml:"cooldown_sweep"`
}

// DefaultConfig returns the default schedules.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		JobTimeout:    5 * time.Minute,
		PremiumExpiry: "@every 1m",
		TempCleanup:   "@every 30m",
		CooldownSweep: "@every 5m",
	}
}

// Scheduler runs jobs on cron schedules.
type Scheduler struct {
	jobs       map[string]*Job
	cron       *cron.Cron
	jobTimeout time.Duration

	logger   *slog.Logger
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a scheduler. Jobs can be added before or after Start.
func New(jobTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	s := &Scheduler{
		jobs:       make(map[string]*Job),
		jobTimeout: jobTimeout,
		logger:     logger.With("component", "scheduler"),
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Add registers fn under name.
func (s *Scheduler) Add(name, schedule string, fn Func) error {
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if schedule == "" {
		return fmt.Errorf("job %q: schedule is required", name)
	}
	if fn == nil {
		return fmt.Errorf("job %q: func is required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already exists", name)
	}
	job := &Job{Name: name, Schedule: schedule, fn: fn}
	id, err := s.cron.AddFunc(schedule, func() { s.execute(job, false) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	job.entryID = id
	s.jobs[name] = job

	s.logger.Info("job added", "name", name, "schedule", schedule)
	return nil
}

// Remove unregisters a job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	s.cron.Remove(job.entryID)
	delete(s.jobs, name)
	s.logger.Info("job removed", "name", name)
	return nil
}

// List returns a snapshot of the jobs sorted by name.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		cp.fn = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Run executes a job immediately, outside its schedule.
func (s *Scheduler) Run(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	s.execute(job, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if job.LastError != "" {
		return fmt.Errorf("job %q: %s", name, job.LastError)
	}
	return nil
}

// Start begins firing jobs. Stop is called when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	s.logger.Info("scheduler started", "jobs", n)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop halts the scheduler and waits up to 10s for running jobs.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		done := s.cron.Stop()
		select {
		case <-done.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("scheduler stop timed out")
		}
		s.cancel()
		s.logger.Info("scheduler stopped")
	})
}

// minJobInterval keeps a job from running twice within the same cron tick.
const minJobInterval = 2 * time.Second

// execute runs one job with a timeout. A job never overlaps itself and a
// panic is logged instead of crashing the process. Manual runs skip the
// spin guard.
func (s *Scheduler) execute(job *Job, manual bool) {
	s.mu.Lock()
	if job.running {
		s.mu.Unlock()
		s.logger.Warn("skipping job (already running)", "name", job.Name)
		return
	}
	if !manual && !job.LastRunAt.IsZero() && time.Since(job.LastRunAt) < minJobInterval {
		s.mu.Unlock()
		s.logger.Debug("skipping job (ran too recently)", "name", job.Name)
		return
	}
	job.running = true
	job.LastRunAt = time.Now()
	job.RunCount++
	timeout := s.jobTimeout
	if job.Timeout > 0 {
		timeout = job.Timeout
	}
	s.mu.Unlock()

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("scheduled job panicked", "name", job.Name, "panic", r)
		}

		s.mu.Lock()
		job.running = false
		job.LastRunDuration = time.Since(start)
		if err != nil {
			job.LastError = err.Error()
		} else {
			job.LastError = ""
		}
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	err = job.fn(ctx)
	if err != nil {
		s.logger.Error("scheduled job failed", "name", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled job completed", "name", job.Name, "duration", time.Since(start))
}
