// Package scheduler runs the periodic gamification jobs: challenge
// assignment, assignment expiry and leaderboard recomputation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job. It also names the job lock.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler stops.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next activation strictly after t.
	Next(t time.Time) time.Time

	String() string
}

// Locker provides cross-process mutual exclusion per job name.
// ok is false when another process holds the lock.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	Logger *zap.Logger
	Clock  timeutil.Clock

	// Tick is how often due jobs are checked.
	Tick time.Duration

	// Locker is optional; without it overlap protection is in-process only.
	Locker  Locker
	LockTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:  zap.NewNop(),
		Clock:   timeutil.SystemClock,
		Tick:    time.Second,
		LockTTL: 10 * time.Minute,
	}
}

// Scheduler manages and executes scheduled jobs. A job that is still
// running when it becomes due again is skipped, never queued.
type Scheduler struct {
	mu sync.Mutex

	logger *zap.Logger
	clock  timeutil.Clock
	tick   time.Duration
	locker Locker
	ttl    time.Duration

	jobs    map[string]*scheduledJob
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	jobsWG  sync.WaitGroup
}

type scheduledJob struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	lastRun  time.Time
	active   bool

	runCount  int64
	failCount int64
	skipCount int64
	last      *JobResult
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}

	return &Scheduler{
		logger: cfg.Logger.With(logger.Component("scheduler")),
		clock:  cfg.Clock,
		tick:   cfg.Tick,
		locker: cfg.Locker,
		ttl:    cfg.LockTTL,
		jobs:   make(map[string]*scheduledJob),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(s.clock()),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		logger.Job(name),
		zap.String("schedule", schedule.String()),
		zap.Time("next_run", sj.nextRun),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", zap.Int("jobs_count", jobs))

	s.loopWG.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.loopWG.Wait()
	s.jobsWG.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runLoop() {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(s.ctx, s.clock())
		}
	}
}

// dispatchDue starts one goroutine per due job and returns.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, sj := range s.jobs {
		if now.Before(sj.nextRun) {
			continue
		}
		sj.nextRun = sj.schedule.Next(now)

		if sj.active {
			sj.skipCount++
			s.logger.Warn("job still running, skipping activation",
				logger.Job(name),
				zap.Int64("skipped", sj.skipCount),
			)
			continue
		}

		sj.active = true
		s.jobsWG.Add(1)
		go s.execute(ctx, sj)
	}
}

// execute runs a job under the optional cross-process lock.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) {
	defer s.jobsWG.Done()
	defer func() {
		s.mu.Lock()
		sj.active = false
		s.mu.Unlock()
	}()

	name := sj.job.Name()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, name, s.ttl)
		if err != nil {
			s.logger.Error("job lock failed", logger.Job(name), logger.Err(err))
			s.record(sj, s.result(name, s.clock(), err))
			return
		}
		if !ok {
			s.mu.Lock()
			sj.skipCount++
			s.mu.Unlock()
			s.logger.Info("job locked by another worker", logger.Job(name))
			return
		}
		defer func() {
			// a detached context so the lock is freed even after Stop
			if err := release(context.Background()); err != nil {
				s.logger.Warn("job lock release failed", logger.Job(name), logger.Err(err))
			}
		}()
	}

	s.record(sj, s.run(ctx, sj.job))
}

func (s *Scheduler) run(ctx context.Context, job Job) JobResult {
	name := job.Name()
	started := s.clock()
	s.logger.Info("job started", logger.Job(name))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrJobPanic, r)
			}
		}()
		return job.Run(ctx)
	}()

	result := s.result(name, started, err)
	if err != nil {
		s.logger.Error("job failed", logger.Job(name), logger.Latency(result.Duration), logger.Err(err))
	} else {
		s.logger.Info("job completed", logger.Job(name), logger.Latency(result.Duration))
	}
	return result
}

func (s *Scheduler) result(name string, started time.Time, err error) JobResult {
	completed := s.clock()
	return JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Error:       err,
	}
}

func (s *Scheduler) record(sj *scheduledJob, r JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj.lastRun = r.StartedAt
	sj.runCount++
	if !r.Success {
		sj.failCount++
	}
	sj.last = &r
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately, outside its schedule. It fails with
// ErrJobRunning rather than overlap a scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if sj.active {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	sj.active = true
	s.mu.Unlock()

	result := s.run(ctx, sj.job)

	s.mu.Lock()
	sj.active = false
	s.mu.Unlock()
	s.record(sj, result)

	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	Running     bool
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	// SkipCount counts activations dropped because the job was still
	// running or locked elsewhere.
	SkipCount  int64
	LastResult *JobResult
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			Running:     sj.active,
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			SkipCount:   sj.skipCount,
			LastResult:  sj.last,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// GetJobInfo returns information about a specific job.
func (s *Scheduler) GetJobInfo(name string) (*JobInfo, error) {
	for _, info := range s.ListJobs() {
		if info.Name == name {
			return &info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrJobPanic                = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
