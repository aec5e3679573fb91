// Package scheduler runs background resync jobs. A sweep finds scopes whose
// ledger changed recently and re-propagates them, so projections left stale
// by a failed propagation catch up without an operator calling resync.
package scheduler

import (
	"context"
	"sync"
	"time"

	appbilling "github.com/erp/backoffice/internal/application/billing"
	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a resync job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusWarned  JobStatus = "WARNED" // ledger read, some projection not written
	JobStatusFailed  JobStatus = "FAILED"
)

// Job re-propagates one scope
type Job struct {
	ID          uuid.UUID
	Scope       billing.Scope
	Status      JobStatus
	Error       string
	Warnings    int
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

// NewJob creates a pending job for scope
func NewJob(scope billing.Scope, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Scope:      scope,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
	j.Warnings = 0
}

// Complete records the propagation outcome
func (j *Job) Complete(warnings int) {
	now := time.Now()
	j.CompletedAt = &now
	j.Warnings = warnings
	if warnings > 0 {
		j.Status = JobStatusWarned
		return
	}
	j.Status = JobStatusSuccess
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry reports whether the projection may still be behind the ledger
// and retries remain.
func (j *Job) ShouldRetry() bool {
	return (j.Status == JobStatusFailed || j.Status == JobStatusWarned) && j.RetryCount < j.MaxRetries
}

// Resyncer re-runs propagation for a scope
type Resyncer interface {
	Resync(ctx context.Context, scope billing.Scope, orderNumber string) (*appbilling.PropagationResult, error)
}

// Config holds scheduler configuration
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Workers:    2,
		QueueSize:  1000,
		JobTimeout: 30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Minute,
	}
}

// Scheduler executes resync jobs on a fixed worker pool
type Scheduler struct {
	config   Config
	resyncer Resyncer
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[uuid.UUID]*time.Timer
	onDone    func(*Job) // test hook
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, resyncer Resyncer, logger *zap.Logger) *Scheduler {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		resyncer: resyncer,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
		retries:  make(map[uuid.UUID]*time.Timer),
	}
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Resync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels pending retries and waits for running jobs
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, timer := range s.retries {
		timer.Stop()
		delete(s.retries, id)
	}
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Resync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Resync scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a resync of scope
func (s *Scheduler) Submit(scope billing.Scope) (*Job, error) {
	job := NewJob(scope, s.config.MaxRetries)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubmitJob queues a job without blocking
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Resync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.Stringer("scope", job.Scope),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	result, err := s.resyncer.Resync(jobCtx, job.Scope, "")
	switch {
	case err != nil:
		job.Fail(err.Error())
		s.logger.Error("Resync job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.Stringer("scope", job.Scope),
			zap.Error(err),
		)
	default:
		job.Complete(len(result.Warnings))
		if job.Status == JobStatusWarned {
			s.logger.Warn("Resync job left projections behind",
				zap.String("job_id", job.ID.String()),
				zap.Stringer("scope", job.Scope),
				zap.Int("warnings", job.Warnings),
			)
		} else {
			s.logger.Debug("Resync job completed",
				zap.String("job_id", job.ID.String()),
				zap.Stringer("scope", job.Scope),
			)
		}
	}

	if s.onDone != nil {
		s.onDone(job)
	}
	if job.ShouldRetry() {
		s.scheduleRetry(job)
	}
}

// scheduleRetry resubmits the job after the retry delay
func (s *Scheduler) scheduleRetry(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}

	job.RetryCount++
	s.retries[job.ID] = time.AfterFunc(s.config.RetryDelay, func() {
		s.mu.Lock()
		delete(s.retries, job.ID)
		job.Status = JobStatusPending
		s.mu.Unlock()

		if err := s.SubmitJob(job); err != nil {
			s.logger.Warn("Failed to re-queue resync job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
	s.logger.Info("Resync job scheduled for retry",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
	)
}
