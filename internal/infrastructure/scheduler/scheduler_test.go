package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appbilling "github.com/erp/backoffice/internal/application/billing"
	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedResyncer answers calls in order; the last answer repeats
type scriptedResyncer struct {
	mu      sync.Mutex
	answers []resyncAnswer
	calls   []billing.Scope
}

type resyncAnswer struct {
	warnings int
	err      error
}

func (r *scriptedResyncer) Resync(_ context.Context, scope billing.Scope, _ string) (*appbilling.PropagationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, scope)
	answer := resyncAnswer{}
	if len(r.answers) > 0 {
		answer = r.answers[0]
		if len(r.answers) > 1 {
			r.answers = r.answers[1:]
		}
	}
	if answer.err != nil {
		return nil, answer.err
	}
	result := &appbilling.PropagationResult{Scope: scope}
	for i := 0; i < answer.warnings; i++ {
		result.Warnings = append(result.Warnings, billing.PropagationWarning{
			Target:  billing.ProjectionTargetOrder,
			Message: "order write failed",
		})
	}
	return result, nil
}

func (r *scriptedResyncer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// startScheduler runs s and returns a channel receiving every finished job
func startScheduler(t *testing.T, s *Scheduler) <-chan Job {
	t.Helper()
	done := make(chan Job, 16)
	s.onDone = func(j *Job) {
		select {
		case done <- *j:
		default:
		}
	}
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return done
}

func waitJob(t *testing.T, done <-chan Job) Job {
	t.Helper()
	select {
	case j := <-done:
		return j
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resync job")
		return Job{}
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob(billing.OrderScope(uuid.New()), 2)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotEqual(t, uuid.Nil, job.ID)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Complete(0)
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.False(t, job.ShouldRetry())

	job.Start()
	job.Complete(2)
	assert.Equal(t, JobStatusWarned, job.Status)
	assert.Equal(t, 2, job.Warnings)
	assert.True(t, job.ShouldRetry())

	job.Start()
	job.Fail("ledger unreadable")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "ledger unreadable", job.Error)
	assert.True(t, job.ShouldRetry())

	job.RetryCount = 2
	assert.False(t, job.ShouldRetry())
}

func TestScheduler_RunsSubmittedScope(t *testing.T) {
	resyncer := &scriptedResyncer{}
	s := NewScheduler(Config{Workers: 1}, resyncer, zaptest.NewLogger(t))
	done := startScheduler(t, s)

	scope := billing.InvoiceScope(uuid.New())
	_, err := s.Submit(scope)
	require.NoError(t, err)

	job := waitJob(t, done)
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, scope, job.Scope)
	assert.Equal(t, 1, resyncer.callCount())
}

func TestScheduler_SubmitWhenStopped(t *testing.T) {
	s := NewScheduler(DefaultConfig(), &scriptedResyncer{}, nil)

	_, err := s.Submit(billing.OrderScope(uuid.New()))
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestScheduler_QueueFull(t *testing.T) {
	s := NewScheduler(Config{QueueSize: 1}, &scriptedResyncer{}, nil)
	s.isRunning = true // no workers draining the queue

	require.NoError(t, s.SubmitJob(NewJob(billing.OrderScope(uuid.New()), 0)))
	assert.ErrorIs(t, s.SubmitJob(NewJob(billing.OrderScope(uuid.New()), 0)), ErrJobQueueFull)
}

func TestScheduler_RetriesFailedResync(t *testing.T) {
	resyncer := &scriptedResyncer{answers: []resyncAnswer{
		{err: errors.New("ledger unreadable")},
		{},
	}}
	s := NewScheduler(Config{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond}, resyncer, zaptest.NewLogger(t))
	done := startScheduler(t, s)

	_, err := s.Submit(billing.OrderScope(uuid.New()))
	require.NoError(t, err)

	first := waitJob(t, done)
	assert.Equal(t, JobStatusFailed, first.Status)

	second := waitJob(t, done)
	assert.Equal(t, JobStatusSuccess, second.Status)
	assert.Equal(t, 1, second.RetryCount)
	assert.Equal(t, 2, resyncer.callCount())
}

func TestScheduler_RetriesWarnedResyncUntilExhausted(t *testing.T) {
	resyncer := &scriptedResyncer{answers: []resyncAnswer{{warnings: 1}}}
	s := NewScheduler(Config{Workers: 1, MaxRetries: 1, RetryDelay: 10 * time.Millisecond}, resyncer, zaptest.NewLogger(t))
	done := startScheduler(t, s)

	_, err := s.Submit(billing.OrderScope(uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, JobStatusWarned, waitJob(t, done).Status)
	last := waitJob(t, done)
	assert.Equal(t, JobStatusWarned, last.Status)
	assert.False(t, last.ShouldRetry())

	select {
	case j := <-done:
		t.Fatalf("unexpected extra run: %+v", j)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, resyncer.callCount())
}

func TestScheduler_StopCancelsPendingRetries(t *testing.T) {
	resyncer := &scriptedResyncer{answers: []resyncAnswer{{err: errors.New("timeout")}}}
	s := NewScheduler(Config{Workers: 1, MaxRetries: 3, RetryDelay: time.Hour}, resyncer, zaptest.NewLogger(t))
	done := make(chan Job, 1)
	s.onDone = func(j *Job) { done <- *j }
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Submit(billing.OrderScope(uuid.New()))
	require.NoError(t, err)
	waitJob(t, done)

	require.NoError(t, s.Stop(context.Background()))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.retries)
}
