package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/research-infograph/internal/research"
)

// JobStore keeps job records in memory. Each transition holds the lock only
// for the duration of the update.
type JobStore struct {
	mu    sync.RWMutex
	clock research.Clock
	jobs  map[string]research.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore(clock research.Clock) *JobStore {
	return &JobStore{
		clock: clock,
		jobs:  make(map[string]research.Job),
	}
}

// CreateJob stores a new job in queued state.
func (s *JobStore) CreateJob(_ context.Context, job research.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	job.State = research.JobStateQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.Now().UTC()
	}
	s.jobs[job.ID] = job
	return nil
}

// MarkRunning records that a worker picked up the job.
func (s *JobStore) MarkRunning(_ context.Context, jobID string) error {
	return s.update(jobID, func(job *research.Job) {
		job.State = research.JobStateRunning
		if job.StartedAt == nil {
			job.StartedAt = pointerTime(s.clock.Now().UTC())
		}
	})
}

// MarkSucceeded stores the result and finishes the job.
func (s *JobStore) MarkSucceeded(_ context.Context, jobID string, result research.JobResult) error {
	return s.update(jobID, func(job *research.Job) {
		job.State = research.JobStateSucceeded
		res := result
		job.Result = &res
		job.Error = ""
		job.FinishedAt = pointerTime(s.clock.Now().UTC())
	})
}

// MarkFailed stores the error text and finishes the job.
func (s *JobStore) MarkFailed(_ context.Context, jobID string, errText string) error {
	return s.update(jobID, func(job *research.Job) {
		job.State = research.JobStateFailed
		job.Error = errText
		job.FinishedAt = pointerTime(s.clock.Now().UTC())
	})
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (research.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return research.Job{}, fmt.Errorf("get job %s: %w", jobID, research.ErrJobNotFound)
	}
	return job, nil
}

func (s *JobStore) update(jobID string, apply func(*research.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job %s: %w", jobID, research.ErrJobNotFound)
	}
	apply(&job)
	s.jobs[jobID] = job
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
