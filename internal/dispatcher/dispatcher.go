// Package dispatcher accepts research jobs and fans queue work out to workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/research"
	"github.com/JakeFAU/research-infograph/internal/worker"
)

// Dispatcher records submitted jobs and runs the worker pool.
type Dispatcher struct {
	queue   research.Queue
	jobs    research.JobStore
	ids     research.IDGenerator
	clock   research.Clock
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue research.Queue,
	jobs research.JobStore,
	ids research.IDGenerator,
	clock research.Clock,
	workers []*worker.Worker,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		jobs:    jobs,
		ids:     ids,
		clock:   clock,
		workers: workers,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", len(d.workers)))
	<-ctx.Done()
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Submit records a queued research job for the session and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, sessionID int64) (research.Job, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return research.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now().UTC()
	job := research.Job{
		ID:        id,
		Kind:      research.JobKindResearch,
		SessionID: sessionID,
		State:     research.JobStateQueued,
		CreatedAt: now,
	}
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return research.Job{}, fmt.Errorf("create job: %w", err)
	}
	item := research.QueueItem{
		JobID:     id,
		Kind:      job.Kind,
		SessionID: sessionID,
		Submitted: now.UnixMilli(),
	}
	if err := d.Enqueue(ctx, item); err != nil {
		if markErr := d.jobs.MarkFailed(ctx, id, err.Error()); markErr != nil {
			d.logger.Error("mark unqueued job failed", zap.String("job_id", id), zap.Error(markErr))
		}
		return research.Job{}, err
	}
	d.logger.Info("job submitted", zap.String("job_id", id), zap.Int64("session_id", sessionID))
	return job, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item research.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Job returns the current state of a submitted job.
func (d *Dispatcher) Job(ctx context.Context, jobID string) (research.Job, error) {
	job, err := d.jobs.GetJob(ctx, jobID)
	if err != nil {
		return research.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
