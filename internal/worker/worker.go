// Package worker implements the research job execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/metrics"
	"github.com/JakeFAU/research-infograph/internal/research"
)

// JobRunner runs one research job for a session.
type JobRunner interface {
	Run(ctx context.Context, sessionID int64) (research.JobResult, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a JobNotification per finished job. Empty disables publishing.
	Topic string
}

// Worker consumes queue items and drives each job through its states.
type Worker struct {
	queue     research.Queue
	jobStore  research.JobStore
	runner    JobRunner
	publisher research.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue research.Queue,
	jobStore research.JobStore,
	runner JobRunner,
	publisher research.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		runner:    runner,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, research.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.Int64("session_id", item.SessionID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item research.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.Int64("session_id", item.SessionID))
	if w.runner == nil {
		logger.Error("no job runner configured")
		w.fail(ctx, item, "no job runner configured", logger)
		return
	}
	if err := w.jobStore.MarkRunning(ctx, item.JobID); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		w.fail(ctx, item, "mark running: "+err.Error(), logger)
		return
	}

	metrics.IncActiveWorkers()
	result, err := w.runner.Run(ctx, item.SessionID)
	metrics.DecActiveWorkers()

	if err != nil {
		logger.Error("research job failed", zap.Error(err))
		w.fail(ctx, item, err.Error(), logger)
		return
	}

	if err := w.jobStore.MarkSucceeded(ctx, item.JobID, result); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(research.JobStateSucceeded))
	logger.Info("research job succeeded",
		zap.String("status", result.Status),
		zap.Int("sources_created", result.SourcesCreated),
	)
	w.publish(ctx, research.JobNotification{
		JobID:     item.JobID,
		SessionID: item.SessionID,
		State:     research.JobStateSucceeded,
		Result:    &result,
	}, logger)
}

func (w *Worker) fail(ctx context.Context, item research.QueueItem, errText string, logger *zap.Logger) {
	if err := w.jobStore.MarkFailed(ctx, item.JobID, errText); err != nil {
		logger.Error("fail job status update", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(research.JobStateFailed))
	w.publish(ctx, research.JobNotification{
		JobID:     item.JobID,
		SessionID: item.SessionID,
		State:     research.JobStateFailed,
		Error:     errText,
	}, logger)
}

// publish is best effort: a notification failure never changes the job state.
func (w *Worker) publish(ctx context.Context, n research.JobNotification, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, n)
	if err != nil {
		logger.Warn("publish job notification failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("job notification published", zap.String("topic", w.cfg.Topic), zap.String("message_id", id))
}
