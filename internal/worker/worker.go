package worker

import (
	"context"
	"time"

	"github.com/joshu-sajeev/previewq/internal/logger"
	"github.com/joshu-sajeev/previewq/internal/models"
)

// Processor is the part of the queue manager the daemon drives.
type Processor interface {
	SweepExpiredLocks(ctx context.Context) (int, error)
	ClaimNext(ctx context.Context, maxRetries int) (*models.PreviewJob, error)
	ProcessJob(ctx context.Context, job *models.PreviewJob) bool
}

type Options struct {
	IdleInterval time.Duration
	// MaxErrorDelay caps the doubling backoff used after database errors.
	MaxErrorDelay time.Duration
	Sleep         func(ctx context.Context, d time.Duration)
}

// Worker is the long-running daemon: sweep, claim, process, or sleep.
type Worker struct {
	proc Processor
	opts Options
}

// Stats counts what a Run processed.
type Stats struct {
	Succeeded int
	Failed    int
}

func NewWorker(proc Processor, opts Options) *Worker {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 5 * time.Second
	}
	if opts.MaxErrorDelay <= 0 {
		opts.MaxErrorDelay = 60 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Worker{proc: proc, opts: opts}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Run loops until ctx is cancelled. Cancellation is observed between
// jobs only: a claimed job runs to completion on a context that ignores
// ctx, so SIGTERM never leaves a job half written.
func (w *Worker) Run(ctx context.Context) Stats {
	log := logger.FromContext(ctx)
	var stats Stats
	errDelay := w.opts.IdleInterval

	log.Info("worker started", "idle_interval", w.opts.IdleInterval)
	for ctx.Err() == nil {
		if n, err := w.proc.SweepExpiredLocks(ctx); err != nil {
			log.Error("sweep expired locks", "error", err)
		} else if n > 0 {
			log.Info("failed stalled jobs", "count", n)
		}

		job, err := w.proc.ClaimNext(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("claim failed", "error", err, "retry_in", errDelay)
			w.opts.Sleep(ctx, errDelay)
			errDelay = min(errDelay*2, w.opts.MaxErrorDelay)
			continue
		}
		errDelay = w.opts.IdleInterval

		if job == nil {
			w.opts.Sleep(ctx, w.opts.IdleInterval)
			continue
		}

		if w.proc.ProcessJob(context.WithoutCancel(ctx), job) {
			stats.Succeeded++
			log.Info("job processed", "job_id", job.ID, "file_id", job.FileID)
		} else {
			stats.Failed++
			log.Warn("job failed", "job_id", job.ID, "file_id", job.FileID)
		}
	}

	log.Info("worker stopped", "succeeded", stats.Succeeded, "failed", stats.Failed)
	return stats
}
