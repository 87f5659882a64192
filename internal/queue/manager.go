package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joshu-sajeev/previewq/common"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/dto"
	"github.com/joshu-sajeev/previewq/internal/logger"
	"github.com/joshu-sajeev/previewq/internal/metrics"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/joshu-sajeev/previewq/internal/worker"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MinBatchLimit = 1
	MaxBatchLimit = 10

	DefaultLease      = 5 * time.Minute
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultMaxRetries = 5
)

type Options struct {
	// Lease is how long a claimed job stays owned before the sweep may fail it.
	Lease time.Duration
	// RetryDelay is the base of the linear claim backoff (delay * attempt).
	RetryDelay time.Duration
	MaxRetries int
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Manager runs the claim protocol and drives jobs through the generator.
type Manager struct {
	jobs      JobStore
	locks     LockStore
	generator Generator
	settings  SettingsProvider
	opts      Options
}

var (
	_ QueueServiceInterface = (*Manager)(nil)
	_ worker.Processor      = (*Manager)(nil)
)

func NewManager(jobs JobStore, locks LockStore, generator Generator, settings SettingsProvider, opts Options) *Manager {
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Manager{
		jobs:      jobs,
		locks:     locks,
		generator: generator,
		settings:  settings,
		opts:      opts,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClaimNext claims the oldest claimable job. Contention is retried up to
// maxRetries times with a linear backoff; running out of retries looks
// the same as an empty queue. Only non-contention failures are returned.
func (m *Manager) ClaimNext(ctx context.Context, maxRetries int) (*models.PreviewJob, error) {
	if maxRetries <= 0 {
		maxRetries = m.opts.MaxRetries
	}
	log := logger.FromContext(ctx)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		job, err := m.jobs.ClaimNext(ctx, m.opts.Lease)
		if err == nil {
			if job == nil {
				metrics.QueueClaimsTotal.WithLabelValues("empty").Inc()
				return nil, nil
			}
			metrics.QueueClaimsTotal.WithLabelValues("claimed").Inc()
			log.Debug("job claimed", "job_id", job.ID, "file_id", job.FileID, "attempts", job.Attempts)
			return job, nil
		}

		if !errors.Is(err, ErrContention) {
			return nil, err
		}
		if attempt == maxRetries {
			break
		}

		metrics.QueueClaimRetriesTotal.Inc()
		delay := m.opts.RetryDelay * time.Duration(attempt)
		log.Debug("claim contention, retrying", "attempt", attempt, "delay", delay)
		if err := m.opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	metrics.QueueClaimsTotal.WithLabelValues("exhausted").Inc()
	log.Warn("claim retries exhausted", "max_retries", maxRetries)
	return nil, nil
}

// ProcessJob generates the preview for a claimed job and records the
// outcome. It never panics and reports success as a bool; a failure to
// record the outcome is logged and counts as a failure.
func (m *Manager) ProcessJob(ctx context.Context, job *models.PreviewJob) (ok bool) {
	log := logger.FromContext(ctx).With("job_id", job.ID, "file_id", job.FileID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("preview generation panicked", "panic", r)
			m.fail(ctx, job, fmt.Sprintf("panic: %v", r))
			ok = false
		}
		status := string(config.JobStatusCompleted)
		if !ok {
			status = string(config.JobStatusFailed)
		}
		metrics.JobsProcessedTotal.WithLabelValues(status).Inc()
		metrics.JobsProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	res, err := m.generator.Generate(ctx, job.FileID, true)
	if err != nil {
		log.Warn("preview job failed", "error", err)
		m.fail(ctx, job, err.Error())
		return false
	}

	payload, err := json.Marshal(res)
	if err != nil {
		m.fail(ctx, job, fmt.Sprintf("encode result: %v", err))
		return false
	}

	if err := m.jobs.MarkCompleted(ctx, job.ID, datatypes.JSON(payload)); err != nil {
		// a lease that expired mid-job has already failed it
		log.Error("failed to mark job completed", "error", err)
		return false
	}

	log.Info("preview job completed", "duration", time.Since(start))
	return true
}

func (m *Manager) fail(ctx context.Context, job *models.PreviewJob, msg string) {
	if err := m.jobs.MarkFailed(ctx, job.ID, msg); err != nil {
		logger.FromContext(ctx).Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
}

// ProcessBatch claims and processes up to limit jobs. A limit outside
// [MinBatchLimit, MaxBatchLimit] is clamped; zero means the configured
// max_concurrent. Jobs run with a context detached from ctx so a caller
// going away never leaves a half-written job.
func (m *Manager) ProcessBatch(ctx context.Context, limit int) (*dto.BatchResult, error) {
	if limit == 0 {
		settings, err := m.settings.PreviewSettings(ctx)
		if err != nil {
			return nil, common.Errf(http.StatusInternalServerError, "failed to load settings")
		}
		limit = settings.MaxConcurrent
	}
	limit = ClampLimit(limit)

	result := &dto.BatchResult{Results: []dto.JobOutcome{}}
	jobCtx := context.WithoutCancel(ctx)

	for result.Processed < limit {
		// the caller left or timed out; report what finished
		if ctx.Err() != nil {
			break
		}

		job, err := m.ClaimNext(jobCtx, 0)
		if err != nil {
			logger.FromContext(ctx).Error("claim failed", "error", err)
			return nil, common.Errf(http.StatusInternalServerError, "failed to claim job")
		}
		if job == nil {
			break
		}

		outcome := dto.JobOutcome{JobID: job.ID, FileID: job.FileID}
		outcome.Success = m.ProcessJob(jobCtx, job)
		if !outcome.Success {
			if failed, err := m.jobs.Get(jobCtx, job.ID); err == nil {
				outcome.Error = failed.LastError
			}
		}

		result.Results = append(result.Results, outcome)
		result.Processed++
	}

	pending, err := m.jobs.CountPending(jobCtx)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to count pending jobs")
	}
	result.HasMore = pending > 0

	return result, nil
}

func ClampLimit(limit int) int {
	return max(MinBatchLimit, min(limit, MaxBatchLimit))
}

// SweepExpiredLocks fails stalled jobs whose lease ran out.
func (m *Manager) SweepExpiredLocks(ctx context.Context) (int, error) {
	n, err := m.locks.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.QueueLocksExpiredTotal.Add(float64(n))
		logger.FromContext(ctx).Warn("failed stalled jobs", "count", n)
	}
	return n, nil
}

// Enqueue queues a (re)generation for fileID.
func (m *Manager) Enqueue(ctx context.Context, fileID uint) (*dto.JobResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := m.jobs.Create(ctx, fileID)
	if err != nil {
		return nil, mapStoreError(err, "file not found", "failed to queue preview")
	}

	logger.FromContext(ctx).Info("preview queued", "job_id", job.ID, "file_id", fileID)
	return toJobResponse(job), nil
}

func (m *Manager) GetJob(ctx context.Context, id uint) (*dto.JobResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "job not found", "failed to get job")
	}
	return toJobResponse(job), nil
}

// Stats reports the queue counts plus the configured mode and concurrency.
func (m *Manager) Stats(ctx context.Context) (*dto.QueueStatus, error) {
	counts, err := m.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, mapStoreError(err, "", "failed to count jobs")
	}
	settings, err := m.settings.PreviewSettings(ctx)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to load settings")
	}

	for status, n := range counts {
		metrics.JobsInQueue.WithLabelValues(string(status)).Set(float64(n))
	}

	return &dto.QueueStatus{
		Pending:       counts[config.JobStatusPending],
		Processing:    counts[config.JobStatusProcessing],
		Failed:        counts[config.JobStatusFailed],
		Completed:     counts[config.JobStatusCompleted],
		Mode:          settings.QueueMode,
		MaxConcurrent: settings.MaxConcurrent,
	}, nil
}

func mapStoreError(err error, notFound, internal string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	case notFound != "" && errors.Is(err, gorm.ErrRecordNotFound):
		return common.Errf(http.StatusNotFound, "%s", notFound)
	default:
		return common.Errf(http.StatusInternalServerError, "%s", internal)
	}
}

func toJobResponse(job *models.PreviewJob) *dto.JobResponse {
	resp := &dto.JobResponse{
		ID:          job.ID,
		FileID:      job.FileID,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		Error:       job.LastError,
		CreatedAt:   job.CreatedAt,
		ProcessedAt: job.ProcessedAt,
	}
	if len(job.Result) > 0 {
		resp.Result = json.RawMessage(job.Result)
	}
	return resp
}
