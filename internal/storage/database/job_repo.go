package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/joshu-sajeev/previewq/internal/queue"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: utcNow}
}

var _ queue.JobStore = (*JobRepository)(nil)

// WithClock replaces the time source. Tests use it to move past lease expiry.
func (r *JobRepository) WithClock(now func() time.Time) *JobRepository {
	r.now = func() time.Time { return now().UTC() }
	return r
}

func utcNow() time.Time { return time.Now().UTC() }

// Create inserts a pending job for fileID and flips the file's preview
// status to pending in the same transaction. Callers own de-duplication.
func (r *JobRepository) Create(ctx context.Context, fileID uint) (*models.PreviewJob, error) {
	job := models.PreviewJob{
		FileID:    fileID,
		Status:    config.JobStatusPending,
		CreatedAt: r.now(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.UploadedFile
		if err := tx.Select("id").First(&file, "id = ?", fileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("file not found: %w", err)
			}
			return fmt.Errorf("get file: %w", err)
		}

		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		return setFilePreviewStatus(tx, fileID, config.PreviewStatusPending)
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return &job, nil
}

func (r *JobRepository) Get(ctx context.Context, id uint) (*models.PreviewJob, error) {
	var job models.PreviewJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %w", err)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ClaimNext runs the claim protocol in one write transaction: sweep
// expired leases, pick the oldest pending job without a live lock, move it
// to processing with attempts+1 and insert a fresh lock. It returns
// (nil, nil) when nothing is claimable. Errors caused by another writer
// wrap queue.ErrContention.
func (r *JobRepository) ClaimNext(ctx context.Context, lease time.Duration) (*models.PreviewJob, error) {
	var claimed *models.PreviewJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()

		if _, err := sweepExpiredLocks(tx, now); err != nil {
			return err
		}

		q := tx.Where("status = ?", config.JobStatusPending).
			Where("NOT EXISTS (SELECT 1 FROM queue_locks l WHERE l.job_id = preview_jobs.id AND l.expires_at > ?)", now).
			Order("created_at ASC").
			Order("id ASC").
			Limit(1)
		if tx.Dialector.Name() == DriverPostgres {
			q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
		}

		var candidates []models.PreviewJob
		if err := q.Find(&candidates).Error; err != nil {
			return fmt.Errorf("select pending job: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		job := candidates[0]
		if !job.Status.CanTransition(config.JobStatusProcessing) {
			return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, config.ErrInvalidTransition)
		}

		res := tx.Model(&models.PreviewJob{}).
			Where("id = ? AND status = ?", job.ID, config.JobStatusPending).
			Updates(map[string]any{
				"status":   config.JobStatusProcessing,
				"attempts": gorm.Expr("attempts + ?", 1),
			})
		if res.Error != nil {
			return fmt.Errorf("mark processing: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return queue.ErrContention
		}

		if _, err := insertLock(tx, job.ID, now, lease); err != nil {
			return err
		}

		job.Status = config.JobStatusProcessing
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		if IsContention(err) {
			return nil, fmt.Errorf("claim job: %w: %w", queue.ErrContention, err)
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}

	return claimed, nil
}

// MarkCompleted moves a processing job to completed, stores the preview
// metadata and mirrors the status onto the file.
func (r *JobRepository) MarkCompleted(ctx context.Context, id uint, result datatypes.JSON) error {
	updates := map[string]any{
		"result":     result,
		"last_error": "",
	}
	if err := r.finish(ctx, id, config.JobStatusCompleted, updates); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed moves a processing job to failed with errMsg.
func (r *JobRepository) MarkFailed(ctx context.Context, id uint, errMsg string) error {
	if err := r.finish(ctx, id, config.JobStatusFailed, map[string]any{"last_error": errMsg}); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// finish applies a terminal transition. When the transition is rejected
// because the job already reached a terminal state (a sweep failed it while
// the preview was still being written), the file is put back in line with
// the job before the rejection is returned.
func (r *JobRepository) finish(ctx context.Context, id uint, to config.JobStatus, updates map[string]any) error {
	var rejected error

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.PreviewJob
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job not found: %w", err)
			}
			return fmt.Errorf("get job: %w", err)
		}

		if !job.Status.CanTransition(to) {
			rejected = fmt.Errorf("job %d is %s: %w", id, job.Status, config.ErrInvalidTransition)
			return mirrorTerminal(tx, &job)
		}

		updates["status"] = to
		updates["processed_at"] = r.now()

		res := tx.Model(&models.PreviewJob{}).
			Where("id = ? AND status = ?", id, job.Status).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			if err := tx.First(&job, "id = ?", id).Error; err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			rejected = fmt.Errorf("job %d changed concurrently to %s: %w", id, job.Status, config.ErrInvalidTransition)
			return mirrorTerminal(tx, &job)
		}

		return setFilePreviewStatus(tx, job.FileID, to.Preview())
	})
	if err != nil {
		return err
	}
	return rejected
}

// mirrorTerminal copies a terminal job status onto its file unless a newer
// job for the same file has taken over.
func mirrorTerminal(tx *gorm.DB, job *models.PreviewJob) error {
	if !job.Status.IsTerminal() {
		return nil
	}

	var newer int64
	if err := tx.Model(&models.PreviewJob{}).
		Where("file_id = ? AND id > ?", job.FileID, job.ID).
		Count(&newer).Error; err != nil {
		return fmt.Errorf("count newer jobs: %w", err)
	}
	if newer > 0 {
		return nil
	}

	return setFilePreviewStatus(tx, job.FileID, job.Status.Preview())
}

// CountByStatus returns the number of jobs in each status. Every status is
// present in the map, zero when no job has it.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[config.JobStatus]int64, error) {
	var rows []struct {
		Status config.JobStatus
		Total  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.PreviewJob{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	counts := make(map[config.JobStatus]int64, len(config.AllJobStatuses))
	for _, s := range config.AllJobStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *JobRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.PreviewJob{}).
		Where("status = ?", config.JobStatusPending).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func setFilePreviewStatus(tx *gorm.DB, fileID uint, status config.PreviewStatus) error {
	if err := tx.Model(&models.UploadedFile{}).
		Where("id = ?", fileID).
		Update("preview_status", status).Error; err != nil {
		return fmt.Errorf("update file preview status: %w", err)
	}
	return nil
}
