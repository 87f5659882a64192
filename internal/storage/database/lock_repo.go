package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/joshu-sajeev/previewq/internal/queue"
	"gorm.io/gorm"
)

type LockRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLockRepository(db *gorm.DB) *LockRepository {
	return &LockRepository{db: db, now: utcNow}
}

var _ queue.LockStore = (*LockRepository)(nil)

func (r *LockRepository) WithClock(now func() time.Time) *LockRepository {
	r.now = func() time.Time { return now().UTC() }
	return r
}

// Acquire inserts a lease on jobID and returns its token. Expired leases
// are swept first, so only a live lock blocks the insert; that case
// returns queue.ErrLockHeld.
func (r *LockRepository) Acquire(ctx context.Context, jobID uint, lease time.Duration) (string, error) {
	var token string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		if _, err := sweepExpiredLocks(tx, now); err != nil {
			return err
		}

		lock, err := insertLock(tx, jobID, now, lease)
		if err != nil {
			if isDuplicate(err) {
				return queue.ErrLockHeld
			}
			return err
		}
		token = lock.LockToken
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("acquire lock for job %d: %w", jobID, err)
	}

	return token, nil
}

// insertLock writes a fresh lease for jobID. The unique index on job_id
// makes a second live lease fail with a duplicate-key error.
func insertLock(tx *gorm.DB, jobID uint, now time.Time, lease time.Duration) (*models.QueueLock, error) {
	lock := models.QueueLock{
		JobID:     jobID,
		LockToken: uuid.NewString(),
		LockedAt:  now,
		ExpiresAt: now.Add(lease),
	}
	if err := tx.Create(&lock).Error; err != nil {
		return nil, fmt.Errorf("insert lock: %w", err)
	}
	return &lock, nil
}

// SweepExpired deletes expired leases and fails the jobs they were
// guarding. It returns how many jobs were failed.
func (r *LockRepository) SweepExpired(ctx context.Context) (int, error) {
	var n int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = sweepExpiredLocks(tx, r.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	return n, nil
}

// sweepExpiredLocks must run inside a transaction. A job still processing
// when its lease ran out, or processing with no lease at all, is stalled:
// it becomes failed with LockExpiredMessage and is never put back to
// pending.
func sweepExpiredLocks(tx *gorm.DB, now time.Time) (int, error) {
	var expired []models.QueueLock
	if err := tx.Where("expires_at <= ?", now).Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("find expired locks: %w", err)
	}

	var stalled []uint
	for _, lock := range expired {
		res := tx.Where("id = ? AND expires_at <= ?", lock.ID, now).Delete(&models.QueueLock{})
		if res.Error != nil {
			return 0, fmt.Errorf("delete expired lock: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			stalled = append(stalled, lock.JobID)
		}
	}

	var orphans []uint
	if err := tx.Model(&models.PreviewJob{}).
		Where("status = ?", config.JobStatusProcessing).
		Where("NOT EXISTS (SELECT 1 FROM queue_locks l WHERE l.job_id = preview_jobs.id)").
		Pluck("id", &orphans).Error; err != nil {
		return 0, fmt.Errorf("find orphaned jobs: %w", err)
	}
	stalled = append(stalled, orphans...)

	failed := 0
	for _, jobID := range stalled {
		ok, err := failStalledJob(tx, jobID, now)
		if err != nil {
			return 0, err
		}
		if ok {
			failed++
		}
	}

	return failed, nil
}

func failStalledJob(tx *gorm.DB, jobID uint, now time.Time) (bool, error) {
	var job models.PreviewJob
	if err := tx.Select("id", "file_id", "status").Limit(1).Find(&job, "id = ?", jobID).Error; err != nil {
		return false, fmt.Errorf("get stalled job: %w", err)
	}
	if job.ID == 0 || job.Status != config.JobStatusProcessing {
		return false, nil
	}

	res := tx.Model(&models.PreviewJob{}).
		Where("id = ? AND status = ?", jobID, config.JobStatusProcessing).
		Updates(map[string]any{
			"status":       config.JobStatusFailed,
			"last_error":   config.LockExpiredMessage,
			"processed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("fail stalled job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := setFilePreviewStatus(tx, job.FileID, config.PreviewStatusFailed); err != nil {
		return false, err
	}
	return true, nil
}
