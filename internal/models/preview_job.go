package models

import (
	"time"

	"github.com/joshu-sajeev/previewq/internal/config"
	"gorm.io/datatypes"
)

// PreviewJob is one request to render a preview for an uploaded file.
type PreviewJob struct {
	ID          uint             `gorm:"primaryKey;autoIncrement"`
	FileID      uint             `gorm:"not null;index"`
	Status      config.JobStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	Attempts    int              `gorm:"not null;default:0"`
	LastError   string           `gorm:"type:text"`
	Result      datatypes.JSON
	CreatedAt   time.Time `gorm:"not null"`
	ProcessedAt *time.Time
}

func (PreviewJob) TableName() string { return "preview_jobs" }

// QueueLock is a lease on a job. It is live only while ExpiresAt is in the future.
type QueueLock struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	JobID     uint      `gorm:"not null;uniqueIndex"`
	LockToken string    `gorm:"type:varchar(64);not null"`
	LockedAt  time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (QueueLock) TableName() string { return "queue_locks" }

func (l QueueLock) Live(now time.Time) bool {
	return l.ExpiresAt.After(now)
}
