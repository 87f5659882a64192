package queue

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/dto"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/joshu-sajeev/previewq/internal/preview"
	"gorm.io/datatypes"
)

// JobStore is the durable job table plus the claim transaction.
type JobStore interface {
	Create(ctx context.Context, fileID uint) (*models.PreviewJob, error)
	Get(ctx context.Context, id uint) (*models.PreviewJob, error)
	ClaimNext(ctx context.Context, lease time.Duration) (*models.PreviewJob, error)
	MarkCompleted(ctx context.Context, id uint, result datatypes.JSON) error
	MarkFailed(ctx context.Context, id uint, errMsg string) error
	CountByStatus(ctx context.Context) (map[config.JobStatus]int64, error)
	CountPending(ctx context.Context) (int64, error)
}

// LockStore holds the per-job leases.
type LockStore interface {
	Acquire(ctx context.Context, jobID uint, lease time.Duration) (string, error)
	SweepExpired(ctx context.Context) (int, error)
}

type Generator interface {
	Generate(ctx context.Context, fileID uint, skipPermissionCheck bool) (*preview.Result, error)
}

type SettingsProvider interface {
	PreviewSettings(ctx context.Context) (config.PreviewSettings, error)
}

// QueueServiceInterface is what the HTTP handler needs from the manager.
type QueueServiceInterface interface {
	ProcessBatch(ctx context.Context, limit int) (*dto.BatchResult, error)
	Stats(ctx context.Context) (*dto.QueueStatus, error)
	Enqueue(ctx context.Context, fileID uint) (*dto.JobResponse, error)
	GetJob(ctx context.Context, id uint) (*dto.JobResponse, error)
}

type QueueHandlerInterface interface {
	Process(c *gin.Context)
	Status(c *gin.Context)
	WorkerStatus(c *gin.Context)
	Regenerate(c *gin.Context)
	GetJob(c *gin.Context)
}
