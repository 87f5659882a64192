// Package app wires the shared runtime used by both the API server and the
// CLI worker.
package app

import (
	"context"
	"fmt"

	"github.com/joshu-sajeev/previewq/internal/blob"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/logger"
	"github.com/joshu-sajeev/previewq/internal/metrics"
	"github.com/joshu-sajeev/previewq/internal/preview"
	"github.com/joshu-sajeev/previewq/internal/queue"
	"github.com/joshu-sajeev/previewq/internal/storage/database"
	"gorm.io/gorm"
)

type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Store     blob.Storage
	Files     *database.FileRepository
	Jobs      *database.JobRepository
	Locks     *database.LockRepository
	Settings  *database.SettingsRepository
	Generator *preview.Generator
	Manager   *queue.Manager
}

// New loads configuration from the environment, connects and migrates the
// database and builds the queue. Stale scratch directories left by a
// crashed worker are removed on the way.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel)
	log := logger.FromContext(ctx)

	dbCfg, err := database.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	db, err := database.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, db); err != nil {
		closeDB(db)
		return nil, err
	}

	store, err := NewStorage(ctx, cfg)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	if n, err := preview.SweepTempFiles(cfg.TempDir, cfg.LeaseDuration); err != nil {
		log.Warn("temp sweep failed", "dir", cfg.TempDir, "error", err)
	} else if n > 0 {
		log.Info("removed stale preview scratch dirs", "count", n)
	}

	a := &App{
		Config:   cfg,
		DB:       db,
		Store:    store,
		Files:    database.NewFileRepository(db),
		Jobs:     database.NewJobRepository(db),
		Locks:    database.NewLockRepository(db),
		Settings: database.NewSettingsRepository(db),
	}

	a.Generator = preview.NewGenerator(a.Files, a.Store, a.Settings, preview.Options{
		TempDir:      cfg.TempDir,
		FFmpegPath:   cfg.FFmpegPath,
		PDFToPPMPath: cfg.PDFToPPMPath,
		CwebpPath:    cfg.CwebpPath,
	})

	a.Manager = queue.NewManager(a.Jobs, a.Locks, a.Generator, a.Settings, queue.Options{
		Lease:      cfg.LeaseDuration,
		RetryDelay: cfg.ClaimRetryDelay,
		MaxRetries: cfg.ClaimMaxRetries,
	})

	return a, nil
}

// NewStorage builds the configured blob store wrapped with metrics.
func NewStorage(ctx context.Context, cfg *config.Config) (blob.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMinIO:
		s, err := blob.NewMinIOStorage(&blob.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return metrics.NewInstrumentedStorage(s), nil

	case config.StorageDriverLocal:
		s, err := blob.NewLocalStorage(cfg.StorageRoot)
		if err != nil {
			return nil, err
		}
		return metrics.NewInstrumentedStorage(s), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
