package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/joshu-sajeev/previewq/internal/preview"
	"gorm.io/gorm"
)

// FileRepository touches only the upload columns the preview pipeline
// reads and the preview_* columns it owns.
type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

var _ preview.FileStore = (*FileRepository)(nil)

func (r *FileRepository) Create(ctx context.Context, file *models.UploadedFile) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = utcNow()
	}
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (r *FileRepository) Get(ctx context.Context, id uint) (*models.UploadedFile, error) {
	var file models.UploadedFile
	if err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &file, nil
}

func (r *FileRepository) SetPreviewStatus(ctx context.Context, id uint, status config.PreviewStatus) error {
	if err := setFilePreviewStatus(r.db.WithContext(ctx), id, status); err != nil {
		return fmt.Errorf("set preview status: %w", err)
	}
	return nil
}

// SavePreview records a finished preview on the file.
func (r *FileRepository) SavePreview(ctx context.Context, id uint, previewFilename string, generatedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.UploadedFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"preview_filename":     previewFilename,
			"preview_status":       config.PreviewStatusCompleted,
			"preview_generated_at": generatedAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("save preview: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("file not found: %w", gorm.ErrRecordNotFound)
	}
	return nil
}
