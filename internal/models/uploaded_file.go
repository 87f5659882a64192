package models

import (
	"time"

	"github.com/joshu-sajeev/previewq/internal/config"
)

// UploadedFile carries the subset of the upload record the preview
// pipeline reads and the three preview fields it writes.
type UploadedFile struct {
	ID                 uint                 `gorm:"primaryKey;autoIncrement"`
	UserID             uint                 `gorm:"not null;default:0"`
	Filename           string               `gorm:"not null"`
	OriginalName       string               `gorm:"not null;default:''"`
	Mimetype           string               `gorm:"not null;default:''"`
	Size               int64                `gorm:"not null;default:0"`
	PreviewFilename    string               `gorm:"not null;default:''"`
	PreviewStatus      config.PreviewStatus `gorm:"type:varchar(20);not null;default:''"`
	PreviewGeneratedAt *time.Time
	CreatedAt          time.Time `gorm:"not null"`
}

func (UploadedFile) TableName() string { return "uploaded_files" }

// Setting is a raw key/value row from the settings table.
type Setting struct {
	Key   string `gorm:"primaryKey;type:varchar(100)"`
	Value string `gorm:"type:text;not null"`
}

func (Setting) TableName() string { return "settings" }
