package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/joshu-sajeev/previewq/internal/blob"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/logger"
	"github.com/joshu-sajeev/previewq/internal/metrics"
	"github.com/joshu-sajeev/previewq/internal/models"
	"gorm.io/gorm"
)

// FileStore is the slice of the upload table the generator reads and updates.
type FileStore interface {
	Get(ctx context.Context, id uint) (*models.UploadedFile, error)
	SetPreviewStatus(ctx context.Context, id uint, status config.PreviewStatus) error
	SavePreview(ctx context.Context, id uint, previewFilename string, generatedAt time.Time) error
}

type SettingsProvider interface {
	PreviewSettings(ctx context.Context) (config.PreviewSettings, error)
}

type Options struct {
	TempDir      string
	FFmpegPath   string
	PDFToPPMPath string
	CwebpPath    string
	MaxPixels    int64
	Authorizer   Authorizer
	Now          func() time.Time
}

// Result describes a stored preview. It is persisted as the job result.
type Result struct {
	FileID          uint   `json:"file_id"`
	PreviewFilename string `json:"preview_filename"`
	Format          string `json:"format"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Quality         int    `json:"quality"`
	Bytes           int    `json:"bytes"`
}

type Generator struct {
	files    FileStore
	store    blob.Storage
	settings SettingsProvider
	opts     Options
}

func NewGenerator(files FileStore, store blob.Storage, settings SettingsProvider, opts Options) *Generator {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.PDFToPPMPath == "" {
		opts.PDFToPPMPath = "pdftoppm"
	}
	if opts.CwebpPath == "" {
		opts.CwebpPath = "cwebp"
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.Authorizer == nil {
		opts.Authorizer = OwnerAuthorizer{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Generator{
		files:    files,
		store:    store,
		settings: settings,
		opts:     opts,
	}
}

// Generate renders and stores the preview for fileID. It makes exactly one
// attempt; a nil error means the preview was stored and the file updated.
// Queue workers have no session and pass skipPermissionCheck=true.
func (g *Generator) Generate(ctx context.Context, fileID uint, skipPermissionCheck bool) (*Result, error) {
	log := logger.FromContext(ctx).With("file_id", fileID)

	file, err := g.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("preview requested for missing file")
			return nil, fmt.Errorf("%w: id %d", ErrFileNotFound, fileID)
		}
		return nil, fmt.Errorf("load file: %w", err)
	}

	if !skipPermissionCheck && !g.opts.Authorizer.CanView(ctx, file) {
		return nil, ErrAccessDenied
	}

	settings, err := g.settings.PreviewSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preview settings: %w", err)
	}

	exists, err := g.store.Exists(ctx, file.Filename)
	if err != nil {
		return nil, fmt.Errorf("check original: %w", err)
	}
	if !exists {
		log.Warn("original missing from storage", "key", file.Filename)
		return nil, fmt.Errorf("%w: %s", ErrOriginalMissing, file.Filename)
	}

	if err := g.files.SetPreviewStatus(ctx, file.ID, config.PreviewStatusProcessing); err != nil {
		return nil, err
	}

	result, err := g.render(ctx, file, settings)
	if err != nil {
		log.Error("preview generation failed", "mimetype", file.Mimetype, "error", err)
		if markErr := g.files.SetPreviewStatus(context.WithoutCancel(ctx), file.ID, config.PreviewStatusFailed); markErr != nil {
			log.Error("failed to mark preview failed", "error", markErr)
		}
		return nil, err
	}

	log.Info("preview generated",
		"key", result.PreviewFilename,
		"bytes", result.Bytes,
		"quality", result.Quality,
	)
	return result, nil
}

func (g *Generator) render(ctx context.Context, file *models.UploadedFile, settings config.PreviewSettings) (*Result, error) {
	workDir, err := os.MkdirTemp(g.opts.TempDir, TempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	src := filepath.Join(workDir, "source"+strings.ToLower(path.Ext(file.Filename)))
	if err := g.download(ctx, file.Filename, src); err != nil {
		return nil, err
	}

	canvas, err := g.decode(ctx, file.Mimetype, src, workDir, settings)
	if err != nil {
		return nil, err
	}

	enc := g.encoderFor(settings.Format, workDir)
	data, quality, err := encodeWithinBudget(ctx, enc, canvas, settings.Quality, settings.MaxSizeKB*1024)
	if err != nil {
		return nil, err
	}
	metrics.PreviewBytes.WithLabelValues(settings.Format).Observe(float64(len(data)))

	out := filepath.Join(workDir, "preview."+settings.Extension())
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return nil, fmt.Errorf("write preview: %w", err)
	}

	key := PreviewKey(file.Filename, settings)
	if err := g.store.Put(ctx, key, out); err != nil {
		return nil, fmt.Errorf("store preview: %w", err)
	}

	if err := g.files.SavePreview(ctx, file.ID, key, g.opts.Now()); err != nil {
		return nil, err
	}

	return &Result{
		FileID:          file.ID,
		PreviewFilename: key,
		Format:          settings.Format,
		Width:           settings.Width,
		Height:          settings.Height,
		Quality:         quality,
		Bytes:           len(data),
	}, nil
}

// download streams the original into a local file.
func (g *Generator) download(ctx context.Context, key, dst string) error {
	rc, err := g.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrOriginalMissing, key)
		}
		return fmt.Errorf("open original: %w", err)
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create source file: %w", err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return fmt.Errorf("copy original: %w", err)
	}
	return f.Close()
}

// decode turns the source into a settings.Width x settings.Height canvas
// according to its MIME type.
func (g *Generator) decode(ctx context.Context, mimetype, src, workDir string, settings config.PreviewSettings) (image.Image, error) {
	var raster string

	switch {
	case strings.HasPrefix(mimetype, "image/"):
		raster = src
	case strings.HasPrefix(mimetype, "video/"):
		frame, err := g.extractVideoFrame(ctx, src, workDir, settings.Width, settings.Height)
		if err != nil {
			return nil, err
		}
		raster = frame
	case mimetype == "application/pdf":
		page, err := g.rasterizePDF(ctx, src, workDir)
		if err != nil {
			return nil, err
		}
		raster = page
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mimetype)
	}

	img, err := decodeImageFile(raster, g.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	return fitCanvas(img, settings.Width, settings.Height), nil
}

// PreviewKey is the storage key for a file's preview. The same original
// and format always map to the same key, so regenerating overwrites.
func PreviewKey(originalKey string, settings config.PreviewSettings) string {
	base := path.Base(originalKey)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return fmt.Sprintf("previews/%s_preview.%s", stem, settings.Extension())
}
