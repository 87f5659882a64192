package preview

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"runtime/debug"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxPixels is the decode ceiling; larger images are rejected
	// from their header alone.
	DefaultMaxPixels = 50_000_000

	// Above this many pixels the soft memory limit is raised for the decode.
	largeImagePixels = 16_000_000

	// Rough bytes per pixel held at once: the decoded source plus the
	// resampling buffers.
	bytesPerPixel = 12
)

var memoryLimitMu sync.Mutex

// decodeImageFile decodes path after checking its dimensions against maxPixels.
func decodeImageFile(path string, maxPixels int64) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}

	pixels := int64(cfg.Width) * int64(cfg.Height)
	if pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	var img image.Image
	err = withMemoryHeadroom(pixels, func() error {
		var openErr error
		img, openErr = imaging.Open(path, imaging.AutoOrientation(true))
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}
	return img, nil
}

// withMemoryHeadroom raises the runtime soft memory limit while fn decodes
// a large image and restores it afterwards. Large decodes are serialized so
// two of them never stack their headroom.
func withMemoryHeadroom(pixels int64, fn func() error) error {
	if pixels <= largeImagePixels {
		return fn()
	}

	memoryLimitMu.Lock()
	defer memoryLimitMu.Unlock()

	prev := debug.SetMemoryLimit(-1)
	if prev == math.MaxInt64 {
		return fn()
	}

	need := pixels * bytesPerPixel
	if need > math.MaxInt64-prev {
		need = math.MaxInt64 - prev
	}
	debug.SetMemoryLimit(prev + need)
	defer debug.SetMemoryLimit(prev)

	return fn()
}

// fitCanvas scales img to fit inside width x height and centers it on a
// white canvas of exactly that size. Transparent pixels end up white.
func fitCanvas(img image.Image, width, height int) *image.NRGBA {
	fitted := imaging.Fit(img, width, height, imaging.Lanczos)
	canvas := imaging.New(width, height, color.White)
	return imaging.OverlayCenter(canvas, fitted, 1.0)
}
