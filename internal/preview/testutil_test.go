package preview

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/models"
	"gorm.io/gorm"
)

type fakeFiles struct {
	mu    sync.Mutex
	files map[uint]*models.UploadedFile
	// history of preview_status writes, in order
	statuses []config.PreviewStatus
}

func newFakeFiles(files ...*models.UploadedFile) *fakeFiles {
	f := &fakeFiles{files: map[uint]*models.UploadedFile{}}
	for _, file := range files {
		f.files[file.ID] = file
	}
	return f
}

func (f *fakeFiles) Get(_ context.Context, id uint) (*models.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %w", gorm.ErrRecordNotFound)
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFiles) SetPreviewStatus(_ context.Context, id uint, status config.PreviewStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id].PreviewStatus = status
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeFiles) SavePreview(_ context.Context, id uint, name string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := f.files[id]
	file.PreviewFilename = name
	file.PreviewStatus = config.PreviewStatusCompleted
	file.PreviewGeneratedAt = &at
	f.statuses = append(f.statuses, config.PreviewStatusCompleted)
	return nil
}

func (f *fakeFiles) status(id uint) config.PreviewStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[id].PreviewStatus
}

type staticSettings config.PreviewSettings

func (s staticSettings) PreviewSettings(context.Context) (config.PreviewSettings, error) {
	return config.PreviewSettings(s), nil
}

// createTestImage creates a gradient image.
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(255 * x / width), G: uint8(255 * y / height), B: 128, A: 255})
		}
	}
	return img
}

// createNoiseImage creates an image JPEG cannot compress well.
func createNoiseImage(width, height int) *image.NRGBA {
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// pngHeaderOnly returns a PNG signature plus an IHDR chunk claiming the
// given size. DecodeConfig accepts it; a full decode would fail.
func pngHeaderOnly(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})

	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:], width)
	binary.BigEndian.PutUint32(data[4:], height)
	data[8] = 8 // bit depth
	data[9] = 2 // truecolor

	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	chunk := append([]byte("IHDR"), data...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

// minimalPDF builds a one-page PDF with a filled rectangle and a valid
// xref table.
func minimalPDF() []byte {
	content := "0 0 1 rg 20 20 160 100 re f"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 140] /Contents 4 0 R /Resources << >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
