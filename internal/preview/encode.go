package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/joshu-sajeev/previewq/internal/config"
)

const (
	qualityStep  = 10
	qualityFloor = 10
)

type encoder interface {
	Encode(ctx context.Context, img image.Image, quality int) ([]byte, error)
}

type jpegEncoder struct{}

func (jpegEncoder) Encode(_ context.Context, img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// cwebpEncoder shells out to cwebp; the image goes through a lossless PNG
// in dir first.
type cwebpEncoder struct {
	path string
	dir  string
}

func (e cwebpEncoder) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	if _, err := exec.LookPath(e.path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolMissing, e.path)
	}

	in := filepath.Join(e.dir, "encode-input.png")
	out := filepath.Join(e.dir, "encode-output.webp")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := imaging.Save(img, in); err != nil {
		return nil, fmt.Errorf("failed to write encoder input: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.path, "-quiet", "-q", strconv.Itoa(quality), in, "-o", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: cwebp: %v, output: %s", ErrToolFailed, err, tail(output))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read cwebp output: %w", err)
	}
	return data, nil
}

func (g *Generator) encoderFor(format, workDir string) encoder {
	if format == config.FormatWebP {
		return cwebpEncoder{path: g.opts.CwebpPath, dir: workDir}
	}
	return jpegEncoder{}
}

// encodeWithinBudget encodes at quality and, while the output is larger
// than budget bytes, re-encodes with quality lowered by qualityStep. It
// stops once under budget or at qualityFloor and returns the final bytes
// and the quality used. A budget <= 0 disables the loop.
func encodeWithinBudget(ctx context.Context, enc encoder, img image.Image, quality, budget int) ([]byte, int, error) {
	q := quality
	for {
		data, err := enc.Encode(ctx, img, q)
		if err != nil {
			return nil, 0, err
		}
		if budget <= 0 || len(data) <= budget || q <= qualityFloor {
			return data, q, nil
		}
		q = max(q-qualityStep, qualityFloor)
	}
}
