package preview

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// extractVideoFrame pulls one frame, already scaled and padded to the
// target box, into workDir. It seeks one second in to skip black lead-in
// frames and falls back to the first frame for shorter clips.
func (g *Generator) extractVideoFrame(ctx context.Context, src, workDir string, width, height int) (string, error) {
	if _, err := exec.LookPath(g.opts.FFmpegPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolMissing, g.opts.FFmpegPath)
	}

	out := filepath.Join(workDir, "frame.jpg")
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:white",
		width, height, width, height,
	)

	var lastErr error
	for _, seek := range []string{"1", "0"} {
		os.Remove(out)

		cmd := exec.CommandContext(ctx, g.opts.FFmpegPath,
			"-ss", seek,
			"-i", src,
			"-vframes", "1",
			"-vf", filter,
			"-y", out,
		)
		output, err := cmd.CombinedOutput()
		if err != nil {
			lastErr = fmt.Errorf("%w: ffmpeg: %v, output: %s", ErrToolFailed, err, tail(output))
			continue
		}

		if info, statErr := os.Stat(out); statErr == nil && info.Size() > 0 {
			return out, nil
		}
		lastErr = fmt.Errorf("%w: ffmpeg produced no frame at %ss", ErrToolFailed, seek)
	}

	return "", lastErr
}

// tail keeps the end of tool output, where the actual error usually is.
func tail(output []byte) string {
	const limit = 512
	if len(output) > limit {
		output = output[len(output)-limit:]
	}
	return string(output)
}
