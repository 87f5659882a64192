package preview

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
)

const pdfDPI = 150

// rasterizePDF renders the first page of src to a PNG in workDir.
func (g *Generator) rasterizePDF(ctx context.Context, src, workDir string) (string, error) {
	if _, err := exec.LookPath(g.opts.PDFToPPMPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolMissing, g.opts.PDFToPPMPath)
	}

	prefix := filepath.Join(workDir, "page")
	cmd := exec.CommandContext(ctx, g.opts.PDFToPPMPath,
		"-f", "1",
		"-l", "1",
		"-r", strconv.Itoa(pdfDPI),
		"-png",
		"-singlefile",
		src,
		prefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: pdftoppm: %v, output: %s", ErrToolFailed, err, tail(output))
	}

	return prefix + ".png", nil
}
