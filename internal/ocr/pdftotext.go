package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labvault/internal/model"
)

// PdfToText extracts the text layer of a PDF with the pdftotext CLI tool.
// It yields text only; tables arrive as column-aligned lines.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractPages runs pdftotext -layout and splits its output on form feeds.
func (p *PdfToText) ExtractPages(ctx context.Context, pdfPath string) ([]model.RawSource, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}
	return SplitPages(stdout.String()), nil
}

// SplitPages splits form-feed separated text into numbered pages, dropping
// the empty page pdftotext leaves after the final form feed.
func SplitPages(text string) []model.RawSource {
	parts := strings.Split(text, "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]model.RawSource, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, model.RawSource{Page: i + 1, Text: p})
	}
	return pages
}
