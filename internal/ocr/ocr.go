// Package ocr turns PDF reports into per-page raw text and table rows.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labvault/internal/config"
	"github.com/sells-group/labvault/internal/model"
)

// Extractor decodes a PDF into one RawSource per page.
type Extractor interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]model.RawSource, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig, mistralKey string) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if mistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral.key")
		}
		return NewMistralOCR(mistralKey, ""), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
