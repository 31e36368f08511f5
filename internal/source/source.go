// Package source decodes submitted documents into per-page raw text and
// table rows.
package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/ocr"
)

var (
	// ErrUnsupportedFormat is returned for files no loader understands.
	ErrUnsupportedFormat = eris.New("source: unsupported format")
	// ErrTooDeep is returned when nested table data exceeds MaxDepth.
	ErrTooDeep = eris.New("source: nesting too deep")
)

// MaxDepth bounds the nesting walked inside JSON table data.
const MaxDepth = 32

// Document is one decoded submission.
type Document struct {
	Name  string            `json:"name"`
	Path  string            `json:"-"`
	Pages []model.RawSource `json:"pages"`
}

// TableRows counts the table rows across all pages.
func (d *Document) TableRows() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Rows)
	}
	return n
}

var extensions = map[string]bool{
	".txt":  true,
	".json": true,
	".csv":  true,
	".xlsx": true,
	".pdf":  true,
}

// Supported reports whether path has an extension Load understands.
func Supported(path string) bool {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// Loader reads documents from disk.
type Loader struct {
	pdf ocr.Extractor
}

// NewLoader returns a Loader. A nil extractor disables PDF input.
func NewLoader(pdf ocr.Extractor) *Loader {
	return &Loader{pdf: pdf}
}

// Load decodes the file at path by extension.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	doc := &Document{Name: filepath.Base(path), Path: path}

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		doc.Pages, err = loadText(path)
	case ".json":
		var f *os.File
		if f, err = os.Open(path); err == nil {
			var decoded *Document
			decoded, err = DecodeJSON(f, doc.Name)
			_ = f.Close()
			if err == nil {
				doc.Pages = decoded.Pages
			}
		}
	case ".csv":
		doc.Pages, err = loadCSV(path)
	case ".xlsx":
		doc.Pages, err = loadXLSX(path)
	case ".pdf":
		if l.pdf == nil {
			return nil, eris.Wrap(ErrUnsupportedFormat, "pdf decoding is not configured")
		}
		doc.Pages, err = l.pdf.ExtractPages(ctx, path)
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "source: load %s", doc.Name)
	}
	return doc, nil
}

func loadText(path string) ([]model.RawSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read text")
	}
	return ocr.SplitPages(string(data)), nil
}

// Expand replaces each directory argument with the supported files inside it
// (not recursive), in lexical order. File arguments are kept as given.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, eris.Wrapf(err, "source: stat %s", p)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, eris.Wrapf(err, "source: read dir %s", p)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && Supported(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(files)
		out = append(out, files...)
	}
	return out, nil
}
