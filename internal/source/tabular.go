package source

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/labvault/internal/model"
)

// loadCSV reads a CSV export as a single page of table rows.
func loadCSV(path string) ([]model.RawSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return []model.RawSource{{Page: 1, Rows: rows}}, nil
}

// ReadCSV reads every record, tolerating ragged rows and stray quotes.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		rows = append(rows, record)
	}
}

// loadXLSX reads each worksheet as one page of table rows.
func loadXLSX(path string) ([]model.RawSource, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	pages := make([]model.RawSource, 0, len(f.Sheets))
	for i, sheet := range f.Sheets {
		src := model.RawSource{Page: i + 1}
		for _, row := range sheet.Rows {
			src.Rows = append(src.Rows, rowToStrings(row))
		}
		pages = append(pages, src)
	}
	return pages, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
