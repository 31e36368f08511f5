package source

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labvault/internal/model"
)

// DecodeJSON reads a decoded document of the form
//
//	{"name": "...", "pages": [{"page": 1, "text": "...", "rows": [...], "tables": [...]}]}
//
// or a bare array of pages. Table data under "rows" and "tables" may be nested
// to any depth up to MaxDepth; every array of scalars becomes one row.
func DecodeJSON(r io.Reader, name string) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "source: decode json")
	}

	doc := &Document{Name: name}
	var pages []any
	switch v := raw.(type) {
	case []any:
		pages = v
	case map[string]any:
		if n, ok := v["name"].(string); ok && n != "" {
			doc.Name = n
		}
		p, ok := v["pages"].([]any)
		if !ok {
			return nil, eris.New("source: json document has no pages array")
		}
		pages = p
	default:
		return nil, eris.New("source: json document must be an object or array")
	}

	for i, p := range pages {
		obj, ok := p.(map[string]any)
		if !ok {
			return nil, eris.Errorf("source: page %d is not an object", i+1)
		}
		src := model.RawSource{Page: i + 1}
		if n, ok := obj["page"].(json.Number); ok {
			if v, err := n.Int64(); err == nil && v > 0 {
				src.Page = int(v)
			}
		}
		if text, ok := obj["text"].(string); ok {
			src.Text = text
		}
		for _, key := range []string{"rows", "tables"} {
			if tables, ok := obj[key]; ok {
				rows, err := collectRows(tables, 0)
				if err != nil {
					return nil, eris.Wrapf(err, "page %d", src.Page)
				}
				src.Rows = append(src.Rows, rows...)
			}
		}
		doc.Pages = append(doc.Pages, src)
	}
	return doc, nil
}

// collectRows walks nested arrays and objects, emitting every array whose
// elements are all scalars as a row. Object values are visited in key order.
func collectRows(node any, depth int) ([][]string, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}

	switch v := node.(type) {
	case []any:
		if row, ok := scalarRow(v); ok {
			if len(row) == 0 {
				return nil, nil
			}
			return [][]string{row}, nil
		}
		var rows [][]string
		for _, child := range v {
			sub, err := collectRows(child, depth+1)
			if err != nil {
				return nil, err
			}
			rows = append(rows, sub...)
		}
		return rows, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var rows [][]string
		for _, k := range keys {
			sub, err := collectRows(v[k], depth+1)
			if err != nil {
				return nil, err
			}
			rows = append(rows, sub...)
		}
		return rows, nil
	default:
		return nil, nil
	}
}

func scalarRow(items []any) ([]string, bool) {
	row := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := scalar(it)
		if !ok {
			return nil, false
		}
		row = append(row, s)
	}
	return row, true
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}
