package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/labvault/internal/model"
)

var flagValueRe = regexp.MustCompile(`^([HhLl])\s+(` + numPattern + `)$`)

// minColumns is the fewest non-blank columns the column-split strategy
// accepts: name, value and one of unit or range.
const minColumns = 3

// demographicLabels never name a test even when followed by a number.
var demographicLabels = map[string]bool{
	"age": true, "gender": true, "sex": true, "name": true, "uhid": true,
	"mrn": true, "sid no": true, "barcode": true, "mobile no": true, "patient id": true,
}

// column roles used by the labeled-column strategy.
type role int

const (
	roleName role = iota
	roleValue
	roleUnit
	roleRange
	roleMethod
	roleFlag
	roleCount
)

// header maps each role to a column index, -1 when absent.
type header [roleCount]int

// positional reports whether the header lays columns out the way the
// column-split strategy reads them.
func (h header) positional() bool {
	want := header{0, 1, 2, 3, 4, -1}
	for r := role(0); r < roleCount; r++ {
		if h[r] >= 0 && h[r] != want[r] {
			return false
		}
	}
	return true
}

// parseHeader maps header labels to roles. A row is a header only when it
// names both a test column and a result column.
func parseHeader(cells []string) (header, bool) {
	h := header{-1, -1, -1, -1, -1, -1}
	for i, c := range cells {
		r, ok := headerRole(c)
		if ok && h[r] < 0 {
			h[r] = i
		}
	}
	return h, h[roleName] >= 0 && h[roleValue] >= 0
}

func headerRole(cell string) (role, bool) {
	c := strings.ToLower(Clean(cell))
	switch {
	case c == "":
		return 0, false
	case strings.Contains(c, "method"):
		return roleMethod, true
	case c == "flag" || c == "status":
		return roleFlag, true
	case strings.Contains(c, "reference") || strings.Contains(c, "range") ||
		strings.Contains(c, "normal") || strings.Contains(c, "interval"):
		return roleRange, true
	case c == "unit" || c == "units" || c == "uom" || strings.HasPrefix(c, "unit "):
		return roleUnit, true
	case strings.Contains(c, "result") || strings.Contains(c, "value") || strings.Contains(c, "observed"):
		return roleValue, true
	case strings.Contains(c, "test") || strings.Contains(c, "parameter") ||
		strings.Contains(c, "investigation") || strings.Contains(c, "description"):
		return roleName, true
	}
	return 0, false
}

// TestResultParser pulls lab-test rows out of page text and table rows.
type TestResultParser struct{}

// NewTestResultParser returns a parser.
func NewTestResultParser() *TestResultParser {
	return &TestResultParser{}
}

// Extract runs the text pass then the table pass.
func (p *TestResultParser) Extract(sources []model.RawSource) []model.TestResult {
	return append(p.ParseText(sources), p.ParseTables(sources)...)
}

// ParseText reads test results from page text, one candidate per line.
func (p *TestResultParser) ParseText(sources []model.RawSource) []model.TestResult {
	var out []model.TestResult
	for _, src := range sources {
		var pg page
		for _, line := range Lines(src.Text) {
			if tr, ok := pg.parse(SplitColumns(line)); ok {
				out = append(out, tr)
			}
		}
	}
	return out
}

// ParseTables reads test results from table rows. A header row applies to
// the rows after it on the same page.
func (p *TestResultParser) ParseTables(sources []model.RawSource) []model.TestResult {
	var out []model.TestResult
	for _, src := range sources {
		var pg page
		for _, row := range src.Rows {
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = strings.TrimSpace(NormalizeFragment(c))
			}
			if tr, ok := pg.parse(cells); ok {
				out = append(out, tr)
			}
		}
	}
	return out
}

// ParseLine parses a single free-text line with no header context.
func (p *TestResultParser) ParseLine(line string) (model.TestResult, bool) {
	var pg page
	return pg.parse(SplitColumns(line))
}

// page carries the most recent header row seen on one page.
type page struct {
	hdr *header
}

func (pg *page) parse(cells []string) (model.TestResult, bool) {
	if h, ok := parseHeader(cells); ok {
		pg.hdr = &h
		return model.TestResult{}, false
	}
	if nonBlank(cells) < 2 || isHeading(cells) {
		return model.TestResult{}, false
	}
	if (pg.hdr == nil || pg.hdr.positional()) && nonBlank(cells) >= minColumns {
		if tr, ok := columnSplit(compact(cells)); ok {
			return tr, true
		}
	}
	if pg.hdr != nil {
		return labeledColumns(cells, *pg.hdr)
	}
	return model.TestResult{}, false
}

// columnSplit reads name, [flag]value, unit, range, method by position.
func columnSplit(cells []string) (model.TestResult, bool) {
	name := Clean(cells[0])
	if !validTestName(name) || len(cells) < 2 {
		return model.TestResult{}, false
	}

	flag, valueText, rest := splitFlag(cells[1:])
	v, ok := ParseNumber(valueText)
	if !ok {
		return model.TestResult{}, false
	}

	tr := model.TestResult{TestName: name, ResultValue: &v, ResultText: valueText}
	tr.SetFlag(flag)

	// A lone range in the unit position is a unitless result.
	if len(rest) == 1 && looksLikeRange(rest[0]) {
		rest = []string{"", rest[0]}
	}
	if len(rest) > 0 {
		tr.Unit = optional(rest[0])
	}
	if len(rest) > 1 {
		tr.ReferenceRange = ParseReferenceRange(rest[1])
	}
	if len(rest) > 2 {
		tr.Method = optional(rest[2])
	}
	return tr, true
}

// splitFlag takes the value column, honoring a leading H/L token either in
// its own column or in front of the number.
func splitFlag(cols []string) (*model.Flag, string, []string) {
	first := strings.TrimSpace(cols[0])
	if len(cols) >= 2 && len(first) == 1 {
		if f := flagOf(first); f != nil {
			if _, ok := ParseNumber(cols[1]); ok {
				return f, strings.TrimSpace(cols[1]), cols[2:]
			}
		}
	}
	if m := flagValueRe.FindStringSubmatch(first); m != nil {
		return flagOf(m[1]), m[2], cols[1:]
	}
	return nil, first, cols[1:]
}

// labeledColumns reads a row through its page's header mapping. A
// non-numeric result under a result header is kept as text.
func labeledColumns(cells []string, h header) (model.TestResult, bool) {
	at := func(r role) string {
		if i := h[r]; i >= 0 && i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	name := Clean(at(roleName))
	raw := at(roleValue)
	if !validTestName(name) || raw == "" {
		return model.TestResult{}, false
	}

	tr := model.TestResult{TestName: name, ResultText: raw}
	var flag *model.Flag
	if m := flagValueRe.FindStringSubmatch(raw); m != nil {
		flag = flagOf(m[1])
		tr.ResultText = m[2]
	}
	if v, ok := ParseNumber(tr.ResultText); ok {
		tr.ResultValue = &v
	}
	if h[roleFlag] >= 0 {
		if f := flagOf(at(roleFlag)); f != nil {
			flag = f
		}
	}
	tr.SetFlag(flag)

	tr.Unit = optional(at(roleUnit))
	if h[roleRange] >= 0 {
		tr.ReferenceRange = ParseReferenceRange(at(roleRange))
	}
	tr.Method = optional(at(roleMethod))
	return tr, true
}

func flagOf(tok string) *model.Flag {
	var f model.Flag
	switch strings.ToUpper(strings.TrimSpace(tok)) {
	case "H", "HIGH":
		f = model.FlagHigh
	case "L", "LOW":
		f = model.FlagLow
	default:
		return nil
	}
	return &f
}

func validTestName(name string) bool {
	if name == "" || strings.HasPrefix(name, "Dr.") || strings.HasPrefix(name, "DR.") {
		return false
	}
	if demographicLabels[strings.ToLower(name)] {
		return false
	}
	return strings.IndexFunc(name, isLetter) >= 0
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func compact(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func nonBlank(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
