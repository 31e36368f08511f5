package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/labvault/internal/model"
)

const numPattern = `[+-]?(?:\d+(?:\.\d+)?|\.\d+)`

var (
	numberRe = regexp.MustCompile(`^` + numPattern + `$`)
	rangeRe  = regexp.MustCompile(`^\s*(` + numPattern + `)\s*-\s*(` + numPattern + `)\s*$`)
)

// ParseNumber parses a plain decimal number with '.' as the decimal
// separator. Thousands separators, exponents and locale forms are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numberRe.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseReferenceRange parses "<num> - <num>" into numeric bounds. Any other
// text, including an inverted interval, is kept only as RawText.
func ParseReferenceRange(text string) *model.ReferenceRange {
	raw := strings.TrimSpace(text)
	rr := &model.ReferenceRange{RawText: raw}
	m := rangeRe.FindStringSubmatch(raw)
	if m == nil {
		return rr
	}
	lo, err1 := strconv.ParseFloat(m[1], 64)
	hi, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || lo > hi {
		return rr
	}
	rr.Min, rr.Max = &lo, &hi
	return rr
}

// looksLikeRange reports whether a column reads as a reference range rather
// than a unit.
func looksLikeRange(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if rangeRe.MatchString(s) {
		return true
	}
	switch s[0] {
	case '<', '>':
		return true
	}
	return strings.HasPrefix(s, "≤") || strings.HasPrefix(s, "≥")
}
