package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/labvault/internal/identity"
	"github.com/sells-group/labvault/internal/model"
)

// fieldRule is one labeled pattern. Label is the literal label text; when
// several rules match overlapping spans of the same line, the rule with the
// longest label wins.
type fieldRule struct {
	Label string
	re    *regexp.Regexp
	emit  func(m []string) []kv
}

type kv struct {
	key, value string
}

const (
	labelSep  = `\s*[:.\-]?\s*`
	dateValue = `(\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}(?:[\s,]+\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp][Mm])?)?` +
		`|\d{1,2}[-\s][A-Za-z]{3,9}[-\s,]+\d{2,4}(?:[\s,]+\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp][Mm])?)?)`
	ageUnitTok = `(Years?|Yrs?|Y|Months?|Mths?|M|Days?|D)`
	genderTok  = `(Male|Female|M|F)`
	// A name ends at a 5+ whitespace run, at the next "Label :" or at end of line.
	nameValue = `([A-Za-z][A-Za-z.,' ]*?)(?:\s{5,}|\s{2,}[A-Za-z][\w./ ]*:|\s*$)`
	textValue = `([A-Za-z][A-Za-z.,'() ]*?)(?:\s{2,}|\s*$)`
	idValue   = `([A-Za-z0-9][A-Za-z0-9\-/]*)`
)

// nameStopWords are label words that show up where a name value should be
// when a header row is read as a line.
var nameStopWords = map[string]bool{
	"age": true, "gender": true, "sex": true, "sample": true, "date": true,
	"id": true, "ref": true, "referral": true, "mobile": true,
}

func single(key string, clean func(string) string) func([]string) []kv {
	return func(m []string) []kv {
		v := clean(m[1])
		if v == "" {
			return nil
		}
		return []kv{{key, v}}
	}
}

func nameEmit(m []string) []kv {
	v := Clean(m[1])
	if len(v) < 3 {
		return nil
	}
	first := strings.ToLower(strings.Fields(v)[0])
	if nameStopWords[strings.Trim(first, ".:/")] {
		return nil
	}
	// Honorifics and punctuation alone leave nothing to identify a patient by.
	if identity.Normalize(v) == "" {
		return nil
	}
	return []kv{{model.FieldPatientName, v}}
}

func ageEmit(m []string) []kv {
	out := []kv{{model.FieldPatientAge, m[1]}}
	if u := AgeUnitOf(m[2]); u != "" {
		out = append(out, kv{model.FieldPatientAgeUnit, string(u)})
	}
	return out
}

func ageGenderEmit(m []string) []kv {
	out := ageEmit(m[:3])
	if g := GenderOf(m[3]); g != "" {
		out = append(out, kv{model.FieldPatientGender, string(g)})
	}
	return out
}

func genderEmit(m []string) []kv {
	if g := GenderOf(m[1]); g != "" {
		return []kv{{model.FieldPatientGender, string(g)}}
	}
	return nil
}

func rule(label, pattern string, emit func([]string) []kv) fieldRule {
	return fieldRule{Label: label, re: regexp.MustCompile(pattern), emit: emit}
}

// defaultRules is the ordered rule set. Order only matters for ties in
// label length at the same position.
func defaultRules() []fieldRule {
	return []fieldRule{
		rule("Patient Name", `(?i)\bPatient\s*Name`+labelSep+nameValue, nameEmit),
		rule("Name", `(?i)^\s*Name`+labelSep+nameValue, nameEmit),
		rule("Age/Gender", `(?i)\bAge\s*/\s*(?:Gender|Sex)`+labelSep+`(\d{1,3})\s*`+ageUnitTok+`\.?\s*/\s*`+genderTok+`\b`, ageGenderEmit),
		rule("Age", `(?i)\bAge`+labelSep+`(\d{1,3})\s*`+ageUnitTok+`?\b`, ageEmit),
		rule("Gender", `(?i)\b(?:Gender|Sex)`+labelSep+genderTok+`\b`, genderEmit),

		rule("Patient ID", `(?i)\b(?:Patient\s*ID|UHID|MRN)`+labelSep+idValue, single("identifier.patient_id", Clean)),
		rule("Sample Id", `(?i)\bSample\s*Id`+labelSep+idValue, single("identifier.sample_id", Clean)),
		rule("Sample Type", `(?i)\bSample\s*Type`+labelSep+textValue, single("identifier.sample_type", Clean)),
		rule("SID No", `(?i)\bSID\s*No\.?`+labelSep+idValue, single("identifier.sid", Clean)),
		rule("Barcode", `(?i)\bBarcode(?:\s*No\.?)?`+labelSep+idValue, single("identifier.barcode", Clean)),
		rule("Mobile No", `(?i)\bMobile(?:\s*No\.?)?`+labelSep+`(\+?\d[\d\- ]{6,}\d)`, single("identifier.mobile", CollapseSpace)),
		rule("Client Name", `(?i)\bClient\s*Name`+labelSep+`(\S.*?)(?:\s{2,}|\s*$)`, single("identifier.client", Clean)),
		rule("Referral", `(?i)\b(?:Referral|Ref\.?\s*By|Referred\s*By)`+labelSep+textValue, single("identifier.referral", Clean)),

		rule("Billed On", `(?i)\bBilled\s*On`+labelSep+dateValue, single("date.billed", CollapseSpace)),
		rule("Collected On", `(?i)\bCollected\s*On`+labelSep+dateValue, single("date.collected", CollapseSpace)),
		rule("Sample Collected On", `(?i)\bSample\s*Collected\s*On`+labelSep+dateValue, single("date.collected", CollapseSpace)),
		rule("Reported On", `(?i)\bReported\s*On`+labelSep+dateValue, single("date.reported", CollapseSpace)),
		rule("Report Date", `(?i)\bReport\s*Date`+labelSep+dateValue, single("date.reported", CollapseSpace)),
		rule("Registered On", `(?i)\bRegistered\s*On`+labelSep+dateValue, single("date.registered", CollapseSpace)),
		rule("Received On", `(?i)\bReceived\s*On`+labelSep+dateValue, single("date.received", CollapseSpace)),

		rule("Dr.", `\b(Dr(?:\.\s*|\s+)[A-Z][A-Za-z.' ]*?,?\s*(?:M\.?\s?D\.?|MBBS|DNB|Ph\.?\s?D\.?)[A-Za-z().,' ]*?)(?:\s{2,}|\s*$)`, single(model.FieldDoctorName, Clean)),
		rule("Reg No", `(?i)\bReg(?:istration)?\.?\s*No\.?`+labelSep+`([A-Za-z]*\d[A-Za-z0-9\-/]*)`, single(model.FieldDoctorRegistration, Clean)),
	}
}

// AgeUnitOf maps a printed age unit token to an AgeUnit, or "" if unknown.
func AgeUnitOf(tok string) model.AgeUnit {
	switch strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(tok), ".")) {
	case "Y", "YR", "YRS", "YEAR", "YEARS":
		return model.AgeYears
	case "M", "MTH", "MTHS", "MONTH", "MONTHS":
		return model.AgeMonths
	case "D", "DAY", "DAYS":
		return model.AgeDays
	}
	return ""
}

// GenderOf maps a printed gender token to a Gender, or "" if unknown.
func GenderOf(tok string) model.Gender {
	switch strings.ToUpper(strings.TrimSpace(tok)) {
	case "M", "MALE":
		return model.GenderMale
	case "F", "FEMALE":
		return model.GenderFemale
	}
	return ""
}

// FieldExtractor pulls labeled demographic, identifier, date and doctor
// fields out of page text and table rows.
type FieldExtractor struct {
	rules   []fieldRule
	byLabel map[string]*fieldRule
}

// NewFieldExtractor returns an extractor with the built-in rule set.
func NewFieldExtractor() *FieldExtractor {
	e := &FieldExtractor{rules: defaultRules(), byLabel: make(map[string]*fieldRule)}
	for i := range e.rules {
		e.byLabel[labelKey(e.rules[i].Label)] = &e.rules[i]
	}
	return e
}

// Extract runs the text pass then the table pass.
func (e *FieldExtractor) Extract(sources []model.RawSource) []model.ExtractedField {
	return append(e.ExtractText(sources), e.ExtractTables(sources)...)
}

// ExtractText applies the rules to every line of every page's text.
func (e *FieldExtractor) ExtractText(sources []model.RawSource) []model.ExtractedField {
	var out []model.ExtractedField
	idx := 0
	for _, src := range sources {
		for _, line := range Lines(src.Text) {
			out = append(out, e.ExtractLine(line, model.SourceText, idx)...)
			idx++
		}
	}
	return out
}

// ExtractTables applies the rules to every cell of every table row. A cell
// holding only a known label takes the next cell as its value.
func (e *FieldExtractor) ExtractTables(sources []model.RawSource) []model.ExtractedField {
	var out []model.ExtractedField
	idx := 0
	for _, src := range sources {
		for _, row := range src.Rows {
			out = append(out, e.extractRow(row, idx)...)
			idx++
		}
	}
	return out
}

func (e *FieldExtractor) extractRow(row []string, idx int) []model.ExtractedField {
	var out []model.ExtractedField
	for i := 0; i < len(row); i++ {
		cell := row[i]
		if r, ok := e.byLabel[labelKey(cell)]; ok && i+1 < len(row) && strings.TrimSpace(row[i+1]) != "" {
			line := r.Label + " : " + strings.TrimSpace(row[i+1])
			if fields := e.applyRules([]*fieldRule{r}, line, model.SourceTable, idx); len(fields) > 0 {
				out = append(out, fields...)
				i++
				continue
			}
		}
		out = append(out, e.ExtractLine(cell, model.SourceTable, idx)...)
	}
	return out
}

// ExtractLine applies every rule to a single line or cell.
func (e *FieldExtractor) ExtractLine(line string, src model.SourceKind, idx int) []model.ExtractedField {
	rules := make([]*fieldRule, len(e.rules))
	for i := range e.rules {
		rules[i] = &e.rules[i]
	}
	return e.applyRules(rules, line, src, idx)
}

type ruleMatch struct {
	rule       *fieldRule
	order      int
	start, end int
	groups     []string
}

func (e *FieldExtractor) applyRules(rules []*fieldRule, line string, src model.SourceKind, idx int) []model.ExtractedField {
	line = NormalizeFragment(line)
	if strings.TrimSpace(line) == "" {
		return nil
	}

	var matches []ruleMatch
	for order, r := range rules {
		for _, loc := range r.re.FindAllStringSubmatchIndex(line, -1) {
			m := ruleMatch{rule: r, order: order, start: loc[0], end: loc[0]}
			groups := make([]string, len(loc)/2)
			for g := 0; g < len(loc)/2; g++ {
				if loc[2*g] < 0 {
					continue
				}
				groups[g] = line[loc[2*g]:loc[2*g+1]]
				// The span stops at the last captured value so trailing
				// terminators do not shadow the next label on the line.
				if g > 0 && loc[2*g+1] > m.end {
					m.end = loc[2*g+1]
				}
			}
			m.groups = groups
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	// Most specific label first; earlier position, then rule order, on ties.
	sort.SliceStable(matches, func(i, j int) bool {
		li, lj := len(matches[i].rule.Label), len(matches[j].rule.Label)
		if li != lj {
			return li > lj
		}
		if matches[i].start != matches[j].start {
			return matches[i].start < matches[j].start
		}
		return matches[i].order < matches[j].order
	})

	var accepted []ruleMatch
	for _, m := range matches {
		overlaps := false
		for _, a := range accepted {
			if m.start < a.end && a.start < m.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, m)
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	var out []model.ExtractedField
	for _, m := range accepted {
		for _, f := range m.rule.emit(m.groups) {
			out = append(out, model.ExtractedField{Key: f.key, Value: f.value, Source: src, Index: idx})
		}
	}
	return out
}

func labelKey(s string) string {
	return strings.ToLower(CollapseSpace(strings.TrimRight(strings.TrimSpace(NormalizeFragment(s)), ":")))
}
