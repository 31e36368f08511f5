// Package merge combines the text-pass and table-pass extraction outputs
// into one LabReport.
package merge

import (
	"strconv"
	"strings"

	"github.com/sells-group/labvault/internal/extract"
	"github.com/sells-group/labvault/internal/model"
)

// ReportType is recorded in every report's metadata.
const ReportType = "medical_lab_report"

// Passes holds the outputs of both extraction passes over one document.
type Passes struct {
	TextFields  []model.ExtractedField
	TableFields []model.ExtractedField
	TextTests   []model.TestResult
	TableTests  []model.TestResult
}

// Merge builds a LabReport. Single-valued keys take the first text-pass
// value; table-pass values only fill keys still missing. Text-pass tests
// form the primary list and a table-pass test is appended only when no
// existing entry has the same name. meta is copied into the report's
// metadata alongside the pass counts.
func Merge(p Passes, meta map[string]any) *model.LabReport {
	r := &model.LabReport{
		Identifiers: make(map[string]string),
		Dates:       make(map[string]string),
		TestResults: make([]model.TestResult, 0, len(p.TextTests)+len(p.TableTests)),
		Metadata:    make(map[string]any, len(meta)+4),
	}

	doctor := make(map[string]string)
	for _, f := range p.TextFields {
		applyField(r, doctor, f)
	}
	for _, f := range p.TableFields {
		applyField(r, doctor, f)
	}
	if len(doctor) > 0 {
		r.Doctor = doctor
	}

	seen := make(map[string]bool, len(p.TextTests))
	for _, t := range p.TextTests {
		r.TestResults = append(r.TestResults, t)
		seen[testKey(t.TestName)] = true
	}
	for _, t := range p.TableTests {
		k := testKey(t.TestName)
		if seen[k] {
			continue
		}
		seen[k] = true
		r.TestResults = append(r.TestResults, t)
	}

	for k, v := range meta {
		r.Metadata[k] = v
	}
	r.Metadata["report_type"] = ReportType
	r.Metadata["text_fields"] = len(p.TextFields)
	r.Metadata["table_fields"] = len(p.TableFields)
	r.Metadata["test_count"] = len(r.TestResults)

	return r
}

// applyField sets a key only when it is still absent. Values that fail
// conversion (a non-numeric age) count as absent.
func applyField(r *model.LabReport, doctor map[string]string, f model.ExtractedField) {
	v := strings.TrimSpace(f.Value)
	if v == "" {
		return
	}

	switch {
	case f.Key == model.FieldPatientName:
		if r.Patient.Name == nil {
			r.Patient.Name = &v
		}
	case f.Key == model.FieldPatientAge:
		if r.Patient.Age == nil {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				r.Patient.Age = &n
			}
		}
	case f.Key == model.FieldPatientAgeUnit:
		if r.Patient.AgeUnit == nil {
			if u := extract.AgeUnitOf(v); u != "" {
				r.Patient.AgeUnit = &u
			}
		}
	case f.Key == model.FieldPatientGender:
		if r.Patient.Gender == nil {
			if g := extract.GenderOf(v); g != "" {
				r.Patient.Gender = &g
			}
		}
	case strings.HasPrefix(f.Key, model.IdentifierPrefix):
		setOnce(r.Identifiers, strings.TrimPrefix(f.Key, model.IdentifierPrefix), v)
	case strings.HasPrefix(f.Key, model.DatePrefix):
		setOnce(r.Dates, strings.TrimPrefix(f.Key, model.DatePrefix), v)
	case strings.HasPrefix(f.Key, model.DoctorPrefix):
		setOnce(doctor, strings.TrimPrefix(f.Key, model.DoctorPrefix), v)
	}
}

func setOnce(m map[string]string, k, v string) {
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}

func testKey(name string) string {
	return extract.CollapseSpace(name)
}
