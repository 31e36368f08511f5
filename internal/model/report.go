package model

// AgeUnit is the unit an age was reported in.
type AgeUnit string

const (
	AgeYears  AgeUnit = "YEARS"
	AgeMonths AgeUnit = "MONTHS"
	AgeDays   AgeUnit = "DAYS"
)

// Gender as printed on the report.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Flag marks a result outside its reference range.
type Flag string

const (
	FlagHigh Flag = "High"
	FlagLow  Flag = "Low"
)

// PatientDemographics holds the patient fields found on a report. Every field
// is optional; nil means the field was not found.
type PatientDemographics struct {
	Name    *string  `json:"name,omitempty" yaml:"name,omitempty"`
	Age     *int     `json:"age,omitempty" yaml:"age,omitempty"`
	AgeUnit *AgeUnit `json:"age_unit,omitempty" yaml:"age_unit,omitempty"`
	Gender  *Gender  `json:"gender,omitempty" yaml:"gender,omitempty"`
}

// IsEmpty reports whether no demographic field was found.
func (d PatientDemographics) IsEmpty() bool {
	return d.Name == nil && d.Age == nil && d.AgeUnit == nil && d.Gender == nil
}

// ReferenceRange is either a numeric interval or a descriptive range kept
// only as text. When both bounds are set, Min <= Max.
type ReferenceRange struct {
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	RawText string   `json:"raw_text"`
}

// Contains reports whether v falls inside a numeric range. Descriptive
// ranges contain nothing.
func (r ReferenceRange) Contains(v float64) bool {
	if r.Min == nil || r.Max == nil {
		return false
	}
	return v >= *r.Min && v <= *r.Max
}

// TestResult is one measured test on a lab report.
// Abnormal is true exactly when Flag is set.
type TestResult struct {
	TestName       string          `json:"test_name"`
	ResultValue    *float64        `json:"result_value"`
	ResultText     string          `json:"result_text"`
	Unit           *string         `json:"unit"`
	ReferenceRange *ReferenceRange `json:"reference_range"`
	Flag           *Flag           `json:"flag"`
	Abnormal       bool            `json:"abnormal"`
	Method         *string         `json:"method,omitempty"`
}

// SetFlag sets the flag and keeps Abnormal consistent with it.
func (t *TestResult) SetFlag(f *Flag) {
	t.Flag = f
	t.Abnormal = f != nil
}

// LabReport is the canonical record produced for one input document.
type LabReport struct {
	Patient     PatientDemographics `json:"patient"`
	Identifiers map[string]string   `json:"identifiers"`
	Dates       map[string]string   `json:"dates"`
	Doctor      map[string]string   `json:"doctor,omitempty"`
	TestResults []TestResult        `json:"test_results"`
	Metadata    map[string]any      `json:"metadata"`
}

// PatientName returns the extracted name or "" when absent.
func (r *LabReport) PatientName() string {
	if r == nil || r.Patient.Name == nil {
		return ""
	}
	return *r.Patient.Name
}
