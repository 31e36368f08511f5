package model

// SourceKind identifies which extraction pass produced a value.
type SourceKind string

const (
	SourceText  SourceKind = "text"
	SourceTable SourceKind = "table"
)

// RawSource is one page of decoded document content: the page text plus any
// table rows the decoder recovered. Rows are ordered lists of cell strings.
type RawSource struct {
	Page int        `json:"page"`
	Text string     `json:"text"`
	Rows [][]string `json:"rows,omitempty"`
}

// ExtractedField is a single labeled value pulled from a RawSource.
// Index is the line number (text pass) or row number (table pass) within
// the source list, counted across pages.
type ExtractedField struct {
	Key    string     `json:"key"`
	Value  string     `json:"value"`
	Source SourceKind `json:"source"`
	Index  int        `json:"index"`
}

// Field keys emitted by the extractor.
const (
	FieldPatientName    = "patient.name"
	FieldPatientAge     = "patient.age"
	FieldPatientAgeUnit = "patient.age_unit"
	FieldPatientGender  = "patient.gender"

	FieldDoctorName         = "doctor.name"
	FieldDoctorRegistration = "doctor.registration_no"
)

// Field key namespaces routed into LabReport maps.
const (
	IdentifierPrefix = "identifier."
	DatePrefix       = "date."
	DoctorPrefix     = "doctor."
)
