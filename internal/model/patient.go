package model

import "time"

// UnknownPatientName is the canonical name used when a report carries no
// patient name.
const UnknownPatientName = "Unknown Patient"

// PatientIdentity is a persistent patient. ID and CanonicalName are fixed at
// creation; later spellings are recorded in NameVariations only.
type PatientIdentity struct {
	ID             string    `json:"id" yaml:"id"`
	CanonicalName  string    `json:"canonical_name" yaml:"canonical_name"`
	NameVariations []string  `json:"name_variations" yaml:"name_variations"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// VaultRecord is the per-patient registry entry owned by the vault store.
type VaultRecord struct {
	Identity    PatientIdentity `json:"identity" yaml:"identity"`
	ReportCount int             `json:"report_count" yaml:"report_count"`
	ReportPaths []string        `json:"report_paths" yaml:"report_paths"`
	VaultPath   string          `json:"vault_path" yaml:"vault_path"`

	// Demographics from the most recent report appended.
	Demographics PatientDemographics `json:"demographics" yaml:"demographics"`
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (r *VaultRecord) Clone() *VaultRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Identity.NameVariations = append([]string(nil), r.Identity.NameVariations...)
	out.ReportPaths = append([]string(nil), r.ReportPaths...)
	return &out
}

// PatientMetadata is the on-disk form of a VaultRecord, stored as
// patient_metadata.json in the patient's directory.
type PatientMetadata struct {
	ID             string              `json:"id"`
	CanonicalName  string              `json:"canonical_name"`
	NameVariations []string            `json:"name_variations"`
	ReportCount    int                 `json:"report_count"`
	VaultPath      string              `json:"vault_path"`
	Demographics   PatientDemographics `json:"demographics"`
	ReportPaths    []string            `json:"report_paths"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ToMetadata converts a record to its persisted form.
func (r *VaultRecord) ToMetadata(updatedAt time.Time) PatientMetadata {
	return PatientMetadata{
		ID:             r.Identity.ID,
		CanonicalName:  r.Identity.CanonicalName,
		NameVariations: append([]string{}, r.Identity.NameVariations...),
		ReportCount:    r.ReportCount,
		VaultPath:      r.VaultPath,
		Demographics:   r.Demographics,
		ReportPaths:    append([]string{}, r.ReportPaths...),
		CreatedAt:      r.Identity.CreatedAt,
		UpdatedAt:      updatedAt,
	}
}

// Record rebuilds a VaultRecord from persisted metadata.
func (m PatientMetadata) Record() *VaultRecord {
	return &VaultRecord{
		Identity: PatientIdentity{
			ID:             m.ID,
			CanonicalName:  m.CanonicalName,
			NameVariations: append([]string(nil), m.NameVariations...),
			CreatedAt:      m.CreatedAt,
		},
		ReportCount:  m.ReportCount,
		ReportPaths:  append([]string(nil), m.ReportPaths...),
		VaultPath:    m.VaultPath,
		Demographics: m.Demographics,
	}
}
