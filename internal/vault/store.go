// Package vault keeps one directory per patient identity, holding copies of
// the patient's reports and a metadata file that is the system of record.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/identity"
	"github.com/sells-group/labvault/internal/model"
)

// MetadataFile is the per-patient metadata file name.
const MetadataFile = "patient_metadata.json"

// ErrPersistence wraps every durable-storage failure.
var ErrPersistence = eris.New("vault: persistence failure")

// persistenceError marks a failure as ErrPersistence while keeping its cause.
type persistenceError struct{ err error }

func (e *persistenceError) Error() string        { return e.err.Error() }
func (e *persistenceError) Unwrap() error        { return e.err }
func (e *persistenceError) Is(target error) bool { return target == ErrPersistence }

func persistErr(err error, msg string) error {
	return eris.Wrap(&persistenceError{err: err}, msg)
}

// Document identifies the submission a report came from.
type Document struct {
	// Name is used to name the stored report; usually the file name.
	Name string
	// Path is the original file, copied into the vault when set.
	Path string
}

// Admission is the outcome of admitting one report.
type Admission struct {
	Record     *model.VaultRecord
	IsNew      bool
	ReportPath string
}

// ResolveFunc picks the identity a name belongs to, or nil for a new patient.
type ResolveFunc func(ctx context.Context, name string, registry []model.PatientIdentity) *model.PatientIdentity

// Mirror receives copies of files written to a patient vault.
type Mirror interface {
	Upload(ctx context.Context, patientID string, paths []string) error
}

// Option configures a Store.
type Option func(*Store)

// WithMirror copies every written artifact to m after it is persisted.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the patient registry. All mutations go through one lock so that
// two submissions for a new patient cannot both create an identity.
type Store struct {
	baseDir string
	mirror  Mirror
	now     func() time.Time

	mu      sync.Mutex
	records map[string]*model.VaultRecord
	order   []string
}

// Open loads every patient under baseDir, creating it if needed. Directories
// without readable metadata are skipped.
func Open(baseDir string, opts ...Option) (*Store, error) {
	s := &Store{
		baseDir: baseDir,
		now:     func() time.Time { return time.Now().UTC() },
		records: make(map[string]*model.VaultRecord),
	}
	for _, o := range opts {
		o(s)
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, persistErr(err, "vault: create base dir")
	}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, persistErr(err, "vault: read base dir")
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := s.load(e.Name())
		if err != nil {
			zap.L().Warn("vault: skipping unreadable patient directory",
				zap.String("dir", e.Name()),
				zap.Error(err),
			)
			continue
		}
		s.records[rec.Identity.ID] = rec
		s.order = append(s.order, rec.Identity.ID)
	}

	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.records[s.order[i]], s.records[s.order[j]]
		if !a.Identity.CreatedAt.Equal(b.Identity.CreatedAt) {
			return a.Identity.CreatedAt.Before(b.Identity.CreatedAt)
		}
		return a.Identity.ID < b.Identity.ID
	})

	zap.L().Debug("vault: registry loaded",
		zap.String("base_dir", baseDir),
		zap.Int("patients", len(s.order)),
	)
	return s, nil
}

func (s *Store) load(dir string) (*model.VaultRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, dir, MetadataFile))
	if err != nil {
		return nil, eris.Wrap(err, "read metadata")
	}
	var meta model.PatientMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, eris.Wrap(err, "decode metadata")
	}
	if meta.CanonicalName == "" {
		return nil, eris.New("metadata has no canonical_name")
	}
	rec := meta.Record()
	// The directory is authoritative for id and location.
	rec.Identity.ID = dir
	rec.VaultPath = filepath.Join(s.baseDir, dir)
	return rec, nil
}

// BaseDir returns the vault root.
func (s *Store) BaseDir() string { return s.baseDir }

// Registry returns every identity in creation order.
func (s *Store) Registry() []model.PatientIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registryLocked()
}

func (s *Store) registryLocked() []model.PatientIdentity {
	out := make([]model.PatientIdentity, 0, len(s.order))
	for _, id := range s.order {
		ident := s.records[id].Identity
		ident.NameVariations = append([]string(nil), ident.NameVariations...)
		out = append(out, ident)
	}
	return out
}

// Records returns copies of every record in creation order.
func (s *Store) Records() []*model.VaultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.VaultRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (*model.VaultRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Admit resolves the report's patient and records the report, holding the
// store lock across read-registry, decide and create-or-append.
func (s *Store) Admit(ctx context.Context, report *model.LabReport, doc Document, resolve ResolveFunc) (*Admission, error) {
	name := patientName(report)

	s.mu.Lock()
	matched := resolve(ctx, name, s.registryLocked())

	isNew := matched == nil
	rec, err := s.assignOrAppendLocked(report, doc, matched)
	if err == nil && isNew {
		rec, err = s.assignOrAppendLocked(report, doc, &rec.Identity)
	}
	var adm *Admission
	if err == nil {
		adm = &Admission{Record: rec.Clone(), IsNew: isNew, ReportPath: rec.ReportPaths[len(rec.ReportPaths)-1]}
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.upload(ctx, adm)
	return adm, nil
}

// AssignOrAppend creates a new identity when matched is nil, returning a
// record with no reports, or appends the report to the matched identity.
func (s *Store) AssignOrAppend(report *model.LabReport, doc Document, matched *model.PatientIdentity) (*model.VaultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.assignOrAppendLocked(report, doc, matched)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *Store) assignOrAppendLocked(report *model.LabReport, doc Document, matched *model.PatientIdentity) (*model.VaultRecord, error) {
	if matched == nil {
		return s.createLocked(patientName(report), report.Patient)
	}
	cur, ok := s.records[matched.ID]
	if !ok {
		return nil, eris.Errorf("vault: unknown patient %q", matched.ID)
	}
	return s.appendLocked(cur, report, doc)
}

func (s *Store) createLocked(name string, demo model.PatientDemographics) (*model.VaultRecord, error) {
	id, err := s.allocateID(name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, persistErr(err, "vault: create patient dir")
	}

	now := s.now()
	rec := &model.VaultRecord{
		Identity: model.PatientIdentity{
			ID:             id,
			CanonicalName:  name,
			NameVariations: []string{name},
			CreatedAt:      now,
		},
		ReportPaths:  []string{},
		VaultPath:    dir,
		Demographics: demo,
	}
	if err := writeJSONAtomic(filepath.Join(dir, MetadataFile), rec.ToMetadata(now)); err != nil {
		return nil, persistErr(err, "vault: write metadata")
	}

	s.records[id] = rec
	s.order = append(s.order, id)
	zap.L().Info("vault: created patient",
		zap.String("patient_id", id),
		zap.String("canonical_name", name),
	)
	return rec, nil
}

// appendLocked writes the report artifacts, then replaces the metadata file.
// The in-memory record changes only after the metadata write succeeds.
func (s *Store) appendLocked(cur *model.VaultRecord, report *model.LabReport, doc Document) (*model.VaultRecord, error) {
	stem := artifactStem(doc)

	reportPath := uniquePath(cur.VaultPath, stem+"_lab_report", ".json")
	if err := writeJSONAtomic(reportPath, report); err != nil {
		return nil, persistErr(err, "vault: write report")
	}

	next := cur.Clone()
	if doc.Path != "" {
		ext := filepath.Ext(doc.Path)
		origPath := uniquePath(cur.VaultPath, stem, ext)
		if err := copyFileAtomic(doc.Path, origPath); err != nil {
			return nil, persistErr(err, "vault: copy original")
		}
	}

	next.ReportPaths = append(next.ReportPaths, reportPath)
	next.ReportCount++
	if name := report.PatientName(); name != "" && !hasVariation(next.Identity.NameVariations, name) {
		next.Identity.NameVariations = append(next.Identity.NameVariations, name)
	}
	if !report.Patient.IsEmpty() {
		next.Demographics = report.Patient
	}

	if err := writeJSONAtomic(filepath.Join(cur.VaultPath, MetadataFile), next.ToMetadata(s.now())); err != nil {
		return nil, persistErr(err, "vault: write metadata")
	}

	s.records[next.Identity.ID] = next
	zap.L().Info("vault: appended report",
		zap.String("patient_id", next.Identity.ID),
		zap.Int("report_count", next.ReportCount),
		zap.String("report", filepath.Base(reportPath)),
	)
	return next, nil
}

func (s *Store) upload(ctx context.Context, adm *Admission) {
	if s.mirror == nil {
		return
	}
	id := adm.Record.Identity.ID
	paths := []string{adm.ReportPath, filepath.Join(adm.Record.VaultPath, MetadataFile)}
	if err := s.mirror.Upload(ctx, id, paths); err != nil {
		zap.L().Warn("vault: mirror upload failed", zap.String("patient_id", id), zap.Error(err))
	}
}

// maxIDBytes caps the id base so a suffixed id stays well under the
// filesystem's name limit.
const maxIDBytes = 64

// allocateID derives a directory-safe id from the name, suffixing a counter
// while the id is taken in memory or on disk.
func (s *Store) allocateID(name string) (string, error) {
	base := strings.ReplaceAll(identity.Normalize(name), " ", "_")
	if base == "" {
		base = strings.ReplaceAll(identity.Normalize(model.UnknownPatientName), " ", "_")
	}
	base = truncateBytes(base, maxIDBytes)

	id := base
	for n := 2; ; n++ {
		taken, err := s.taken(id)
		if err != nil {
			return "", persistErr(err, "vault: check patient dir")
		}
		if !taken {
			return id, nil
		}
		id = base + "_" + strconv.Itoa(n)
	}
}

func (s *Store) taken(id string) (bool, error) {
	if _, ok := s.records[id]; ok {
		return true, nil
	}
	_, err := os.Stat(filepath.Join(s.baseDir, id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// truncateBytes shortens s to at most n bytes on a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i, r := range s {
		if i+utf8.RuneLen(r) > n {
			break
		}
		cut = i + utf8.RuneLen(r)
	}
	return strings.TrimRight(s[:cut], "_")
}

func patientName(report *model.LabReport) string {
	if name := strings.TrimSpace(report.PatientName()); name != "" {
		return name
	}
	return model.UnknownPatientName
}

func hasVariation(variations []string, name string) bool {
	n := identity.Normalize(name)
	for _, v := range variations {
		if identity.Normalize(v) == n {
			return true
		}
	}
	return false
}

// maxStemBytes caps artifact stems; suffixes are added after it.
const maxStemBytes = 100

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func artifactStem(doc Document) string {
	name := doc.Name
	if name == "" {
		name = filepath.Base(doc.Path)
	}
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "._")
	stem = strings.TrimRight(truncateBytes(stem, maxStemBytes), "._")
	if stem == "" {
		return "report"
	}
	return stem
}

// uniquePath returns dir/stem+ext, adding a short random suffix while the
// path exists.
func uniquePath(dir, stem, ext string) string {
	p := filepath.Join(dir, stem+ext)
	for {
		if _, err := os.Stat(p); err != nil {
			return p
		}
		p = filepath.Join(dir, stem+"_"+uuid.NewString()[:8]+ext)
	}
}
