package vault

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labvault/internal/identity"
	"github.com/sells-group/labvault/internal/model"
)

func ptr[T any](v T) *T { return &v }

func reportFor(name string) *model.LabReport {
	r := &model.LabReport{
		Identifiers: map[string]string{},
		Dates:       map[string]string{},
		TestResults: []model.TestResult{},
		Metadata:    map[string]any{},
	}
	if name != "" {
		r.Patient.Name = ptr(name)
		r.Patient.Age = ptr(45)
	}
	return r
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func openTest(t *testing.T, dir string, opts ...Option) *Store {
	t.Helper()
	s, err := Open(dir, append([]Option{WithClock(tickingClock())}, opts...)...)
	require.NoError(t, err)
	return s
}

var resolve = identity.NewResolver(nil, identity.Threshold).Resolve

func readMetadata(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestOpenCreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "vaults")
	s := openTest(t, dir)
	assert.DirExists(t, dir)
	assert.Empty(t, s.Registry())
	assert.Equal(t, dir, s.BaseDir())
}

func TestAdmitNewPatient(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)

	adm, err := s.Admit(context.Background(), reportFor("John Smith"), Document{Name: "lab1.txt"}, resolve)
	require.NoError(t, err)
	assert.True(t, adm.IsNew)
	assert.Equal(t, "john_smith", adm.Record.Identity.ID)
	assert.Equal(t, "John Smith", adm.Record.Identity.CanonicalName)
	assert.Equal(t, 1, adm.Record.ReportCount)
	assert.Equal(t, filepath.Join(dir, "john_smith", "lab1_lab_report.json"), adm.ReportPath)
	assert.FileExists(t, adm.ReportPath)

	meta := readMetadata(t, filepath.Join(dir, "john_smith", MetadataFile))
	for _, key := range []string{"canonical_name", "name_variations", "report_count", "vault_path", "demographics"} {
		assert.Contains(t, meta, key)
	}
	assert.Equal(t, "John Smith", meta["canonical_name"])
	assert.Equal(t, []any{"John Smith"}, meta["name_variations"])
	assert.Equal(t, float64(1), meta["report_count"])
	assert.Equal(t, filepath.Join(dir, "john_smith"), meta["vault_path"])
	assert.Equal(t, map[string]any{"name": "John Smith", "age": float64(45)}, meta["demographics"])
}

func TestAdmitReorderedNameAppends(t *testing.T) {
	s := openTest(t, t.TempDir())
	ctx := context.Background()

	first, err := s.Admit(ctx, reportFor("John Smith"), Document{Name: "a.txt"}, resolve)
	require.NoError(t, err)
	second, err := s.Admit(ctx, reportFor("Smith, John"), Document{Name: "b.txt"}, resolve)
	require.NoError(t, err)

	assert.False(t, second.IsNew)
	assert.Equal(t, first.Record.Identity.ID, second.Record.Identity.ID)
	assert.Equal(t, 2, second.Record.ReportCount)
	assert.Equal(t, []string{"John Smith", "Smith, John"}, second.Record.Identity.NameVariations)
	assert.Equal(t, "John Smith", second.Record.Identity.CanonicalName)
	assert.Len(t, s.Registry(), 1)
}

func TestAdmitDistinctNames(t *testing.T) {
	s := openTest(t, t.TempDir())
	ctx := context.Background()

	_, err := s.Admit(ctx, reportFor("John Smith"), Document{Name: "a.txt"}, resolve)
	require.NoError(t, err)
	adm, err := s.Admit(ctx, reportFor("Priya Sharma"), Document{Name: "b.txt"}, resolve)
	require.NoError(t, err)

	assert.True(t, adm.IsNew)
	reg := s.Registry()
	require.Len(t, reg, 2)
	assert.Equal(t, "john_smith", reg[0].ID)
	assert.Equal(t, "priya_sharma", reg[1].ID)
}

func TestVariationDedupedByNormalizedForm(t *testing.T) {
	s := openTest(t, t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"John Smith", "JOHN  SMITH", "Mr. John Smith"} {
		_, err := s.Admit(ctx, reportFor(name), Document{Name: "r.txt"}, resolve)
		require.NoError(t, err)
	}
	rec, ok := s.Get("john_smith")
	require.True(t, ok)
	assert.Equal(t, []string{"John Smith"}, rec.Identity.NameVariations)
	assert.Equal(t, 3, rec.ReportCount)
	assert.Len(t, rec.ReportPaths, 3)
}

func TestIDCollisionGetsCounter(t *testing.T) {
	s := openTest(t, t.TempDir())
	ctx := context.Background()
	alwaysNew := func(context.Context, string, []model.PatientIdentity) *model.PatientIdentity { return nil }

	var ids []string
	for i := 0; i < 3; i++ {
		adm, err := s.Admit(ctx, reportFor("John Smith"), Document{Name: "r.txt"}, alwaysNew)
		require.NoError(t, err)
		ids = append(ids, adm.Record.Identity.ID)
	}
	assert.Equal(t, []string{"john_smith", "john_smith_2", "john_smith_3"}, ids)
}

func TestIDSkipsForeignDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "john_smith"), 0o755))

	s := openTest(t, dir)
	adm, err := s.Admit(context.Background(), reportFor("John Smith"), Document{Name: "r.txt"}, resolve)
	require.NoError(t, err)
	assert.Equal(t, "john_smith_2", adm.Record.Identity.ID)
}

func TestLongNameGetsBoundedID(t *testing.T) {
	s := openTest(t, t.TempDir())
	long := strings.Repeat("Alexandria ", 30) + "Smith"

	done := make(chan struct{})
	var (
		first, second *model.VaultRecord
		err1, err2    error
	)
	go func() {
		defer close(done)
		first, err1 = s.AssignOrAppend(reportFor(long), Document{Name: "a.txt"}, nil)
		second, err2 = s.AssignOrAppend(reportFor(long), Document{Name: "b.txt"}, nil)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("id allocation did not finish for a long name")
	}

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.LessOrEqual(t, len(first.Identity.ID), maxIDBytes)
	assert.Equal(t, first.Identity.ID+"_2", second.Identity.ID)
	assert.Equal(t, long, first.Identity.CanonicalName)
	assert.DirExists(t, first.VaultPath)
}

func TestIDStatFailureIsPersistenceError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vaults")
	s := openTest(t, dir)

	// Replace the base dir with a file so every lookup under it fails with ENOTDIR.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	done := make(chan error, 1)
	go func() {
		_, err := s.AssignOrAppend(reportFor("John Smith"), Document{Name: "a.txt"}, nil)
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPersistence))
	case <-time.After(5 * time.Second):
		t.Fatal("id allocation did not finish")
	}
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "short", truncateBytes("short", 64))
	assert.Equal(t, "abc", truncateBytes("abc_def", 4))
	// "é" is two bytes; never split it.
	assert.Equal(t, "ab", truncateBytes("abé", 3))
	assert.Equal(t, "abé", truncateBytes("abéz", 4))
}

func TestUnknownPatient(t *testing.T) {
	s := openTest(t, t.TempDir())
	adm, err := s.Admit(context.Background(), reportFor(""), Document{Name: "scan.pdf"}, resolve)
	require.NoError(t, err)
	assert.Equal(t, "unknown_patient", adm.Record.Identity.ID)
	assert.Equal(t, model.UnknownPatientName, adm.Record.Identity.CanonicalName)
	assert.Equal(t, []string{model.UnknownPatientName}, adm.Record.Identity.NameVariations)
}

func TestOriginalCopiedAndCollisionsSuffixed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "cbc report.txt")
	require.NoError(t, os.WriteFile(src, []byte("Patient Name : John Smith"), 0o644))

	s := openTest(t, dir)
	ctx := context.Background()
	doc := Document{Name: filepath.Base(src), Path: src}

	first, err := s.Admit(ctx, reportFor("John Smith"), doc, resolve)
	require.NoError(t, err)
	second, err := s.Admit(ctx, reportFor("John Smith"), doc, resolve)
	require.NoError(t, err)

	patientDir := filepath.Join(dir, "john_smith")
	assert.Equal(t, filepath.Join(patientDir, "cbc_report_lab_report.json"), first.ReportPath)
	assert.NotEqual(t, first.ReportPath, second.ReportPath)
	assert.FileExists(t, second.ReportPath)

	copied, err := os.ReadFile(filepath.Join(patientDir, "cbc_report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Patient Name : John Smith", string(copied))

	matches, err := filepath.Glob(filepath.Join(patientDir, "cbc_report_*.txt"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	tmp, err := filepath.Glob(filepath.Join(patientDir, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestReopenRestoresRegistry(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	ctx := context.Background()
	for _, name := range []string{"Zed Able", "Amy Brown", "Zed Able"} {
		_, err := s.Admit(ctx, reportFor(name), Document{Name: "r.txt"}, resolve)
		require.NoError(t, err)
	}

	reopened := openTest(t, dir)
	reg := reopened.Registry()
	require.Len(t, reg, 2)
	// Creation order, not lexical order.
	assert.Equal(t, "zed_able", reg[0].ID)
	assert.Equal(t, "amy_brown", reg[1].ID)

	rec, ok := reopened.Get("zed_able")
	require.True(t, ok)
	assert.Equal(t, 2, rec.ReportCount)
	assert.Len(t, reopened.Records(), 2)
}

func TestOpenSkipsMalformedMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken", MetadataFile), []byte("{not json"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644))

	s := openTest(t, dir)
	assert.Empty(t, s.Registry())
}

func TestAppendFailureLeavesRecordUntouched(t *testing.T) {
	dir := t.TempDir()
	s := openTest(t, dir)
	ctx := context.Background()

	_, err := s.Admit(ctx, reportFor("John Smith"), Document{Name: "a.txt"}, resolve)
	require.NoError(t, err)

	patientDir := filepath.Join(dir, "john_smith")
	require.NoError(t, os.RemoveAll(patientDir))
	require.NoError(t, os.WriteFile(patientDir, []byte("not a dir"), 0o644))

	_, err = s.Admit(ctx, reportFor("John Smith"), Document{Name: "b.txt"}, resolve)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "vault: write report")

	rec, ok := s.Get("john_smith")
	require.True(t, ok)
	assert.Equal(t, 1, rec.ReportCount)
	assert.Len(t, rec.ReportPaths, 1)
}

func TestAssignOrAppend(t *testing.T) {
	s := openTest(t, t.TempDir())

	created, err := s.AssignOrAppend(reportFor("Amy Brown"), Document{Name: "a.txt"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, created.ReportCount)
	assert.Empty(t, created.ReportPaths)

	appended, err := s.AssignOrAppend(reportFor("Brown, Amy"), Document{Name: "a.txt"}, &created.Identity)
	require.NoError(t, err)
	assert.Equal(t, 1, appended.ReportCount)
	assert.Equal(t, created.Identity.ID, appended.Identity.ID)

	_, err = s.AssignOrAppend(reportFor("x"), Document{}, &model.PatientIdentity{ID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown patient")
}

func TestConcurrentAdmitsCreateOneIdentity(t *testing.T) {
	s := openTest(t, t.TempDir())
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	newCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := s.Admit(ctx, reportFor("John Smith"), Document{Name: "r.txt"}, resolve)
			if assert.NoError(t, err) {
				newCount <- adm.IsNew
			}
		}()
	}
	wg.Wait()
	close(newCount)

	created := 0
	for isNew := range newCount {
		if isNew {
			created++
		}
	}
	assert.Equal(t, 1, created)
	require.Len(t, s.Registry(), 1)
	rec, _ := s.Get("john_smith")
	assert.Equal(t, n, rec.ReportCount)
	assert.Len(t, rec.ReportPaths, n)
}

type fakeMirror struct {
	mu    sync.Mutex
	calls map[string][]string
	err   error
}

func (f *fakeMirror) Upload(_ context.Context, id string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string][]string{}
	}
	f.calls[id] = append(f.calls[id], paths...)
	return f.err
}

func TestMirrorReceivesArtifacts(t *testing.T) {
	dir := t.TempDir()
	m := &fakeMirror{}
	s := openTest(t, dir, WithMirror(m))

	adm, err := s.Admit(context.Background(), reportFor("Amy Brown"), Document{Name: "a.txt"}, resolve)
	require.NoError(t, err)
	assert.Equal(t, []string{adm.ReportPath, filepath.Join(dir, "amy_brown", MetadataFile)}, m.calls["amy_brown"])
}

func TestMirrorFailureIsNotFatal(t *testing.T) {
	m := &fakeMirror{err: errors.New("s3 down")}
	s := openTest(t, t.TempDir(), WithMirror(m))

	adm, err := s.Admit(context.Background(), reportFor("Amy Brown"), Document{Name: "a.txt"}, resolve)
	require.NoError(t, err)
	assert.Equal(t, 1, adm.Record.ReportCount)
}

func TestArtifactStem(t *testing.T) {
	assert.Equal(t, "cbc_report", artifactStem(Document{Name: "cbc report.pdf"}))
	assert.Equal(t, "lab", artifactStem(Document{Path: "/tmp/x/lab.csv"}))
	assert.Equal(t, "report", artifactStem(Document{}))
	assert.Equal(t, "report", artifactStem(Document{Name: "..."}))
	assert.Len(t, artifactStem(Document{Name: strings.Repeat("x", 400) + ".pdf"}), maxStemBytes)
}
