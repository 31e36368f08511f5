// Package pipeline takes decoded documents through extraction, merging,
// identity resolution and vault admission.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/extract"
	"github.com/sells-group/labvault/internal/identity"
	"github.com/sells-group/labvault/internal/merge"
	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/monitoring"
	"github.com/sells-group/labvault/internal/source"
	"github.com/sells-group/labvault/internal/store"
	"github.com/sells-group/labvault/internal/vault"
)

// Vault is the admission step. *vault.Store implements it.
type Vault interface {
	Admit(ctx context.Context, report *model.LabReport, doc vault.Document, resolve vault.ResolveFunc) (*vault.Admission, error)
}

// Result is the outcome of one document.
type Result struct {
	Document     string          `json:"document"`
	Status       model.RunStatus `json:"status"`
	RunID        string          `json:"run_id,omitempty"`
	PatientID    string          `json:"patient_id,omitempty"`
	IsNewPatient bool            `json:"is_new_patient"`
	ReportCount  int             `json:"report_count"`
	TestCount    int             `json:"test_count"`
	ReportPath   string          `json:"report_path,omitempty"`
	Error        string          `json:"error,omitempty"`

	Report *model.LabReport `json:"-"`
}

// Pipeline processes documents against one vault.
type Pipeline struct {
	fields   *extract.FieldExtractor
	tests    *extract.TestResultParser
	resolver *identity.Resolver
	vault    Vault
	ledger   store.Store
	metrics  *monitoring.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLedger records every document in the run ledger.
func WithLedger(st store.Store) Option {
	return func(p *Pipeline) { p.ledger = st }
}

// WithMetrics counts documents and admissions.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline. A nil resolver uses rule-based matching at the
// default threshold.
func New(resolver *identity.Resolver, v Vault, opts ...Option) *Pipeline {
	if resolver == nil {
		resolver = identity.NewResolver(nil, identity.Threshold)
	}
	p := &Pipeline{
		fields:   extract.NewFieldExtractor(),
		tests:    extract.NewTestResultParser(),
		resolver: resolver,
		vault:    v,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract builds the LabReport for a decoded document. It never fails: a
// document with nothing recognisable yields a report with every optional
// field absent.
func (p *Pipeline) Extract(doc *source.Document) *model.LabReport {
	pages := doc.Pages
	passes := merge.Passes{
		TextFields:  p.fields.ExtractText(pages),
		TableFields: p.fields.ExtractTables(pages),
		TextTests:   p.tests.ParseText(pages),
		TableTests:  p.tests.ParseTables(pages),
	}
	return merge.Merge(passes, map[string]any{
		"document":         doc.Name,
		"total_pages":      len(pages),
		"total_table_rows": doc.TableRows(),
	})
}

// Process extracts a document and admits its report to the vault. The
// returned Result is non-nil even when err is set.
func (p *Pipeline) Process(ctx context.Context, doc *source.Document) (*Result, error) {
	res := &Result{Document: doc.Name}
	run := p.startRun(ctx, doc.Name)
	if run != nil {
		res.RunID = run.ID
	}
	return p.process(ctx, doc, res)
}

// ProcessFile loads path with loader and processes it. Load failures are
// recorded like any other document failure.
func (p *Pipeline) ProcessFile(ctx context.Context, loader Loader, path string) (*Result, error) {
	res := &Result{Document: displayName(path)}
	run := p.startRun(ctx, res.Document)
	if run != nil {
		res.RunID = run.ID
	}

	doc, err := loader.Load(ctx, path)
	if err != nil {
		return p.fail(ctx, res, err)
	}
	return p.process(ctx, doc, res)
}

func (p *Pipeline) process(ctx context.Context, doc *source.Document, res *Result) (*Result, error) {
	log := zap.L().With(zap.String("document", doc.Name))

	report := p.Extract(doc)
	res.Report = report
	res.TestCount = len(report.TestResults)
	log.Debug("pipeline: extracted report",
		zap.Int("pages", len(doc.Pages)),
		zap.Int("tests", res.TestCount),
		zap.Bool("has_name", report.Patient.Name != nil),
	)

	adm, err := p.vault.Admit(ctx, report, vault.Document{Name: doc.Name, Path: doc.Path}, p.resolver.Resolve)
	if err != nil {
		return p.fail(ctx, res, err)
	}

	res.Status = model.RunStatusComplete
	res.PatientID = adm.Record.Identity.ID
	res.IsNewPatient = adm.IsNew
	res.ReportCount = adm.Record.ReportCount
	res.ReportPath = adm.ReportPath

	p.finishRun(ctx, res)
	p.metrics.DocumentProcessed(string(model.RunStatusComplete))
	p.metrics.Admitted(adm.IsNew, res.TestCount)
	log.Debug("pipeline: admitted report",
		zap.String("patient_id", res.PatientID),
		zap.Bool("new_patient", res.IsNewPatient),
		zap.Int("report_count", res.ReportCount),
	)
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	err = eris.Wrapf(err, "pipeline: %s", res.Document)
	res.Status = model.RunStatusFailed
	res.Error = err.Error()

	p.finishRun(ctx, res)
	p.metrics.DocumentProcessed(string(model.RunStatusFailed))
	zap.L().Error("pipeline: document failed", zap.String("document", res.Document), zap.Error(err))
	return res, err
}

func (p *Pipeline) startRun(ctx context.Context, document string) *model.Run {
	if p.ledger == nil {
		return nil
	}
	run, err := p.ledger.CreateRun(ctx, document)
	if err != nil {
		zap.L().Warn("pipeline: failed to create run", zap.String("document", document), zap.Error(err))
		return nil
	}
	if err := p.ledger.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		zap.L().Warn("pipeline: failed to update run status", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run
}

func (p *Pipeline) finishRun(ctx context.Context, res *Result) {
	if p.ledger == nil || res.RunID == "" {
		return
	}
	outcome := &model.RunResult{
		PatientID:    res.PatientID,
		IsNewPatient: res.IsNewPatient,
		ReportCount:  res.ReportCount,
		TestCount:    res.TestCount,
		Error:        res.Error,
	}
	if err := p.ledger.UpdateRunResult(ctx, res.RunID, res.Status, outcome); err != nil {
		zap.L().Warn("pipeline: failed to record run result", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
