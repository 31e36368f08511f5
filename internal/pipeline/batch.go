package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/source"
)

// Loader decodes a file into a document. *source.Loader implements it.
type Loader interface {
	Load(ctx context.Context, path string) (*source.Document, error)
}

// BatchOptions controls a batch run.
type BatchOptions struct {
	// Concurrency caps documents in flight. Values below 1 mean 1.
	Concurrency int
	// StopOnError stops starting new documents after the first failure.
	// Documents already in flight finish; persisted vault updates stay.
	StopOnError bool
}

// Summary is the outcome of a batch, with results in input order.
type Summary struct {
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	NewPatients int       `json:"new_patients"`
	Results     []Result  `json:"results"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Batch processes paths concurrently. Extraction runs in parallel; vault
// admission is serialized by the vault itself. With StopOnError the first
// failure is returned after in-flight documents finish; otherwise failures
// are only reported in the summary.
func (p *Pipeline) Batch(ctx context.Context, loader Loader, paths []string, opts BatchOptions) (*Summary, error) {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sum := &Summary{
		Total:     len(paths),
		Results:   make([]Result, len(paths)),
		StartedAt: time.Now().UTC(),
	}
	for i, path := range paths {
		sum.Results[i] = Result{Document: displayName(path), Status: model.RunStatusSkipped}
	}

	zap.L().Info("pipeline: processing batch",
		zap.Int("documents", len(paths)),
		zap.Int("concurrency", concurrency),
		zap.Bool("stop_on_error", opts.StopOnError),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			// A started document runs to completion even if the batch stops.
			res, err := p.ProcessFile(context.WithoutCancel(gctx), loader, path)
			sum.Results[i] = *res
			if err != nil && opts.StopOnError {
				return err
			}
			return nil
		})
	}
	err := g.Wait()

	for _, r := range sum.Results {
		switch r.Status {
		case model.RunStatusComplete:
			sum.Succeeded++
			if r.IsNewPatient {
				sum.NewPatients++
			}
		case model.RunStatusFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}
	sum.FinishedAt = time.Now().UTC()

	zap.L().Info("pipeline: batch complete",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("new_patients", sum.NewPatients),
	)

	if err != nil {
		return sum, eris.Wrap(err, "pipeline: batch stopped")
	}
	if ctxErr := ctx.Err(); ctxErr != nil && sum.Skipped > 0 {
		return sum, eris.Wrap(ctxErr, "pipeline: batch cancelled")
	}
	return sum, nil
}

// WriteSummary writes the summary as indented JSON.
func WriteSummary(path string, sum *Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal summary")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrap(err, "pipeline: write summary")
	}
	return nil
}

func displayName(path string) string {
	return filepath.Base(path)
}
