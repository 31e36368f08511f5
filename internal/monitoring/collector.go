package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labvault/internal/model"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	DocumentsTotal    int     `json:"documents_total"`
	DocumentsComplete int     `json:"documents_complete"`
	DocumentsFailed   int     `json:"documents_failed"`
	DocumentsPending  int     `json:"documents_pending"`
	FailRate          float64 `json:"fail_rate"`
	NewPatients       int     `json:"new_patients"`
	AvgTestCount      float64 `json:"avg_test_count"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of the run ledger the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Collector gathers snapshots from the run ledger.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes the runs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, model.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.DocumentsTotal = len(runs)
	var tests, completed int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.DocumentsComplete++
		case model.RunStatusFailed:
			snap.DocumentsFailed++
		default:
			snap.DocumentsPending++
		}
		if r.Status == model.RunStatusComplete && r.Result != nil {
			completed++
			tests += r.Result.TestCount
			if r.Result.IsNewPatient {
				snap.NewPatients++
			}
		}
	}

	if finished := snap.DocumentsComplete + snap.DocumentsFailed; finished > 0 {
		snap.FailRate = float64(snap.DocumentsFailed) / float64(finished)
	}
	if completed > 0 {
		snap.AvgTestCount = float64(tests) / float64(completed)
	}
	return snap, nil
}
