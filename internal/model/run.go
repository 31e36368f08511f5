package model

import "time"

// RunStatus represents the current state of a document run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"

	// RunStatusSkipped only appears in batch summaries, for documents never
	// started after a stop-on-error batch aborted.
	RunStatusSkipped RunStatus = "skipped"
)

// Run records one document passing through the pipeline.
type Run struct {
	ID        string     `json:"id"`
	Document  string     `json:"document"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	PatientID    string `json:"patient_id,omitempty"`
	IsNewPatient bool   `json:"is_new_patient"`
	ReportCount  int    `json:"report_count"`
	TestCount    int    `json:"test_count"`
	Error        string `json:"error,omitempty"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Status       RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}
