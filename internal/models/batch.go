package models

import (
	"time"
)

// RunStatus represents the state of an ingestion run
type RunStatus string

const (
	RunStatusIdle       RunStatus = "idle"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusError      RunStatus = "error"
	RunStatusStopped    RunStatus = "stopped"
)

// IsTerminal reports whether the status is absorbing: a finished run cannot
// resume, a new run must be started.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusError || s == RunStatusStopped
}

// Batch represents one ingestion run and its aggregate counters.
// EndTime is set exactly once, at the batch's terminal transition.
type Batch struct {
	ID           string     `json:"batch_id" badgerhold:"key"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	JobCount     int        `json:"job_count"`
	Status       RunStatus  `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Stats        RunStats   `json:"stats"`
}

// RunStats holds aggregate counters for a run. Always associated with
// exactly one Batch.
type RunStats struct {
	PagesFetched    int           `json:"pages_fetched"`
	JobsFound       int           `json:"jobs_found"`
	JobsAdded       int           `json:"jobs_added"`
	JobsUpdated     int           `json:"jobs_updated"`
	Errors          int           `json:"errors"`
	FallbackBatches int           `json:"fallback_batches"`
	FallbackRecords int           `json:"fallback_records"`
	Duration        time.Duration `json:"duration"`
}

// RunStatusReport is the snapshot returned by the status read operation.
// Every state transition is visible through it immediately.
type RunStatusReport struct {
	Status          RunStatus  `json:"status"`
	BatchID         string     `json:"batch_id,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	JobsFound       int        `json:"jobs_found"`
	JobsAdded       int        `json:"jobs_added"`
	JobsUpdated     int        `json:"jobs_updated"`
	Errors          int        `json:"errors"`
	FallbackBatches int        `json:"fallback_batches"`
	FallbackRecords int        `json:"fallback_records"`
	ProgressPercent float64    `json:"progress_percent"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// UpsertResult reports the outcome of one batched upsert
type UpsertResult struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Failed   []RecordError `json:"failed,omitempty"`
}

// RecordError describes a per-record storage failure. Record-level errors
// never abort a batch; they are reported back to the caller and counted.
type RecordError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}
