package interfaces

import (
	"context"

	"github.com/AliAzimiD/jobharvest/internal/models"
)

// StartResult reports whether a run start request was accepted
type StartResult struct {
	Accepted bool   `json:"accepted"`
	BatchID  string `json:"batch_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RunOverrides carries optional per-run configuration supplied with a start
// request. Nil or zero fields keep the configured values.
type RunOverrides struct {
	MaxPages              int `json:"max_pages,omitempty"`
	BatchSize             int `json:"batch_size,omitempty"`
	MaxConcurrentRequests int `json:"max_concurrent_requests,omitempty"`
}

// ScraperService is the run control surface consumed by the web layer and
// the scheduler. At most one run is active at a time.
type ScraperService interface {
	StartRun(ctx context.Context, overrides *RunOverrides) StartResult
	StopRun() bool
	Status() *models.RunStatusReport
	Wait()
}
