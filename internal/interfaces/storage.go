package interfaces

import (
	"context"

	"github.com/AliAzimiD/jobharvest/internal/models"
)

// JobListOptions filters and paginates job listings
type JobListOptions struct {
	BatchID  string
	Keyword  string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage persists job records. UpsertBatch is atomic per record and
// idempotent on ID: inserting the same record twice yields one stored
// record reflecting the latest values, with UpdatedAt advancing.
type JobStorage interface {
	UpsertBatch(ctx context.Context, batchID string, records []*models.JobRecord) (*models.UpsertResult, error)
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.JobRecord, error)
	CountJobs(ctx context.Context) (int, error)
	DeleteJob(ctx context.Context, id string) error
}

// BatchStorage persists run lifecycle records
type BatchStorage interface {
	SaveBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	GetLatestBatch(ctx context.Context) (*models.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*models.Batch, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	BatchStorage() BatchStorage
	Close() error
}
