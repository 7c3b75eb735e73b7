package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/AliAzimiD/jobharvest/internal/interfaces"
	"github.com/AliAzimiD/jobharvest/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch writes a batch of validated records, inserting new IDs and
// updating existing ones. Derived display fields are recomputed on every
// write so they stay consistent with their source fields, and UpdatedAt
// always advances. Per-record failures do not abort the batch; a non-nil
// error is returned only when the store itself is unusable.
func (s *JobStorage) UpsertBatch(ctx context.Context, batchID string, records []*models.JobRecord) (*models.UpsertResult, error) {
	result := &models.UpsertResult{}
	now := time.Now().UTC()

	for _, record := range records {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if record.ID == "" {
			result.Failed = append(result.Failed, models.RecordError{Reason: "record ID is required"})
			continue
		}

		inserted := false
		var existing models.JobRecord
		err := s.db.Store().Get(record.ID, &existing)
		switch {
		case err == nil:
			record.CreatedAt = existing.CreatedAt
			record.UpdatedAt = now
			if !record.UpdatedAt.After(existing.UpdatedAt) {
				record.UpdatedAt = existing.UpdatedAt.Add(time.Nanosecond)
			}
		case errors.Is(err, badgerhold.ErrNotFound):
			inserted = true
			record.CreatedAt = now
			record.UpdatedAt = now
		default:
			if storeUnusable(err) {
				return result, fmt.Errorf("failed to read job %s: %w", record.ID, err)
			}
			result.Failed = append(result.Failed, models.RecordError{ID: record.ID, Reason: err.Error()})
			continue
		}

		record.BatchID = batchID
		record.ComputeDerived()

		if err := s.db.Store().Upsert(record.ID, record); err != nil {
			if storeUnusable(err) {
				return result, fmt.Errorf("failed to save job %s: %w", record.ID, err)
			}
			s.logger.Warn().Err(err).Str("job_id", record.ID).Msg("Failed to upsert job record")
			result.Failed = append(result.Failed, models.RecordError{ID: record.ID, Reason: err.Error()})
			continue
		}

		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	return result, nil
}

// GetJob retrieves a job record by ID
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &record, nil
}

// ListJobs returns job records matching the given options
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.JobRecord, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.BatchID != "" {
			query = query.And("BatchID").Eq(opts.BatchID)
		}
		if opts.Keyword != "" {
			keyword := strings.ToLower(opts.Keyword)
			query = query.And("Title").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
				record, ok := ra.Record().(*models.JobRecord)
				if !ok {
					return false, nil
				}
				return strings.Contains(strings.ToLower(record.Title), keyword), nil
			})
		}
		if opts.OrderBy != "" {
			if strings.EqualFold(opts.OrderDir, "DESC") {
				query = query.SortBy(opts.OrderBy).Reverse()
			} else {
				query = query.SortBy(opts.OrderBy)
			}
		} else {
			query = query.SortBy("UpdatedAt").Reverse()
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	} else {
		query = query.SortBy("UpdatedAt").Reverse()
	}

	var records []models.JobRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.JobRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// CountJobs returns the total number of stored job records
func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.JobRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// DeleteJob removes a job record. Missing records are not an error.
func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.JobRecord{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// storeUnusable reports whether an error means the store itself is down
// rather than a single record being unwritable
func storeUnusable(err error) bool {
	return errors.Is(err, badgerdb.ErrDBClosed) || errors.Is(err, badgerdb.ErrBlockedWrites)
}
