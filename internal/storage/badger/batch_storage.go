package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/AliAzimiD/jobharvest/internal/interfaces"
	"github.com/AliAzimiD/jobharvest/internal/models"
)

// BatchStorage implements the BatchStorage interface for Badger
type BatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBatchStorage creates a new BatchStorage instance
func NewBatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BatchStorage {
	return &BatchStorage{
		db:     db,
		logger: logger,
	}
}

// SaveBatch inserts or updates a batch record
func (s *BatchStorage) SaveBatch(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	if err := s.db.Store().Upsert(batch.ID, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by ID
func (s *BatchStorage) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch models.Batch
	if err := s.db.Store().Get(batchID, &batch); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("batch not found: %s", batchID)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

// GetLatestBatch returns the most recently started batch, or nil when no
// run has ever been recorded
func (s *BatchStorage) GetLatestBatch(ctx context.Context) (*models.Batch, error) {
	var batches []models.Batch
	query := badgerhold.Where("ID").Ne("").SortBy("StartTime").Reverse().Limit(1)
	if err := s.db.Store().Find(&batches, query); err != nil {
		return nil, fmt.Errorf("failed to get latest batch: %w", err)
	}
	if len(batches) == 0 {
		return nil, nil
	}
	return &batches[0], nil
}

// ListBatches returns recent batches, newest first
func (s *BatchStorage) ListBatches(ctx context.Context, limit int) ([]*models.Batch, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartTime").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var batches []models.Batch
	if err := s.db.Store().Find(&batches, query); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	result := make([]*models.Batch, len(batches))
	for i := range batches {
		result[i] = &batches[i]
	}
	return result, nil
}
