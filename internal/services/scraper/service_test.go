package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/interfaces"
	"github.com/AliAzimiD/jobharvest/internal/models"
	"github.com/AliAzimiD/jobharvest/internal/storage/fallback"
)

// stubJobStorage is an in-memory JobStorage with a switchable outage
type stubJobStorage struct {
	mu          sync.Mutex
	failUpserts bool
	upsertCalls int
	records     map[string]*models.JobRecord
}

func newStubJobStorage() *stubJobStorage {
	return &stubJobStorage{records: make(map[string]*models.JobRecord)}
}

func (s *stubJobStorage) UpsertBatch(ctx context.Context, batchID string, records []*models.JobRecord) (*models.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertCalls++
	if s.failUpserts {
		return nil, errors.New("store offline")
	}

	result := &models.UpsertResult{}
	for _, record := range records {
		if _, ok := s.records[record.ID]; ok {
			result.Updated++
		} else {
			result.Inserted++
		}
		record.BatchID = batchID
		s.records[record.ID] = record
	}
	return result, nil
}

func (s *stubJobStorage) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return record, nil
}

func (s *stubJobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*models.JobRecord, 0, len(s.records))
	for _, record := range s.records {
		result = append(result, record)
	}
	return result, nil
}

func (s *stubJobStorage) CountJobs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *stubJobStorage) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *stubJobStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// stubBatchStorage keeps batch records in memory
type stubBatchStorage struct {
	mu      sync.Mutex
	batches map[string]models.Batch
}

func newStubBatchStorage() *stubBatchStorage {
	return &stubBatchStorage{batches: make(map[string]models.Batch)}
}

func (s *stubBatchStorage) SaveBatch(ctx context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = *batch
	return nil
}

func (s *stubBatchStorage) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, errors.New("batch not found")
	}
	return &batch, nil
}

func (s *stubBatchStorage) GetLatestBatch(ctx context.Context) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Batch
	for id := range s.batches {
		batch := s.batches[id]
		if latest == nil || batch.StartTime.After(latest.StartTime) {
			latest = &batch
		}
	}
	return latest, nil
}

func (s *stubBatchStorage) ListBatches(ctx context.Context, limit int) ([]*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*models.Batch, 0, len(s.batches))
	for id := range s.batches {
		batch := s.batches[id]
		result = append(result, &batch)
	}
	return result, nil
}

type stubStorageManager struct {
	job   *stubJobStorage
	batch *stubBatchStorage
}

func newStubStorageManager() *stubStorageManager {
	return &stubStorageManager{job: newStubJobStorage(), batch: newStubBatchStorage()}
}

func (m *stubStorageManager) JobStorage() interfaces.JobStorage     { return m.job }
func (m *stubStorageManager) BatchStorage() interfaces.BatchStorage { return m.batch }
func (m *stubStorageManager) Close() error                          { return nil }

// serviceTestConfig returns a config tuned for fast tests
func serviceTestConfig(t *testing.T) *common.Config {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Scraper.MaxPages = 10
	config.Scraper.BatchSize = 500
	config.Scraper.MaxConcurrentRequests = 2
	config.Scraper.QueueSize = 8
	config.Scraper.RequestTimeoutSeconds = 5
	config.Scraper.RequestDelayMillis = 0
	config.Scraper.RetryCount = 1
	config.Scraper.RetryDelaySeconds = 0.001
	config.Scraper.RetryMaxDelaySeconds = 0.005
	config.Scraper.DBRetries = 2
	config.Scraper.FailureThreshold = 5
	config.Fallback.Dir = t.TempDir()
	return config
}

func newTestService(t *testing.T, config *common.Config, storage interfaces.StorageManager, sourceURL string, maxPages int) (interfaces.ScraperService, *fallback.Writer) {
	t.Helper()
	writer, err := fallback.NewWriter(config.Fallback.Dir, common.GetLogger())
	require.NoError(t, err)

	src := postSource(sourceURL)
	src.MaxPages = maxPages
	return NewService(config, []models.SourceConfig{src}, storage, writer, common.GetLogger()), writer
}

// pagedServer serves `pages` pages of `perPage` items, then empty pages
func pagedServer(t *testing.T, pages, perPage int, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			time.Sleep(delay)
		}
		var payload struct {
			Page int `json:"page"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if payload.Page > pages {
			fmt.Fprint(w, `{"data": {"jobPosts": []}}`)
			return
		}
		fmt.Fprint(w, pageBody(payload.Page, perPage))
	}))
}

func TestService_RunCompletes(t *testing.T) {
	server := pagedServer(t, 3, 50, 0)
	defer server.Close()

	config := serviceTestConfig(t)
	storage := newStubStorageManager()
	service, _ := newTestService(t, config, storage, server.URL, 10)

	result := service.StartRun(context.Background(), nil)
	require.True(t, result.Accepted)
	require.NotEmpty(t, result.BatchID)

	service.Wait()

	status := service.Status()
	assert.Equal(t, models.RunStatusCompleted, status.Status)
	assert.Equal(t, 150, status.JobsFound)
	assert.Equal(t, 150, status.JobsAdded)
	assert.Equal(t, 0, status.JobsUpdated)
	assert.Equal(t, 0, status.Errors)
	assert.Equal(t, 0, status.FallbackBatches)
	assert.Equal(t, float64(100), status.ProgressPercent)
	require.NotNil(t, status.EndTime)

	assert.Equal(t, 150, storage.job.count())

	batch, err := storage.batch.GetBatch(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, batch.Status)
	require.NotNil(t, batch.EndTime)
	assert.Equal(t, 150, batch.Stats.JobsFound)
}

func TestService_TransientPageFailureRecovers(t *testing.T) {
	var mu sync.Mutex
	page2Failures := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Page int `json:"page"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		if payload.Page == 2 {
			mu.Lock()
			failing := page2Failures < 2
			if failing {
				page2Failures++
			}
			mu.Unlock()
			if failing {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		if payload.Page > 3 {
			fmt.Fprint(w, `{"data": {"jobPosts": []}}`)
			return
		}
		fmt.Fprint(w, pageBody(payload.Page, 50))
	}))
	defer server.Close()

	config := serviceTestConfig(t)
	config.Scraper.RetryCount = 3
	storage := newStubStorageManager()
	service, writer := newTestService(t, config, storage, server.URL, 10)

	require.True(t, service.StartRun(context.Background(), nil).Accepted)
	service.Wait()

	status := service.Status()
	assert.Equal(t, models.RunStatusCompleted, status.Status)
	assert.Equal(t, 150, status.JobsFound, "a page that recovers within the retry budget loses nothing")
	assert.Equal(t, 0, status.Errors)

	paths, err := writer.List()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestService_SecondRunIsIdempotentUpdate(t *testing.T) {
	server := pagedServer(t, 2, 10, 0)
	defer server.Close()

	config := serviceTestConfig(t)
	storage := newStubStorageManager()
	service, _ := newTestService(t, config, storage, server.URL, 10)

	require.True(t, service.StartRun(context.Background(), nil).Accepted)
	service.Wait()
	require.True(t, service.StartRun(context.Background(), nil).Accepted)
	service.Wait()

	status := service.Status()
	assert.Equal(t, models.RunStatusCompleted, status.Status)
	assert.Equal(t, 20, status.JobsFound)
	assert.Equal(t, 0, status.JobsAdded, "re-harvested records update in place")
	assert.Equal(t, 20, status.JobsUpdated)
	assert.Equal(t, 20, storage.job.count(), "no duplicates across runs")
}

func TestService_StoreOutageFallsBackWithoutDataLoss(t *testing.T) {
	server := pagedServer(t, 3, 10, 0)
	defer server.Close()

	config := serviceTestConfig(t)
	storage := newStubStorageManager()
	storage.job.failUpserts = true
	service, writer := newTestService(t, config, storage, server.URL, 10)

	result := service.StartRun(context.Background(), nil)
	require.True(t, result.Accepted)
	service.Wait()

	status := service.Status()
	assert.Equal(t, models.RunStatusCompleted, status.Status, "a store outage with working fallback is not a failed run")
	assert.Equal(t, 30, status.JobsFound)
	assert.Equal(t, 0, status.JobsAdded)
	assert.Equal(t, 3, status.FallbackBatches)
	assert.Equal(t, 30, status.FallbackRecords)

	paths, err := writer.List()
	require.NoError(t, err)
	require.Len(t, paths, 3)

	total := 0
	for _, path := range paths {
		file, err := fallback.Load(path)
		require.NoError(t, err)
		assert.Equal(t, result.BatchID, file.BatchID)
		assert.Len(t, file.Records, 10)
		total += len(file.Records)
	}
	assert.Equal(t, 30, total, "every fetched record is either stored or in a fallback file")

	// db_retries=2 means 3 attempts per chunk
	assert.Equal(t, 9, storage.job.upsertCalls)
}

func TestService_FailureThresholdAbortsRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := serviceTestConfig(t)
	config.Scraper.RetryCount = 0
	config.Scraper.FailureThreshold = 2
	config.Scraper.MaxConcurrentRequests = 1
	storage := newStubStorageManager()
	service, _ := newTestService(t, config, storage, server.URL, 50)

	require.True(t, service.StartRun(context.Background(), nil).Accepted)
	service.Wait()

	status := service.Status()
	assert.Equal(t, models.RunStatusError, status.Status)
	assert.NotEmpty(t, status.ErrorMessage)
	assert.GreaterOrEqual(t, status.Errors, 3, "the run aborts only after the threshold is exceeded")
	require.NotNil(t, status.EndTime)
}

func TestService_SingleRunExclusivityAndStop(t *testing.T) {
	server := pagedServer(t, 1000, 5, 30*time.Millisecond)
	defer server.Close()

	config := serviceTestConfig(t)
	config.Scraper.MaxConcurrentRequests = 1
	storage := newStubStorageManager()
	service, _ := newTestService(t, config, storage, server.URL, 1000)
	config.Scraper.MaxPages = 1000

	first := service.StartRun(context.Background(), nil)
	require.True(t, first.Accepted)

	second := service.StartRun(context.Background(), nil)
	assert.False(t, second.Accepted)
	assert.Equal(t, first.BatchID, second.BatchID)
	assert.NotEmpty(t, second.Reason)

	require.True(t, service.StopRun())
	service.Wait()

	status := service.Status()
	assert.Equal(t, models.RunStatusStopped, status.Status)
	require.NotNil(t, status.EndTime)

	assert.False(t, service.StopRun(), "stopping a terminal run is a no-op")

	// terminal state releases the single-run slot
	third := service.StartRun(context.Background(), nil)
	assert.True(t, third.Accepted)
	assert.NotEqual(t, first.BatchID, third.BatchID)
	service.StopRun()
	service.Wait()
}

func TestService_StatusIdleBeforeAnyRun(t *testing.T) {
	config := serviceTestConfig(t)
	storage := newStubStorageManager()
	service, _ := newTestService(t, config, storage, "http://localhost:1", 1)

	status := service.Status()
	assert.Equal(t, models.RunStatusIdle, status.Status)
	assert.Empty(t, status.BatchID)
}

func TestService_RunOverrides(t *testing.T) {
	server := pagedServer(t, 10, 5, 0)
	defer server.Close()

	config := serviceTestConfig(t)
	storage := newStubStorageManager()
	service, _ := newTestService(t, config, storage, server.URL, 10)

	result := service.StartRun(context.Background(), &interfaces.RunOverrides{MaxPages: 2})
	require.True(t, result.Accepted)
	service.Wait()

	status := service.Status()
	assert.Equal(t, models.RunStatusCompleted, status.Status)
	assert.Equal(t, 10, status.JobsFound, "max_pages override caps the run at 2 pages")
}
