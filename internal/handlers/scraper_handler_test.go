package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliAzimiD/jobharvest/internal/interfaces"
	"github.com/AliAzimiD/jobharvest/internal/models"
)

// mockScraperService implements interfaces.ScraperService for testing
type mockScraperService struct {
	startFunc  func(ctx context.Context, overrides *interfaces.RunOverrides) interfaces.StartResult
	stopResult bool
	status     *models.RunStatusReport
}

func (m *mockScraperService) StartRun(ctx context.Context, overrides *interfaces.RunOverrides) interfaces.StartResult {
	if m.startFunc != nil {
		return m.startFunc(ctx, overrides)
	}
	return interfaces.StartResult{Accepted: true, BatchID: "batch-test"}
}

func (m *mockScraperService) StopRun() bool { return m.stopResult }

func (m *mockScraperService) Status() *models.RunStatusReport {
	if m.status != nil {
		return m.status
	}
	return &models.RunStatusReport{Status: models.RunStatusIdle}
}

func (m *mockScraperService) Wait() {}

// mockBatchStorage implements interfaces.BatchStorage for testing
type mockBatchStorage struct {
	batches []*models.Batch
	err     error
}

func (m *mockBatchStorage) SaveBatch(ctx context.Context, batch *models.Batch) error { return nil }
func (m *mockBatchStorage) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	return nil, nil
}
func (m *mockBatchStorage) GetLatestBatch(ctx context.Context) (*models.Batch, error) {
	return nil, nil
}
func (m *mockBatchStorage) ListBatches(ctx context.Context, limit int) ([]*models.Batch, error) {
	return m.batches, m.err
}

func TestStartHandler_Accepted(t *testing.T) {
	var gotOverrides *interfaces.RunOverrides
	handler := NewScraperHandler(&mockScraperService{
		startFunc: func(ctx context.Context, overrides *interfaces.RunOverrides) interfaces.StartResult {
			gotOverrides = overrides
			return interfaces.StartResult{Accepted: true, BatchID: "batch-1"}
		},
	}, &mockBatchStorage{})

	req := httptest.NewRequest("POST", "/api/scrape/start", strings.NewReader(`{"max_pages": 3}`))
	rec := httptest.NewRecorder()
	handler.StartHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, gotOverrides)
	assert.Equal(t, 3, gotOverrides.MaxPages)

	var result interfaces.StartResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Accepted)
	assert.Equal(t, "batch-1", result.BatchID)
}

func TestStartHandler_Conflict(t *testing.T) {
	handler := NewScraperHandler(&mockScraperService{
		startFunc: func(ctx context.Context, overrides *interfaces.RunOverrides) interfaces.StartResult {
			return interfaces.StartResult{Accepted: false, BatchID: "batch-1", Reason: "a run is already in progress"}
		},
	}, &mockBatchStorage{})

	req := httptest.NewRequest("POST", "/api/scrape/start", nil)
	rec := httptest.NewRecorder()
	handler.StartHandler(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartHandler_BadBody(t *testing.T) {
	handler := NewScraperHandler(&mockScraperService{}, &mockBatchStorage{})

	req := httptest.NewRequest("POST", "/api/scrape/start", strings.NewReader(`{{{`))
	rec := httptest.NewRecorder()
	handler.StartHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartHandler_MethodNotAllowed(t *testing.T) {
	handler := NewScraperHandler(&mockScraperService{}, &mockBatchStorage{})

	req := httptest.NewRequest("GET", "/api/scrape/start", nil)
	rec := httptest.NewRecorder()
	handler.StartHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStopHandler(t *testing.T) {
	tests := []struct {
		name       string
		stopResult bool
		wantMsg    string
	}{
		{"active run", true, "stop requested"},
		{"no active run", false, "no active run"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewScraperHandler(&mockScraperService{stopResult: tt.stopResult}, &mockBatchStorage{})

			req := httptest.NewRequest("POST", "/api/scrape/stop", nil)
			rec := httptest.NewRecorder()
			handler.StopHandler(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestStatusHandler(t *testing.T) {
	handler := NewScraperHandler(&mockScraperService{
		status: &models.RunStatusReport{
			Status:    models.RunStatusInProgress,
			BatchID:   "batch-1",
			JobsFound: 42,
		},
	}, &mockBatchStorage{})

	req := httptest.NewRequest("GET", "/api/scrape/status", nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var report models.RunStatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.RunStatusInProgress, report.Status)
	assert.Equal(t, 42, report.JobsFound)
}

func TestListBatchesHandler(t *testing.T) {
	handler := NewScraperHandler(&mockScraperService{}, &mockBatchStorage{
		batches: []*models.Batch{
			{ID: "batch-1", Status: models.RunStatusCompleted},
			{ID: "batch-2", Status: models.RunStatusError},
		},
	})

	req := httptest.NewRequest("GET", "/api/batches", nil)
	rec := httptest.NewRecorder()
	handler.ListBatchesHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}
