package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/interfaces"
)

// JobHandler exposes read access to harvested job records
type JobHandler struct {
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

func NewJobHandler(jobs interfaces.JobStorage) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: common.GetLogger(),
	}
}

// ListJobsHandler returns job records, filterable by batch and title keyword
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit, offset := GetPaginationParams(r)
	opts := &interfaces.JobListOptions{
		BatchID: r.URL.Query().Get("batch_id"),
		Keyword: r.URL.Query().Get("q"),
		Limit:   limit,
		Offset:  offset,
	}

	records, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   records,
		"count":  len(records),
		"limit":  limit,
		"offset": offset,
	})
}

// CountJobsHandler returns the total number of stored job records
func (h *JobHandler) CountJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	count, err := h.jobs.CountJobs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// GetJobHandler returns a single job record by ID (path /api/jobs/{id})
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	record, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}
