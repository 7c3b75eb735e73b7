package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/interfaces"
)

// ScraperHandler exposes run control: start, stop and status
type ScraperHandler struct {
	scraper interfaces.ScraperService
	batches interfaces.BatchStorage
	logger  arbor.ILogger
}

func NewScraperHandler(scraper interfaces.ScraperService, batches interfaces.BatchStorage) *ScraperHandler {
	return &ScraperHandler{
		scraper: scraper,
		batches: batches,
		logger:  common.GetLogger(),
	}
}

// StartHandler starts a new ingestion run. The optional JSON body carries
// per-run overrides. A 409 means a run is already active.
func (h *ScraperHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var overrides *interfaces.RunOverrides
	body, err := io.ReadAll(r.Body)
	if err == nil && len(body) > 0 {
		overrides = &interfaces.RunOverrides{}
		if err := json.Unmarshal(body, overrides); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result := h.scraper.StartRun(r.Context(), overrides)
	if !result.Accepted {
		WriteJSON(w, http.StatusConflict, result)
		return
	}

	WriteJSON(w, http.StatusAccepted, result)
}

// StopHandler requests a graceful stop of the active run. Stopping an
// idle service is not an error; the response says nothing was running.
func (h *ScraperHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if h.scraper.StopRun() {
		WriteSuccess(w, "stop requested")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "no active run",
	})
}

// StatusHandler returns the current run status snapshot
func (h *ScraperHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.scraper.Status())
}

// ListBatchesHandler returns recent runs, newest first
func (h *ScraperHandler) ListBatchesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit, _ := GetPaginationParams(r)
	batches, err := h.batches.ListBatches(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list batches")
		WriteError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}
