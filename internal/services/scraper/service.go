// Package scraper implements the ingestion pipeline: a rate-limited
// concurrent page fetcher, retrying transient failures with exponential
// backoff, normalizing items into validated records and upserting them in
// batches. Batches the store cannot accept within the retry budget land in
// fallback files instead of being lost. A run-scoped circuit breaker aborts
// runs drowning in failures.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/interfaces"
	"github.com/AliAzimiD/jobharvest/internal/models"
	"github.com/AliAzimiD/jobharvest/internal/storage/fallback"
)

// Service is the run controller. It owns the run lifecycle
// (idle -> in_progress -> completed/error/stopped) and enforces that at
// most one run is active at a time.
type Service struct {
	config   *common.Config
	sources  []models.SourceConfig
	storage  interfaces.StorageManager
	fallback *fallback.Writer
	logger   arbor.ILogger

	mu      sync.Mutex
	current *runState
}

// runState is the mutable state of one run. Counters are atomics so worker
// goroutines and status readers never contend on a lock.
type runState struct {
	batch      *models.Batch
	totalPages int

	cancel        context.CancelFunc
	stopRequested atomic.Bool
	noMoreData    atomic.Bool
	failures      *FailureCounter
	done          chan struct{}

	pagesFetched    atomic.Int64
	jobsFound       atomic.Int64
	jobsAdded       atomic.Int64
	jobsUpdated     atomic.Int64
	errorCount      atomic.Int64
	fallbackBatches atomic.Int64
	fallbackRecords atomic.Int64

	errMu  sync.Mutex
	errMsg string
}

// setError records the most recent failure message of the run
func (st *runState) setError(msg string) {
	st.errMu.Lock()
	defer st.errMu.Unlock()
	st.errMsg = msg
}

func (st *runState) errorMessage() string {
	st.errMu.Lock()
	defer st.errMu.Unlock()
	return st.errMsg
}

// NewService creates the scraper service
func NewService(config *common.Config, sources []models.SourceConfig, storage interfaces.StorageManager, fallbackWriter *fallback.Writer, logger arbor.ILogger) interfaces.ScraperService {
	return &Service{
		config:   config,
		sources:  sources,
		storage:  storage,
		fallback: fallbackWriter,
		logger:   logger,
	}
}

// StartRun starts a new ingestion run unless one is already active. The run
// itself executes on a background context: it outlives the HTTP request
// that started it.
func (s *Service) StartRun(ctx context.Context, overrides *interfaces.RunOverrides) interfaces.StartResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !s.current.batch.Status.IsTerminal() {
		return interfaces.StartResult{
			Accepted: false,
			BatchID:  s.current.batch.ID,
			Reason:   "a run is already in progress",
		}
	}

	runCfg := s.effectiveRunConfig(overrides)

	totalPages := 0
	for _, src := range s.sources {
		totalPages += minInt(src.MaxPages, runCfg.MaxPages)
	}

	batch := &models.Batch{
		ID:        common.NewBatchID(),
		StartTime: time.Now().UTC(),
		Status:    models.RunStatusInProgress,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	st := &runState{
		batch:      batch,
		totalPages: totalPages,
		cancel:     cancel,
		failures:   NewFailureCounter(s.config.Scraper.FailureThreshold),
		done:       make(chan struct{}),
	}
	s.current = st

	if err := s.storage.BatchStorage().SaveBatch(runCtx, batch); err != nil {
		// Bookkeeping only. The run still happens; records have the
		// fallback path if the store stays down.
		s.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("Failed to persist batch record at start")
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Int("sources", len(s.sources)).
		Int("max_pages", runCfg.MaxPages).
		Int("batch_size", runCfg.BatchSize).
		Int("concurrency", runCfg.Concurrency).
		Msg("Ingestion run started")

	go s.run(runCtx, st, runCfg)

	return interfaces.StartResult{Accepted: true, BatchID: batch.ID}
}

// StopRun requests a graceful stop of the active run. Workers observe the
// flag between pages; in-flight page work is allowed to finish so no
// partially processed page is abandoned mid-write.
func (s *Service) StopRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.batch.Status.IsTerminal() {
		return false
	}

	s.current.stopRequested.Store(true)
	s.logger.Info().Str("batch_id", s.current.batch.ID).Msg("Stop requested")
	return true
}

// Status returns a snapshot of the active run, or of the most recent run
// when idle
func (s *Service) Status() *models.RunStatusReport {
	s.mu.Lock()
	st := s.current
	s.mu.Unlock()

	if st == nil {
		return s.statusFromHistory()
	}

	s.mu.Lock()
	status := st.batch.Status
	startTime := st.batch.StartTime
	endTime := st.batch.EndTime
	s.mu.Unlock()

	report := &models.RunStatusReport{
		Status:          status,
		BatchID:         st.batch.ID,
		StartTime:       &startTime,
		EndTime:         endTime,
		JobsFound:       int(st.jobsFound.Load()),
		JobsAdded:       int(st.jobsAdded.Load()),
		JobsUpdated:     int(st.jobsUpdated.Load()),
		Errors:          int(st.errorCount.Load()),
		FallbackBatches: int(st.fallbackBatches.Load()),
		FallbackRecords: int(st.fallbackRecords.Load()),
		ErrorMessage:    st.errorMessage(),
	}

	switch {
	case status == models.RunStatusCompleted:
		report.ProgressPercent = 100
	case st.totalPages > 0:
		report.ProgressPercent = float64(st.pagesFetched.Load()) / float64(st.totalPages) * 100
		if report.ProgressPercent > 100 {
			report.ProgressPercent = 100
		}
	}

	return report
}

// Wait blocks until the active run finishes. Used by the one-shot CLI mode.
func (s *Service) Wait() {
	s.mu.Lock()
	st := s.current
	s.mu.Unlock()

	if st == nil {
		return
	}
	<-st.done
}

// statusFromHistory reports the latest persisted batch when no run has
// happened in this process yet
func (s *Service) statusFromHistory() *models.RunStatusReport {
	batch, err := s.storage.BatchStorage().GetLatestBatch(context.Background())
	if err != nil || batch == nil {
		return &models.RunStatusReport{Status: models.RunStatusIdle}
	}

	report := &models.RunStatusReport{
		Status:          batch.Status,
		BatchID:         batch.ID,
		StartTime:       &batch.StartTime,
		EndTime:         batch.EndTime,
		JobsFound:       batch.Stats.JobsFound,
		JobsAdded:       batch.Stats.JobsAdded,
		JobsUpdated:     batch.Stats.JobsUpdated,
		Errors:          batch.Stats.Errors,
		FallbackBatches: batch.Stats.FallbackBatches,
		FallbackRecords: batch.Stats.FallbackRecords,
		ErrorMessage:    batch.ErrorMessage,
	}
	if batch.Status == models.RunStatusCompleted {
		report.ProgressPercent = 100
	}
	return report
}

// effectiveRunConfig merges per-run overrides over the configured values
func (s *Service) effectiveRunConfig(overrides *interfaces.RunOverrides) RunConfig {
	cfg := RunConfig{
		MaxPages:    s.config.Scraper.MaxPages,
		BatchSize:   s.config.Scraper.BatchSize,
		Concurrency: s.config.Scraper.MaxConcurrentRequests,
		QueueSize:   s.config.Scraper.QueueSize,
	}
	if overrides != nil {
		if overrides.MaxPages > 0 {
			cfg.MaxPages = overrides.MaxPages
		}
		if overrides.BatchSize > 0 && overrides.BatchSize <= 5000 {
			cfg.BatchSize = overrides.BatchSize
		}
		if overrides.MaxConcurrentRequests > 0 {
			cfg.Concurrency = overrides.MaxConcurrentRequests
		}
	}
	return cfg
}

// run executes one ingestion run across all configured sources and drives
// the batch to its terminal state
func (s *Service) run(ctx context.Context, st *runState, cfg RunConfig) {
	defer close(st.done)

	for _, source := range s.sources {
		if st.stopRequested.Load() || st.failures.Tripped() || ctx.Err() != nil {
			break
		}
		s.runSource(ctx, st, cfg, source)
	}

	s.finish(st)
}

// runSource fetches one source with a bounded page queue and a fixed pool
// of workers. Page numbers are fed until the configured maximum, a stop
// request, or an empty page from the source.
func (s *Service) runSource(ctx context.Context, st *runState, cfg RunConfig, source models.SourceConfig) {
	fetcher := NewFetcher(source, &s.config.Scraper, s.logger)
	normalizer := NewNormalizer(source.Selectors, s.config.Scraper.SaveRawData, s.logger)
	fetchPolicy := NewRetryPolicy(
		s.config.Scraper.RetryCount,
		s.config.Scraper.RetryDelay(),
		s.config.Scraper.RetryMaxDelay(),
		s.config.Scraper.RetryBackoffFactor,
	)

	st.noMoreData.Store(false)
	maxPages := minInt(source.MaxPages, cfg.MaxPages)
	pages := make(chan int, cfg.QueueSize)

	go func() {
		defer close(pages)
		for page := 1; page <= maxPages; page++ {
			if st.stopRequested.Load() || st.noMoreData.Load() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case pages <- page:
			}
		}
	}()

	var wg sync.WaitGroup
	for slot := 0; slot < cfg.Concurrency; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for {
				// stop is cooperative: checked between pages, never
				// mid-page
				if st.stopRequested.Load() {
					return
				}
				select {
				case <-ctx.Done():
					return
				case page, ok := <-pages:
					if !ok {
						return
					}
					s.processPage(ctx, st, cfg, source, fetcher, normalizer, fetchPolicy, slot, page)
				}
			}
		}(slot)
	}
	wg.Wait()
}

// processPage fetches, normalizes and persists one page
func (s *Service) processPage(ctx context.Context, st *runState, cfg RunConfig, source models.SourceConfig, fetcher *Fetcher, normalizer *Normalizer, fetchPolicy *RetryPolicy, slot, page int) {
	var pg *Page
	err := fetchPolicy.Execute(ctx, s.logger, fmt.Sprintf("fetch %s page %d", source.Name, page), func() error {
		p, ferr := fetcher.FetchPage(ctx, slot, page)
		if ferr == nil {
			pg = p
		}
		return ferr
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().
			Err(err).
			Str("source", source.Name).
			Int("page", page).
			Msg("Page failed after retries")
		s.recordFailure(st, fmt.Sprintf("source %s page %d: %v", source.Name, page, err))
		return
	}

	st.pagesFetched.Add(1)

	if len(pg.Items) == 0 {
		s.logger.Info().
			Str("source", source.Name).
			Int("page", page).
			Msg("Empty page, no more data from source")
		st.noMoreData.Store(true)
		return
	}

	records, rejections := normalizer.NormalizePage(pg.Items)
	st.jobsFound.Add(int64(len(records)))
	st.errorCount.Add(int64(len(rejections)))

	// A page that is mostly garbage is a systemic problem with the source
	// or the selector mapping, not a handful of bad postings.
	if limit := s.config.Scraper.RejectionRateLimit; limit > 0 && len(pg.Items) > 0 {
		ratio := float64(len(rejections)) / float64(len(pg.Items))
		if ratio > limit {
			s.logger.Warn().
				Str("source", source.Name).
				Int("page", page).
				Int("rejected", len(rejections)).
				Int("items", len(pg.Items)).
				Msg("Rejection rate over limit")
			s.recordFailure(st, fmt.Sprintf("source %s page %d: %d of %d items rejected", source.Name, page, len(rejections), len(pg.Items)))
		}
	}

	for start := 0; start < len(records); start += cfg.BatchSize {
		end := minInt(start+cfg.BatchSize, len(records))
		s.persistChunk(ctx, st, records[start:end])
	}
}

// persistChunk upserts one chunk of records, retrying store failures up to
// the db retry budget. A chunk the store never accepts is written to a
// fallback file: that path is expected operation under a store outage, not
// a run failure.
func (s *Service) persistChunk(ctx context.Context, st *runState, records []*models.JobRecord) {
	dbPolicy := NewRetryPolicy(
		s.config.Scraper.DBRetries,
		s.config.Scraper.RetryDelay(),
		s.config.Scraper.RetryMaxDelay(),
		s.config.Scraper.RetryBackoffFactor,
	)
	dbPolicy.Classify = func(err error) bool {
		return ctx.Err() == nil
	}

	var result *models.UpsertResult
	err := dbPolicy.Execute(ctx, s.logger, "upsert batch", func() error {
		r, uerr := s.storage.JobStorage().UpsertBatch(ctx, st.batch.ID, records)
		if uerr == nil {
			result = r
		}
		return uerr
	})

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		reason := fmt.Sprintf("store unavailable after %d attempts: %v", s.config.Scraper.DBRetries+1, err)
		if _, ferr := s.fallback.Write(st.batch.ID, reason, records); ferr != nil {
			s.logger.Error().Err(ferr).Int("records", len(records)).Msg("Fallback write failed, records lost")
			s.recordFailure(st, fmt.Sprintf("fallback write failed: %v", ferr))
			return
		}
		st.fallbackBatches.Add(1)
		st.fallbackRecords.Add(int64(len(records)))
		return
	}

	st.jobsAdded.Add(int64(result.Inserted))
	st.jobsUpdated.Add(int64(result.Updated))
	if len(result.Failed) > 0 {
		st.errorCount.Add(int64(len(result.Failed)))
		for _, failure := range result.Failed {
			s.logger.Warn().
				Str("job_id", failure.ID).
				Str("reason", failure.Reason).
				Msg("Record rejected by store")
		}
	}
}

// recordFailure counts one page-level failure against the circuit breaker
// and aborts the run when the threshold is crossed
func (s *Service) recordFailure(st *runState, msg string) {
	st.errorCount.Add(1)
	st.setError(msg)
	if st.failures.Record() {
		s.logger.Error().
			Str("batch_id", st.batch.ID).
			Int("failures", st.failures.Count()).
			Msg("Failure threshold exceeded, aborting run")
		st.cancel()
	}
}

// finish drives the batch to its terminal state, exactly once, and
// persists the final record
func (s *Service) finish(st *runState) {
	st.cancel()

	var status models.RunStatus
	switch {
	case st.failures.Tripped():
		status = models.RunStatusError
	case st.stopRequested.Load():
		status = models.RunStatusStopped
	default:
		status = models.RunStatusCompleted
	}

	now := time.Now().UTC()

	s.mu.Lock()
	st.batch.Status = status
	if st.batch.EndTime == nil {
		st.batch.EndTime = &now
	}
	st.batch.JobCount = int(st.jobsFound.Load())
	st.batch.ErrorMessage = ""
	if status == models.RunStatusError {
		st.batch.ErrorMessage = st.errorMessage()
	}
	st.batch.Stats = models.RunStats{
		PagesFetched:    int(st.pagesFetched.Load()),
		JobsFound:       int(st.jobsFound.Load()),
		JobsAdded:       int(st.jobsAdded.Load()),
		JobsUpdated:     int(st.jobsUpdated.Load()),
		Errors:          int(st.errorCount.Load()),
		FallbackBatches: int(st.fallbackBatches.Load()),
		FallbackRecords: int(st.fallbackRecords.Load()),
		Duration:        st.batch.EndTime.Sub(st.batch.StartTime),
	}
	final := *st.batch
	s.mu.Unlock()

	if err := s.storage.BatchStorage().SaveBatch(context.Background(), &final); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", final.ID).Msg("Failed to persist final batch record")
	}

	s.logger.Info().
		Str("batch_id", final.ID).
		Str("status", string(final.Status)).
		Int("pages_fetched", final.Stats.PagesFetched).
		Int("jobs_found", final.Stats.JobsFound).
		Int("jobs_added", final.Stats.JobsAdded).
		Int("jobs_updated", final.Stats.JobsUpdated).
		Int("errors", final.Stats.Errors).
		Int("fallback_batches", final.Stats.FallbackBatches).
		Dur("duration", final.Stats.Duration).
		Msg("Ingestion run finished")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
