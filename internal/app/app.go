// Package app wires the application together: configuration, logging,
// storage, the ingestion pipeline, the scheduler and the HTTP handlers.
package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/handlers"
	"github.com/AliAzimiD/jobharvest/internal/interfaces"
	"github.com/AliAzimiD/jobharvest/internal/models"
	"github.com/AliAzimiD/jobharvest/internal/services/scheduler"
	"github.com/AliAzimiD/jobharvest/internal/services/scraper"
	"github.com/AliAzimiD/jobharvest/internal/storage/badger"
	"github.com/AliAzimiD/jobharvest/internal/storage/fallback"
)

// App holds the application's services and handlers
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Sources []models.SourceConfig

	StorageManager interfaces.StorageManager
	FallbackWriter *fallback.Writer
	ScraperService interfaces.ScraperService
	Scheduler      *scheduler.Service

	APIHandler     *handlers.APIHandler
	ScraperHandler *handlers.ScraperHandler
	JobHandler     *handlers.JobHandler
}

// New initializes the application in dependency order: storage first, then
// the pipeline services, then the handlers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	sources, err := models.LoadSources(config.Sources.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	fallbackWriter, err := fallback.NewWriter(config.Fallback.Dir, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize fallback writer: %w", err)
	}

	scraperService := scraper.NewService(config, sources, storageManager, fallbackWriter, logger)
	schedulerService := scheduler.NewService(&config.Scheduler, scraperService, logger)

	app := &App{
		Config:         config,
		Logger:         logger,
		Sources:        sources,
		StorageManager: storageManager,
		FallbackWriter: fallbackWriter,
		ScraperService: scraperService,
		Scheduler:      schedulerService,
		APIHandler:     handlers.NewAPIHandler(),
		ScraperHandler: handlers.NewScraperHandler(scraperService, storageManager.BatchStorage()),
		JobHandler:     handlers.NewJobHandler(storageManager.JobStorage()),
	}

	if err := schedulerService.Start(); err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Int("sources", len(sources)).
		Str("db_path", config.Storage.Badger.Path).
		Str("fallback_dir", config.Fallback.Dir).
		Msg("Application initialized")

	return app, nil
}

// Close shuts the application down: stop the scheduler, request a stop of
// any active run and wait for it, then close storage.
func (a *App) Close() {
	a.Scheduler.Stop()

	if a.ScraperService.StopRun() {
		a.Logger.Info().Msg("Waiting for active run to stop")
		a.ScraperService.Wait()
	}

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
	}

	a.Logger.Info().Msg("Application closed")
}
