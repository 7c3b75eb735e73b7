package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - run control
	mux.HandleFunc("/api/scrape/start", s.app.ScraperHandler.StartHandler)   // POST
	mux.HandleFunc("/api/scrape/stop", s.app.ScraperHandler.StopHandler)     // POST
	mux.HandleFunc("/api/scrape/status", s.app.ScraperHandler.StatusHandler) // GET

	// API routes - run history
	mux.HandleFunc("/api/batches", s.app.ScraperHandler.ListBatchesHandler)

	// API routes - harvested jobs
	mux.HandleFunc("/api/jobs/count", s.app.JobHandler.CountJobsHandler)
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler) // GET /api/jobs/{id}

	// API routes - system
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Catch-all for unknown API paths
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
