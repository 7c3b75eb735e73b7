package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/app"
	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	runOnce      = flag.Bool("run", false, "Run one ingestion pass and exit instead of serving")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("JobHarvest version %s\n", common.GetVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup order: config (defaults -> files -> env -> flags), logger,
	// banner, application, server.
	if len(configFiles) == 0 {
		if _, err := os.Stat("jobharvest.toml"); err == nil {
			configFiles = append(configFiles, "jobharvest.toml")
		} else if _, err := os.Stat("deployments/local/jobharvest.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/jobharvest.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	logger := common.InitLogger(config)

	common.PrintBanner(common.LoadVersionFromFile())

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	if *runOnce {
		runOnceAndExit(application, logger)
		return
	}

	srv := server.New(application)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server error")
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// runOnceAndExit runs a single ingestion pass in the foreground. A signal
// during the run requests a graceful stop.
func runOnceAndExit(application *app.App, logger arbor.ILogger) {
	result := application.ScraperService.StartRun(context.Background(), nil)
	if !result.Accepted {
		logger.Error().Str("reason", result.Reason).Msg("Failed to start run")
		return
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		application.ScraperService.Wait()
		close(done)
	}()

	select {
	case <-quit:
		logger.Info().Msg("Interrupt received, stopping run")
		application.ScraperService.StopRun()
		<-done
	case <-done:
	}

	status := application.ScraperService.Status()
	logger.Info().
		Str("status", string(status.Status)).
		Int("jobs_found", status.JobsFound).
		Int("jobs_added", status.JobsAdded).
		Int("jobs_updated", status.JobsUpdated).
		Int("errors", status.Errors).
		Msg("Run finished")
}
