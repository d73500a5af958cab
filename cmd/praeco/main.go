package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
	"github.com/ternarybob/praeco/internal/services/acquirer"
	"github.com/ternarybob/praeco/internal/services/converter"
	"github.com/ternarybob/praeco/internal/services/enrichment"
	"github.com/ternarybob/praeco/internal/services/market"
	"github.com/ternarybob/praeco/internal/services/pipeline"
	"github.com/ternarybob/praeco/internal/services/scanner"
	"github.com/ternarybob/praeco/internal/services/scheduler"
	badgerstore "github.com/ternarybob/praeco/internal/storage/badger"
	"github.com/ternarybob/praeco/internal/storage/objectstore"
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
	runOnce      = flag.Bool("once", false, "Run the pipeline once and exit")
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
		fmt.Printf("Praeco version %s\n", common.GetVersion())
		os.Exit(0)
	}

	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Initialize logger
	// 3. Print banner

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("praeco.toml"); err == nil {
			configFiles = append(configFiles, "praeco.toml")
		} else if _, err := os.Stat("deployments/local/praeco.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/praeco.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("objects_type", config.Storage.Objects.Type).
		Str("enrichment_provider", string(config.Enrichment.Provider)).
		Str("scheduler_mode", string(config.Scheduler.Mode)).
		Msg("Configuration loaded")

	ctx := context.Background()

	// Storage
	db, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	repo := badgerstore.NewRepository(db, logger)
	defer repo.Close()

	store, err := objectstore.New(ctx, &config.Storage.Objects, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize object store")
	}

	// Pipeline stages
	fetcher, err := acquirer.NewChromeFetcher(&config.Acquirer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start browser")
	}
	defer fetcher.Close()

	completer, err := enrichment.NewCompleter(ctx, &config.Enrichment, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize enrichment provider")
	}

	scanSvc := scanner.NewService(&config.Scanner, logger)
	acquireSvc := acquirer.NewService(&config.Acquirer, fetcher, store, logger)
	convertSvc := converter.NewService(logger)
	enrichSvc := enrichment.NewService(&config.Enrichment, completer, logger)
	marketSvc := market.NewService(&config.Market, market.NewEODHDProvider(&config.Market, logger), logger)

	orchestrator := pipeline.NewOrchestrator(
		&config.Pipeline,
		scanSvc,
		acquireSvc,
		convertSvc,
		enrichSvc,
		marketSvc,
		store,
		repo,
		logger,
	)

	if *runOnce {
		stats, err := orchestrator.Run(ctx, models.TriggerManual)
		if err != nil {
			logger.Fatal().Err(err).Msg("Pipeline run failed")
		}
		logger.Info().
			Int("seen", stats.Seen).
			Int("acquired", stats.Acquired).
			Int("enriched", stats.Enriched).
			Int("failed", stats.Failed).
			Msg("Pipeline run complete")
		return
	}

	sched, err := scheduler.NewService(&config.Scheduler, orchestrator, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	if config.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	} else {
		logger.Info().Msg("Scheduler disabled, waiting for manual triggers")
	}

	logger.Info().Msg("Praeco ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")

	if err := sched.Stop(); err != nil {
		logger.Error().Err(err).Msg("Scheduler shutdown failed")
	}

	logger.Info().Msg("Praeco stopped")
}
