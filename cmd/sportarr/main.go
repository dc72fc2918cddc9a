package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sportarr/sportarr/internal/api"
	"github.com/sportarr/sportarr/internal/autosearch"
	"github.com/sportarr/sportarr/internal/config"
	"github.com/sportarr/sportarr/internal/customformat"
	"github.com/sportarr/sportarr/internal/database"
	"github.com/sportarr/sportarr/internal/decisioning"
	"github.com/sportarr/sportarr/internal/downloader"
	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/importer"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/indexer/search"
	"github.com/sportarr/sportarr/internal/library"
	"github.com/sportarr/sportarr/internal/logger"
	"github.com/sportarr/sportarr/internal/notification"
	"github.com/sportarr/sportarr/internal/quality"
	"github.com/sportarr/sportarr/internal/scheduler"
	"github.com/sportarr/sportarr/internal/scheduler/tasks"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().
		Str("version", api.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("Starting Sportarr")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	conn := db.Conn()
	ctx := context.Background()

	// Core services
	libraryService := library.NewService(conn, log.Logger)
	profileService := quality.NewService(conn, log.Logger)
	historyService := history.NewService(conn, log.Logger)
	notificationService := notification.NewService(conn, log.Logger)

	formatCache := customformat.NewCache(customformat.CacheOptions{
		MaxEntries: cfg.Cache.MaxEntries,
		MaxAge:     cfg.Cache.MaxAge,
	})
	formatService := customformat.NewService(conn, formatCache, log.Logger)

	indexerService := indexer.NewService(conn, log.Logger)
	aggregator := search.NewAggregator(indexerService, search.Options{
		IndexerTimeout:   cfg.Search.IndexerTimeout,
		AggregateTimeout: cfg.Search.AggregateTimeout,
		PerIndexerLimit:  cfg.Search.PerIndexerLimit,
	}, log.Logger)

	selector := decisioning.NewSelector(formatService, log.Logger)
	downloaderService := downloader.NewService(conn, log.Logger)

	autoSearch := autosearch.NewService(conn, libraryService, profileService,
		aggregator, selector, downloaderService, historyService,
		autosearch.Options{
			Workers:     cfg.AutoSearch.Workers,
			BackoffBase: cfg.AutoSearch.BackoffBase,
			BackoffMax:  cfg.AutoSearch.BackoffMax,
		}, log.Logger)

	importService := importer.NewService(libraryService, historyService, importer.Options{
		NamingTemplate:  cfg.Import.NamingTemplate,
		MinFreeSpaceMB:  cfg.Import.MinFreeSpaceMB,
		SkipFreeSpace:   cfg.Import.SkipFreeSpace,
		DeleteAfterMove: cfg.Import.DeleteAfterMove,
	}, log.Logger)
	poller := downloader.NewCompletionPoller(downloaderService, historyService,
		importService, cfg.AutoSearch.CompletionLimit, log.Logger)

	autoSearch.SetNotifier(notificationService)
	importService.SetNotifier(notificationService)
	poller.SetNotifier(notificationService)

	// Seed data
	if err := profileService.EnsureDefaults(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed quality profiles")
	}
	if cfg.Import.FormatRulesPath != "" {
		if err := formatService.SeedFromFile(ctx, cfg.Import.FormatRulesPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.Import.FormatRulesPath).Msg("Failed to seed custom formats")
		}
	}

	// Background tasks
	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if err := tasks.RegisterMonitoredSearch(sched, autoSearch, cfg.AutoSearch); err != nil {
		log.Fatal().Err(err).Msg("Failed to register monitored search task")
	}
	if err := tasks.RegisterCompletionPoll(sched, poller, cfg.AutoSearch); err != nil {
		log.Fatal().Err(err).Msg("Failed to register completion poll task")
	}
	if err := tasks.RegisterCacheSweep(sched, formatCache, cfg.Cache); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache sweep task")
	}
	sched.Start()

	server := api.NewServer(api.Deps{
		Config:        cfg,
		Library:       libraryService,
		Profiles:      profileService,
		Formats:       formatService,
		Indexers:      indexerService,
		Search:        aggregator,
		AutoSearch:    autoSearch,
		Downloader:    downloaderService,
		History:       historyService,
		Importer:      importService,
		Notifications: notificationService,
		Scheduler:     sched,
	}, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown error")
	}
	log.Info().Msg("Sportarr stopped")
}
