// Command readmeabook runs the audiobook request server: the HTTP API, the
// acquisition pipeline, and the background schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kikootwo/readmeabook/internal/api"
	"github.com/kikootwo/readmeabook/internal/audiobookshelf"
	"github.com/kikootwo/readmeabook/internal/config"
	"github.com/kikootwo/readmeabook/internal/database"
	"github.com/kikootwo/readmeabook/internal/downloader"
	downloadtypes "github.com/kikootwo/readmeabook/internal/downloader/types"
	"github.com/kikootwo/readmeabook/internal/history"
	"github.com/kikootwo/readmeabook/internal/indexer"
	"github.com/kikootwo/readmeabook/internal/indexer/audiobookbay"
	indexermock "github.com/kikootwo/readmeabook/internal/indexer/mock"
	"github.com/kikootwo/readmeabook/internal/indexer/prowlarr"
	"github.com/kikootwo/readmeabook/internal/logger"
	"github.com/kikootwo/readmeabook/internal/media"
	"github.com/kikootwo/readmeabook/internal/notification"
	"github.com/kikootwo/readmeabook/internal/notification/webhook"
	"github.com/kikootwo/readmeabook/internal/orchestrator"
	"github.com/kikootwo/readmeabook/internal/organizer"
	"github.com/kikootwo/readmeabook/internal/ranking"
	"github.com/kikootwo/readmeabook/internal/request"
	"github.com/kikootwo/readmeabook/internal/scheduler"
	"github.com/kikootwo/readmeabook/internal/scheduler/tasks"
	"github.com/kikootwo/readmeabook/internal/websocket"
)

// prowlarrSource is the registration key for the Prowlarr searcher.
const prowlarrSource = "prowlarr"

// audioBookBayIndexerID is the synthetic indexer ID for the built-in
// AudioBookBay scraper, kept well clear of Prowlarr's ID space.
const audioBookBayIndexerID = 1_000_000

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "readmeabook: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().Str("version", config.Version).Msg("Starting ReadMeABook")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	// Stores.
	mediaStore := media.NewStore(db.Conn(), log.Logger)
	requestStore := request.NewStore(db.Conn())
	historyStore := history.NewStore(db.Conn(), log.Logger)
	jobStore := orchestrator.NewJobStore(db.Conn())

	// Indexer sources.
	aggregator := indexer.NewAggregator(log.Logger)
	indexers := make([]indexer.Indexer, 0, len(cfg.Indexers)+1)
	for _, ic := range cfg.Indexers {
		indexers = append(indexers, indexer.Indexer{
			ID:         ic.ID,
			Name:       ic.Name,
			Source:     ic.Source,
			Priority:   ic.Priority,
			Categories: ic.Categories,
			Enabled:    ic.Enabled,
		})
	}

	if cfg.Prowlarr.URL != "" {
		client, err := prowlarr.NewClient(prowlarr.Config{
			URL:     cfg.Prowlarr.URL,
			APIKey:  cfg.Prowlarr.APIKey,
			Timeout: cfg.Prowlarr.TimeoutSeconds,
		}, log.Logger)
		if err != nil {
			return err
		}
		aggregator.RegisterSource(prowlarrSource, client)
	}

	if cfg.AudioBookBay.Enabled {
		abb := audiobookbay.NewClient(audiobookbay.Config{
			BaseURL:   cfg.AudioBookBay.BaseURL,
			IndexerID: audioBookBayIndexerID,
		}, log.Logger)
		aggregator.RegisterSource(audiobookbay.SourceName, abb)
		indexers = append(indexers, indexer.Indexer{
			ID:       audioBookBayIndexerID,
			Name:     "AudioBookBay",
			Source:   audiobookbay.SourceName,
			Priority: cfg.AudioBookBay.Priority,
			Enabled:  true,
		})
	}

	for _, idx := range indexers {
		if idx.Source == indexermock.SourceName {
			aggregator.RegisterSource(indexermock.SourceName, indexermock.NewBackend())
			break
		}
	}
	aggregator.SetIndexers(indexers)

	// Ranking.
	flagBonuses := make(map[string]float64, len(cfg.Ranking.FlagBonuses))
	for _, fb := range cfg.Ranking.FlagBonuses {
		flagBonuses[fb.Flag] = fb.Points
	}
	engine := ranking.NewEngine(ranking.Config{
		RequireAuthor:         cfg.Ranking.RequireAuthor,
		StopWords:             cfg.Ranking.StopWords,
		CharacterReplacements: cfg.Ranking.CharacterReplacements,
		FlagBonuses:           flagBonuses,
		MinSizeMB:             int(cfg.Ranking.MinSizeMB),
	}, log.Logger)

	// Download client; running without one is allowed, downloads then fail
	// with a clear message instead of at startup.
	var downloadClient downloadtypes.Client
	client, err := downloader.New(downloader.Config{
		Type:        downloadtypes.ClientType(cfg.DownloadClient.Type),
		Host:        cfg.DownloadClient.Host,
		Port:        cfg.DownloadClient.Port,
		Username:    cfg.DownloadClient.Username,
		Password:    cfg.DownloadClient.Password,
		UseSSL:      cfg.DownloadClient.UseSSL,
		APIKey:      cfg.DownloadClient.APIKey,
		Category:    cfg.DownloadClient.Category,
		DownloadDir: cfg.Library.DownloadDir,
	}, log.Logger)
	switch {
	case err == nil:
		downloadClient = client
	case errors.Is(err, downloadtypes.ErrNotConfigured):
		log.Warn().Msg("No download client configured")
	default:
		return err
	}

	// Notifications.
	dispatcher := notification.NewDispatcher(log.Logger)
	if cfg.Notifications.Webhook.URL != "" {
		dispatcher.Register(webhook.New(webhook.Config{
			URL:    cfg.Notifications.Webhook.URL,
			Method: cfg.Notifications.Webhook.Method,
		}, log.Logger))
	}

	// Library integrations.
	org := organizer.New(cfg.Library.Path, log.Logger)
	abs := audiobookshelf.NewClient(audiobookshelf.Config{
		URL:       cfg.Audiobookshelf.URL,
		Token:     cfg.Audiobookshelf.Token,
		LibraryID: cfg.Audiobookshelf.LibraryID,
	}, log.Logger)

	// WebSocket hub.
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	// Orchestrator.
	orch := orchestrator.New(orchestrator.Config{
		Workers:              cfg.Orchestrator.Workers,
		MaxAttempts:          cfg.Orchestrator.MaxAttempts,
		PollInterval:         time.Duration(cfg.Orchestrator.PollIntervalSeconds) * time.Second,
		RetryInitial:         time.Duration(cfg.Orchestrator.RetryInitialSeconds) * time.Second,
		RetryMax:             time.Duration(cfg.Orchestrator.RetryMaxSeconds) * time.Second,
		DownloadPollInterval: time.Duration(cfg.Orchestrator.DownloadPollSeconds) * time.Second,
		DownloadTimeout:      time.Duration(cfg.Orchestrator.DownloadTimeoutMins) * time.Minute,
		AutoGrab:             cfg.Requests.AutoSearch,
	}, orchestrator.Deps{
		DB:         db.Conn(),
		Jobs:       jobStore,
		Requests:   requestStore,
		Media:      mediaStore,
		History:    historyStore,
		Aggregator: aggregator,
		Engine:     engine,
		Organizer:  org,
		Notifier:   dispatcher,
	}, log.Logger)
	orch.SetDownloadClient(downloadClient)
	orch.SetAudiobookshelf(abs)
	orch.SetBroadcaster(hub)

	// Request service.
	requestService := request.NewService(request.Config{
		ApprovalRequired: cfg.Requests.ApprovalRequired,
		AutoSearch:       cfg.Requests.AutoSearch,
		CompanionEbooks:  cfg.Requests.CompanionEbooks,
	}, requestStore, mediaStore, historyStore, log.Logger)
	requestService.SetDecisionApplier(orch)
	requestService.SetBroadcaster(hub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("pipeline recovery failed: %w", err)
	}
	orch.Start(ctx)

	// Background tasks.
	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	for _, task := range []scheduler.TaskConfig{
		tasks.NewRecoveryTask(orch),
		tasks.NewClientHealthTask(downloadClient, aggregator, log.Logger),
		tasks.NewHistoryCleanupTask(historyStore, jobStore, log.Logger),
	} {
		if err := sched.RegisterTask(task); err != nil {
			return err
		}
	}
	sched.Start()

	// HTTP API.
	server := api.NewServer(requestService, sched, hub, config.Version, log.Logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown failed")
	}
	orch.Stop()

	log.Info().Msg("Shutdown complete")
	return nil
}
