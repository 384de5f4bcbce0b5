// Package app builds the long-lived service graph from configuration and
// owns its shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/api"
	"github.com/JakeFAU/research-infograph/internal/cache"
	"github.com/JakeFAU/research-infograph/internal/clock/system"
	"github.com/JakeFAU/research-infograph/internal/config"
	"github.com/JakeFAU/research-infograph/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/research-infograph/internal/fetcher/colly"
	"github.com/JakeFAU/research-infograph/internal/id/uuid"
	"github.com/JakeFAU/research-infograph/internal/ingest"
	"github.com/JakeFAU/research-infograph/internal/logging"
	"github.com/JakeFAU/research-infograph/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/research-infograph/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/research-infograph/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/research-infograph/internal/queue/memory"
	"github.com/JakeFAU/research-infograph/internal/render"
	"github.com/JakeFAU/research-infograph/internal/research"
	"github.com/JakeFAU/research-infograph/internal/search"
	"github.com/JakeFAU/research-infograph/internal/storage/gcs"
	"github.com/JakeFAU/research-infograph/internal/storage/local"
	"github.com/JakeFAU/research-infograph/internal/storage/memory"
	"github.com/JakeFAU/research-infograph/internal/storage/postgres"
	"github.com/JakeFAU/research-infograph/internal/storage/sqlite"
	"github.com/JakeFAU/research-infograph/internal/summarize"
	"github.com/JakeFAU/research-infograph/internal/worker"
)

// App holds every shared service. Build it once with New and release it with
// Close.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Clock      research.Clock
	Sessions   research.SessionStore
	Jobs       *memory.JobStore
	Queue      *queueMemory.Queue
	Dispatcher *dispatcher.Dispatcher
	Runner     *research.Runner
	Search     *search.Client
	Ingest     *ingest.Pipeline
	Media      research.MediaStore
	Publisher  research.Publisher

	// mediaDir is set for the local backend so the API can serve it.
	mediaDir string
	closers  []closer
}

type closer struct {
	name string
	fn   func() error
}

// New wires the service graph described by cfg. On error every resource
// opened so far is released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{Config: cfg, Logger: logger, Clock: system.New()}
	defer func() {
		if err != nil {
			if cerr := a.Close(); cerr != nil {
				logger.Warn("partial shutdown failed", zap.Error(cerr))
			}
			a = nil
		}
	}()

	if err := a.buildPipeline(); err != nil {
		return a, err
	}
	if err := a.buildMedia(ctx); err != nil {
		return a, err
	}
	if err := a.buildSessions(ctx); err != nil {
		return a, err
	}
	if err := a.buildPublisher(ctx); err != nil {
		return a, err
	}

	a.Runner = research.NewRunner(
		a.Sessions,
		a.Search,
		a.Ingest,
		render.New(),
		a.Media,
		a.Clock,
		research.RunnerConfig{
			SearchMaxResults:      cfg.Search.MaxResults,
			MaxSourcesPerSession:  cfg.Ingest.MaxSourcesPerSession,
			MaxFailuresPerSession: cfg.Ingest.MaxFailuresPerSession,
		},
		logging.Component(logger, "runner"),
	)

	a.Jobs = memory.NewJobStore(a.Clock)
	a.Queue = queueMemory.NewQueue(cfg.Queue.Depth)
	a.closers = append(a.closers, closer{name: "queue", fn: func() error {
		a.Queue.Close()
		return nil
	}})

	workers := make([]*worker.Worker, 0, cfg.Queue.Workers)
	for i := 0; i < cfg.Queue.Workers; i++ {
		workers = append(workers, worker.New(
			a.Queue,
			a.Jobs,
			a.Runner,
			a.Publisher,
			worker.Config{Topic: cfg.PubSub.TopicName},
			logging.Component(logger, "worker").With(zap.Int("index", i)),
		))
	}
	a.Dispatcher = dispatcher.New(a.Queue, a.Jobs, uuid.New(), a.Clock, workers, logging.Component(logger, "dispatcher"))

	logger.Info("application services initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("db_driver", cfg.DB.Driver),
		zap.Int("workers", cfg.Queue.Workers),
		zap.Bool("publishing", cfg.PubSub.TopicName != ""),
	)
	return a, nil
}

func (a *App) buildPipeline() error {
	cfg := a.Config
	searchTTL, fetchTTL := cfg.CacheTTL()

	searchCache, err := cache.New[[]research.SearchResult](searchTTL, cfg.Search.CacheMaxItems, a.Clock)
	if err != nil {
		return fmt.Errorf("init search cache: %w", err)
	}
	fetchCache, err := cache.New[research.FetchedSource](fetchTTL, cfg.Fetch.CacheMaxItems, a.Clock)
	if err != nil {
		return fmt.Errorf("init fetch cache: %w", err)
	}
	searchLimiter, err := ratelimit.NewTokenBucket("search", cfg.Search.RatePerMinute, a.Clock)
	if err != nil {
		return fmt.Errorf("init search limiter: %w", err)
	}
	fetchLimiter, err := ratelimit.NewTokenBucket("fetch", cfg.Fetch.RatePerMinute, a.Clock)
	if err != nil {
		return fmt.Errorf("init fetch limiter: %w", err)
	}

	a.Search = search.NewClient(search.Config{
		Endpoint: cfg.Search.Endpoint,
		Client: collyfetcher.ClientConfig{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.SearchTimeout(),
		},
	}, searchCache, searchLimiter, logging.Component(a.Logger, "search"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		Client: collyfetcher.ClientConfig{
			UserAgent:     cfg.Fetch.UserAgent,
			RespectRobots: cfg.Fetch.RespectRobots,
			Timeout:       cfg.FetchTimeout(),
		},
		MinTextLength: cfg.Fetch.MinTextLength,
		MaxTextLength: cfg.Fetch.MaxTextLength,
	}, fetchCache, fetchLimiter, a.Clock, logging.Component(a.Logger, "fetcher"))

	summarizer := summarize.New(cfg.Summarizer.MaxChars, cfg.Summarizer.MaxPoints)
	a.Ingest = ingest.New(fetcher, summarizer, cfg.Ingest.MaxSourceCharsForSummarization)
	return nil
}

func (a *App) buildMedia(ctx context.Context) error {
	cfg := a.Config.Storage
	switch cfg.Backend {
	case config.StorageLocal:
		store, err := local.New(local.Config{MediaRoot: cfg.MediaRoot, BaseURL: cfg.MediaBaseURL})
		if err != nil {
			return fmt.Errorf("init local media store: %w", err)
		}
		a.Media = store
		a.mediaDir = store.Root()
	case config.StorageGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs client", fn: client.Close})
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, BaseURL: cfg.GCSBaseURL})
		if err != nil {
			return fmt.Errorf("init gcs media store: %w", err)
		}
		a.Media = store
	case config.StorageMemory:
		a.Media = memory.NewMediaStore(cfg.MediaBaseURL)
	default:
		return &research.ConfigError{Field: "storage.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
	return nil
}

func (a *App) buildSessions(ctx context.Context) error {
	cfg := a.Config.DB
	logger := logging.Component(a.Logger, "sessions")
	switch cfg.Driver {
	case config.DriverMemory:
		a.Sessions = memory.NewSessionStore(a.Clock)
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, a.Clock, logger)
		if err != nil {
			return fmt.Errorf("init sqlite session store: %w", err)
		}
		a.closers = append(a.closers, closer{name: "sqlite", fn: store.Close})
		a.Sessions = store
	case config.DriverPostgres:
		store, err := postgres.NewSessionStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: int32(cfg.MaxConns), //nolint:gosec // bounded by operator config
		}, a.Clock, logger)
		if err != nil {
			return fmt.Errorf("init postgres session store: %w", err)
		}
		a.closers = append(a.closers, closer{name: "postgres", fn: func() error {
			store.Close()
			return nil
		}})
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		a.Sessions = store
	default:
		return &research.ConfigError{Field: "db.driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Driver)}
	}
	return nil
}

func (a *App) buildPublisher(ctx context.Context) error {
	cfg := a.Config.PubSub
	if cfg.TopicName == "" || cfg.ProjectID == "" {
		a.Publisher = memorypublisher.New()
		return nil
	}
	pub, err := pubsubpublisher.NewFromProject(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, closer{name: "pubsub", fn: pub.Close})
	a.Publisher = pub
	return nil
}

// APIServer builds the HTTP API on top of the wired services.
func (a *App) APIServer() *api.Server {
	deps := api.Deps{
		Sessions:     a.Sessions,
		Jobs:         a.Dispatcher,
		Searcher:     a.Search,
		Ingester:     a.Ingest,
		Infographics: a.Runner,
		Clock:        a.Clock,
		MediaDir:     a.mediaDir,
	}
	if reader, ok := a.Media.(api.MediaReader); ok {
		deps.Media = reader
	}
	return api.NewServer(deps, a.Config, logging.Component(a.Logger, "api"))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
