// Package app initializes and holds the service's long-lived components,
// acting as the dependency injection container for the harvester binary.
package app

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"

	gcpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/api"
	"github.com/signalharvest/harvester/internal/archive"
	"github.com/signalharvest/harvester/internal/classify"
	"github.com/signalharvest/harvester/internal/clock/system"
	"github.com/signalharvest/harvester/internal/config"
	"github.com/signalharvest/harvester/internal/enrich"
	"github.com/signalharvest/harvester/internal/extract"
	collyfetcher "github.com/signalharvest/harvester/internal/fetcher/colly"
	"github.com/signalharvest/harvester/internal/id/uuid"
	"github.com/signalharvest/harvester/internal/metrics"
	"github.com/signalharvest/harvester/internal/orchestrator"
	"github.com/signalharvest/harvester/internal/policy/ratelimit"
	"github.com/signalharvest/harvester/internal/progress"
	"github.com/signalharvest/harvester/internal/publisher"
	pubsubpub "github.com/signalharvest/harvester/internal/publisher/pubsub"
	"github.com/signalharvest/harvester/internal/render"
	"github.com/signalharvest/harvester/internal/scheduler"
	"github.com/signalharvest/harvester/internal/scrape"
	"github.com/signalharvest/harvester/internal/storage/memory"
	"github.com/signalharvest/harvester/internal/storage/postgres"
	"github.com/signalharvest/harvester/internal/structure"
)

// App holds the wired service graph. Built once at startup; Close releases
// every held resource in reverse order.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Orchestrator *orchestrator.Orchestrator
	Broadcaster  *progress.Broadcaster
	Scheduler    *scheduler.Scheduler
	Server       *api.Server

	closers []func()
}

// New builds the full service graph from configuration, failing fast when a
// critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{Config: cfg, Logger: logger}
	clock := system.New()

	store, err := a.buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	blobStore, err := a.buildBlobStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	pub, err := a.buildPublisher(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var classifier scrape.Classifier
	if cfg.Classifier.Endpoint != "" {
		classifier, err = classify.NewClient(classify.Config{
			Endpoint: cfg.Classifier.Endpoint,
			Model:    cfg.Classifier.Model,
			APIKey:   cfg.Classifier.APIKey,
			Timeout:  cfg.ClassifierTimeout(),
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init classifier: %w", err)
		}
	} else {
		logger.Warn("no classifier endpoint configured, structure detection and enrichment degrade to fallbacks")
		classifier = classify.Unavailable{}
	}

	renderer, err := render.NewClient(render.ClientConfig{
		BinPath: cfg.Render.BinPath,
		Timeout: cfg.RenderTimeout(),
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
		DomainRPS:    cfg.RateLimit.DomainRPS,
	})
	ladder := scrape.NewLadder(fetcher, renderer, limiter, logger)

	a.Broadcaster = progress.NewBroadcaster(progress.Config{Logger: logger})
	a.closers = append(a.closers, a.Broadcaster.Close)

	linkPolicy := extract.DefaultLinkPolicy()
	if len(cfg.Scrape.IncludePatterns) > 0 {
		linkPolicy.IncludePatterns = cfg.Scrape.IncludePatterns
	}
	if len(cfg.Scrape.ExcludePatterns) > 0 {
		linkPolicy.ExcludePatterns = cfg.Scrape.ExcludePatterns
	}

	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Store:       store,
		Ladder:      ladder,
		Cache:       structure.NewCache(classifier, clock, logger),
		Enricher:    enrich.NewEnricher(classifier, classify.NewScorer(), logger),
		Archiver:    archive.NewArchiver(blobStore, clock, logger),
		Publisher:   pub,
		Broadcaster: a.Broadcaster,
		Clock:       clock,
		IDs:         uuid.New(),
		Logger:      logger,
	}, orchestrator.Config{
		JobType:              cfg.Scrape.JobType,
		Audience:             cfg.Scrape.Audience,
		SummaryTopic:         cfg.PubSub.TopicName,
		MaxArticlesPerSource: cfg.Scrape.MaxArticlesPerSource,
		LinkPolicy:           linkPolicy,
	})

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(cfg.Scheduler.Cron, a.Orchestrator, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init scheduler: %w", err)
		}
		a.Scheduler = sched
	}

	a.Server = api.NewServer(api.JobControl{
		Start:  a.Orchestrator.StartRun,
		Stop:   a.Orchestrator.StopRun,
		Status: a.Orchestrator.Status,
	}, a.Broadcaster, logger, api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	})

	return a, nil
}

// Close releases held resources in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory store")
		return memory.NewStore(), nil
	}
	store, err := postgres.NewStore(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return archive.NewGCSStore(client, archive.GCSConfig{Bucket: cfg.Archive.GCSBucket})
	case "local":
		return archive.NewLocalStore(archive.LocalConfig{BaseDir: cfg.Archive.BaseDir})
	case "memory":
		return archive.NewMemoryStore(), nil
	default:
		logger.Info("page archival disabled")
		return nil, nil
	}
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (publisher.Publisher, error) {
	if cfg.PubSub.TopicName == "" {
		logger.Info("run summary publishing disabled")
		return publisher.Noop{}, nil
	}
	client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return pubsubpub.New(client)
}
