// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/clock/system"
	"github.com/JakeFAU/pet-listings-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/pet-listings-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/pet-listings-scraper/internal/hash/sha256"
	"github.com/JakeFAU/pet-listings-scraper/internal/id/uuid"
	"github.com/JakeFAU/pet-listings-scraper/internal/ingest"
	"github.com/JakeFAU/pet-listings-scraper/internal/nlfilter"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
	pubsubpublisher "github.com/JakeFAU/pet-listings-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/pet-listings-scraper/internal/scraper"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/gcs"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/local"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/memory"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/mongo"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/postgres"
)

// App holds the shared, long-lived services built from one Config.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     pet.Store
	scraper   *scraper.Scraper
	ingest    *ingest.Service
	extractor *nlfilter.Extractor

	closers []func(context.Context) error
}

// Config returns the configuration the services were built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured record store.
func (a *App) Store() pet.Store { return a.store }

// Scraper returns the crawler bound to the colly fetcher.
func (a *App) Scraper() *scraper.Scraper { return a.scraper }

// Ingest returns the refresh pipeline.
func (a *App) Ingest() *ingest.Service { return a.ingest }

// Extractor returns the natural-language filter client.
func (a *App) Extractor() *nlfilter.Extractor { return a.extractor }

// New builds every service named by cfg. It fails fast when a configured
// backend cannot be reached; services already opened are closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.Background()); cerr != nil {
				logger.Warn("cleanup after failed init", zap.Error(cerr))
			}
		}
	}()

	logger.Info("initializing application services",
		zap.String("store", cfg.Store.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
		zap.String("cache", cfg.Cache.Provider),
	)

	if a.store, err = a.buildStore(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	opts, err := a.buildIngestOptions(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := collyfetcher.New(cfg.FetcherSettings())
	a.scraper = scraper.New(fetcher, cfg.ScraperSettings(), logger.Named("scraper"))
	a.ingest = ingest.New(
		a.scraper,
		a.store,
		system.New(),
		ingest.Config{ArchivePrefix: cfg.Archive.Prefix, Topic: cfg.PubSub.TopicName},
		logger.Named("ingest"),
		opts...,
	)
	a.extractor = nlfilter.New(cfg.GeminiSettings(), a.buildCache(), logger.Named("nlfilter"))
	return a, nil
}

func (a *App) buildStore(ctx context.Context) (pet.Store, error) {
	switch a.cfg.Store.Provider {
	case config.StoreMemory, "":
		a.logger.Info("using in-memory store; records are lost on restart")
		return memory.NewPetStore(uuid.New()), nil
	case config.StoreMongo:
		a.logger.Info("connecting to MongoDB", zap.String("database", a.cfg.Store.Mongo.Database))
		store, err := mongo.New(ctx, a.cfg.MongoSettings())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mongo store: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		a.logger.Info("connecting to PostgreSQL", zap.String("table", a.cfg.Store.Postgres.Table))
		store, err := postgres.NewPetStore(ctx, a.cfg.PostgresSettings())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
}

func (a *App) buildIngestOptions(ctx context.Context) ([]ingest.Option, error) {
	var opts []ingest.Option

	switch a.cfg.Archive.Provider {
	case config.ArchiveNone, "":
	case config.ArchiveLocal:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local archive: %w", err)
		}
		opts = append(opts, ingest.WithArchive(blobs, sha256.New()))
	case config.ArchiveGCS:
		blobs, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Archive.GCSBucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs archive: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return blobs.Close() })
		opts = append(opts, ingest.WithArchive(blobs, sha256.New()))
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}

	if a.cfg.PubSub.Enabled {
		a.logger.Info("connecting to GCP Pub/Sub", zap.String("topic", a.cfg.PubSub.TopicName))
		pub, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		opts = append(opts, ingest.WithPublisher(pub))
	}
	return opts, nil
}

func (a *App) buildCache() nlfilter.Cache {
	switch a.cfg.Cache.Provider {
	case config.CacheMemory:
		return nlfilter.NewMemoryCache(a.cfg.CacheTTL())
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.Addr,
			Password: a.cfg.Cache.Password,
			DB:       a.cfg.Cache.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return nlfilter.NewRedisCache(client, a.cfg.CacheTTL())
	default:
		return nil
	}
}

// Close releases every opened backend in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close services: %w", errors.Join(errs...))
	}
	return nil
}
