// Package app initializes and holds long-lived harvester services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/authors"
	"github.com/JakeFAU/paper-harvester/internal/classify"
	"github.com/JakeFAU/paper-harvester/internal/clock/system"
	"github.com/JakeFAU/paper-harvester/internal/config"
	"github.com/JakeFAU/paper-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/paper-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/id/uuid"
	"github.com/JakeFAU/paper-harvester/internal/listing"
	"github.com/JakeFAU/paper-harvester/internal/metrics"
	"github.com/JakeFAU/paper-harvester/internal/pdf"
	"github.com/JakeFAU/paper-harvester/internal/policy/limiter"
	"github.com/JakeFAU/paper-harvester/internal/policy/retry"
	pubsubpublisher "github.com/JakeFAU/paper-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/paper-harvester/internal/sink"
	"github.com/JakeFAU/paper-harvester/internal/site"
	csvstore "github.com/JakeFAU/paper-harvester/internal/storage/csv"
	"github.com/JakeFAU/paper-harvester/internal/storage/gcs"
	"github.com/JakeFAU/paper-harvester/internal/storage/local"
	"github.com/JakeFAU/paper-harvester/internal/storage/postgres"
)

// App holds the shared, long-lived services. Everything that belongs to a
// single run (sink, CSV writer, orchestrator) is built by RunHarvest.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	gate       *limiter.Limiter
	listing    *listing.Fetcher
	authors    *authors.Resolver
	blobs      *local.BlobStore
	downloader *pdf.Downloader
	extractor  *pdf.TextExtractor
	classifier harvest.Classifier
	clock      *system.Clock
	ids        *uuid.Generator

	mirror    *postgres.RecordStore
	publisher *pubsubpublisher.Publisher

	closers []func() error
}

// New builds every long-lived service from cfg. It fails fast when an
// optional backend is configured but cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger, ids: uuid.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.clock, err = system.NewIn(cfg.Harvest.Timezone)
	if err != nil {
		return nil, err
	}

	profile, err := site.Lookup(cfg.Site.Markup)
	if err != nil {
		return nil, err
	}
	urls, err := site.NewURLs(cfg.Site.BaseURL)
	if err != nil {
		return nil, err
	}

	a.gate = limiter.New(limiter.Config{
		MaxConnections:    cfg.HTTP.MaxConnections,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
	})
	policy := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Schedule:    cfg.RetrySchedule(),
	})
	inner := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.Timeout(),
		MaxBodySize:   cfg.HTTP.MaxBodyBytes,
	})
	guarded := fetcher.NewGuarded(inner, a.gate, policy, logger)

	a.listing = listing.New(guarded, profile.Listing, urls, logger)
	a.authors = authors.New(guarded, profile.Detail, logger)

	a.blobs, err = local.New(local.Config{BaseDir: cfg.Harvest.OutputDir})
	if err != nil {
		return nil, fmt.Errorf("init output dir: %w", err)
	}
	var downloaderOpts []pdf.Option
	if cfg.Storage.GCSBucket != "" {
		mirror, mirrorErr := a.newGCSMirror(ctx)
		if mirrorErr != nil {
			return nil, mirrorErr
		}
		downloaderOpts = append(downloaderOpts, pdf.WithMirror(mirror))
	}
	a.downloader = pdf.NewDownloader(guarded, a.blobs, logger, downloaderOpts...)
	a.extractor = pdf.NewTextExtractor(pdf.DefaultTextLimit, logger)

	if err := a.initClassifier(ctx); err != nil {
		return nil, err
	}
	if cfg.Storage.PostgresDSN != "" {
		if err := a.initPostgres(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.PubSub.TopicName != "" {
		if err := a.initPubSub(ctx); err != nil {
			return nil, err
		}
	}

	logger.Info("harvester services initialized",
		zap.String("site", cfg.Site.BaseURL),
		zap.String("markup", profile.Name),
		zap.String("output_dir", cfg.Harvest.OutputDir),
		zap.Int("max_connections", a.gate.Max()),
		zap.Bool("classifier", cfg.ClassifierEnabled()),
		zap.Bool("gcs_mirror", cfg.Storage.GCSBucket != ""),
		zap.Bool("postgres_mirror", a.mirror != nil),
		zap.Bool("pubsub", a.publisher != nil),
	)
	return a, nil
}

func (a *App) newGCSMirror(ctx context.Context) (*gcs.BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.GCSPrefix})
	if err != nil {
		return nil, fmt.Errorf("init gcs mirror: %w", err)
	}
	return store, nil
}

func (a *App) initClassifier(ctx context.Context) error {
	if !a.cfg.ClassifierEnabled() {
		a.logger.Warn("classifier disabled; papers will be labeled Unknown")
		a.classifier = classify.Disabled{}
		return nil
	}
	gemini, err := classify.NewGemini(ctx, classify.Config{
		APIKey:      a.cfg.Classifier.APIKey,
		Model:       a.cfg.Classifier.Model,
		Temperature: a.cfg.Classifier.Temperature,
		Categories:  a.cfg.Classifier.Categories,
	})
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}
	a.closers = append(a.closers, gemini.Close)
	a.classifier = gemini
	return nil
}

func (a *App) initPostgres(ctx context.Context) error {
	store, err := postgres.NewRecordStore(ctx, postgres.Config{
		DSN:   a.cfg.Storage.PostgresDSN,
		Table: a.cfg.Storage.PostgresTable,
	})
	if err != nil {
		return fmt.Errorf("init postgres mirror: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure postgres schema: %w", err)
	}
	a.mirror = store
	return nil
}

func (a *App) initPubSub(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.publisher = pubsubpublisher.New(client.Publisher(a.cfg.PubSub.TopicName))
	a.closers = append(a.closers, func() error {
		a.publisher.Stop()
		return nil
	})
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Blobs returns the local store holding downloaded PDFs.
func (a *App) Blobs() *local.BlobStore {
	return a.blobs
}

// Catalog returns a reader over the tabular output.
func (a *App) Catalog() *csvstore.Reader {
	return csvstore.NewReader(a.csvPath())
}

func (a *App) csvPath() string {
	return filepath.Join(a.cfg.Harvest.OutputDir, csvstore.FileName)
}

// RunHarvest performs one complete harvest over the configured year range.
// Each call gets a fresh sink and orchestrator, so it can be invoked
// repeatedly by a scheduler.
func (a *App) RunHarvest(ctx context.Context) (summary harvest.Summary, err error) {
	table, err := csvstore.Open(a.csvPath())
	if err != nil {
		return harvest.Summary{}, err
	}
	defer func() {
		if closeErr := table.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close csv: %w", closeErr))
		}
	}()

	stores := []harvest.RecordStore{table}
	if a.mirror != nil {
		stores = append(stores, a.mirror)
	}
	var opts []sink.Option
	if a.publisher != nil {
		opts = append(opts, sink.WithPublisher(a.publisher))
	}
	recordSink := sink.New(sink.Config{
		QueueDepth:    a.cfg.Sink.QueueDepth,
		DeadLetterDir: filepath.Join(a.cfg.Harvest.OutputDir, harvest.DeadLetterDir),
		Topic:         a.cfg.PubSub.TopicName,
	}, stores, a.ids, a.clock, a.logger, opts...)

	orchestrator, err := harvest.New(harvest.Config{
		StartYear:         a.cfg.Harvest.StartYear,
		EndYear:           a.cfg.Harvest.EndYear,
		OutputDir:         a.cfg.Harvest.OutputDir,
		MaxParallelPapers: a.cfg.Harvest.MaxParallelPapers,
	}, harvest.Deps{
		Listing:    a.listing,
		Authors:    a.authors,
		Downloader: a.downloader,
		Extractor:  a.extractor,
		Classifier: a.classifier,
		Sink:       recordSink,
		Clock:      a.clock,
		IDs:        a.ids,
	}, a.logger)
	if err != nil {
		return harvest.Summary{}, fmt.Errorf("build orchestrator: %w", err)
	}
	return orchestrator.Run(ctx)
}

// Close releases every backend client in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
