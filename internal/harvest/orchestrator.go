package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/paper-harvester/internal/metrics"
)

// DeadLetterDir is created under the output root for records no store accepted.
const DeadLetterDir = "failed_metadata"

// Config controls one harvest run.
type Config struct {
	StartYear int
	EndYear   int
	OutputDir string
	// MaxParallelPapers caps per-year paper goroutines; 0 means unbounded.
	MaxParallelPapers int
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Listing    ListingFetcher
	Authors    AuthorResolver
	Downloader PdfDownloader
	Extractor  TextExtractor
	Classifier Classifier
	Sink       RecordSink
	Clock      Clock
	IDs        IDGenerator
}

// Orchestrator runs the two-level fan-out: one goroutine per year, one per
// paper within a year. No failure below the run level escapes its unit.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	started atomic.Bool

	yearsProcessed   atomic.Int64
	yearsFailed      atomic.Int64
	papersDiscovered atomic.Int64
	papersDownloaded atomic.Int64
	downloadsFailed  atomic.Int64
	recordsEmitted   atomic.Int64
}

// New validates the configuration and builds an Orchestrator. An
// Orchestrator performs a single run.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if cfg.StartYear <= 0 || cfg.EndYear < cfg.StartYear {
		return nil, fmt.Errorf("invalid year range %d-%d", cfg.StartYear, cfg.EndYear)
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}
	switch {
	case deps.Listing == nil:
		return nil, errors.New("listing fetcher is required")
	case deps.Authors == nil:
		return nil, errors.New("author resolver is required")
	case deps.Downloader == nil:
		return nil, errors.New("pdf downloader is required")
	case deps.Extractor == nil:
		return nil, errors.New("text extractor is required")
	case deps.Sink == nil:
		return nil, errors.New("record sink is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger.Named("orchestrator")}, nil
}

// Years returns the inclusive year range of the run.
func (o *Orchestrator) Years() []int {
	years := make([]int, 0, o.cfg.EndYear-o.cfg.StartYear+1)
	for y := o.cfg.StartYear; y <= o.cfg.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// Run harvests every year and returns once all records were persisted. The
// only failures it returns are setup errors and cancellation of ctx.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	if !o.started.CompareAndSwap(false, true) {
		return Summary{}, errors.New("orchestrator already ran")
	}

	summary := Summary{Started: o.deps.Clock.Now()}
	if o.deps.IDs != nil {
		id, err := o.deps.IDs.NewID()
		if err != nil {
			o.logger.Warn("run id generation failed", zap.Error(err))
		}
		summary.RunID = id
	}
	logger := o.logger.With(zap.String("run_id", summary.RunID))

	if err := o.prepareDirs(); err != nil {
		summary.Finished = o.deps.Clock.Now()
		return summary, err
	}

	go o.deps.Sink.Run(ctx)

	logger.Info("harvest started",
		zap.Int("start_year", o.cfg.StartYear),
		zap.Int("end_year", o.cfg.EndYear),
		zap.String("output_dir", o.cfg.OutputDir),
	)

	var years errgroup.Group
	for _, year := range o.Years() {
		years.Go(func() error {
			o.harvestYear(ctx, logger, year)
			return nil
		})
	}
	_ = years.Wait()

	o.deps.Sink.Close()
	o.deps.Sink.Wait()

	summary.Finished = o.deps.Clock.Now()
	summary.YearsProcessed = o.yearsProcessed.Load()
	summary.YearsFailed = o.yearsFailed.Load()
	summary.PapersDiscovered = o.papersDiscovered.Load()
	summary.PapersDownloaded = o.papersDownloaded.Load()
	summary.DownloadsFailed = o.downloadsFailed.Load()
	summary.RecordsEmitted = o.recordsEmitted.Load()
	summary.Sink = o.deps.Sink.Stats()

	logger.Info("harvest finished",
		zap.Int64("years_processed", summary.YearsProcessed),
		zap.Int64("years_failed", summary.YearsFailed),
		zap.Int64("papers_discovered", summary.PapersDiscovered),
		zap.Int64("papers_downloaded", summary.PapersDownloaded),
		zap.Int64("downloads_failed", summary.DownloadsFailed),
		zap.Int64("records_emitted", summary.RecordsEmitted),
		zap.Int64("records_written", summary.Sink.Written),
		zap.Int64("records_failed", summary.Sink.Failed),
		zap.Duration("duration", summary.Duration()),
	)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("harvest interrupted: %w", err)
	}
	return summary, nil
}

func (o *Orchestrator) prepareDirs() error {
	dirs := []string{o.cfg.OutputDir, filepath.Join(o.cfg.OutputDir, DeadLetterDir)}
	for _, year := range o.Years() {
		dirs = append(dirs, filepath.Join(o.cfg.OutputDir, strconv.Itoa(year)))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (o *Orchestrator) harvestYear(ctx context.Context, logger *zap.Logger, year int) {
	logger = logger.With(zap.Int("year", year))

	refs, err := o.deps.Listing.Fetch(ctx, year)
	if err != nil {
		o.yearsFailed.Add(1)
		logger.Warn("listing failed, skipping year",
			zap.Int("status", StatusCode(err)),
			zap.Error(err),
		)
		return
	}
	o.yearsProcessed.Add(1)
	o.papersDiscovered.Add(int64(len(refs)))
	if len(refs) == 0 {
		logger.Info("no papers listed")
		return
	}

	var papers errgroup.Group
	if o.cfg.MaxParallelPapers > 0 {
		papers.SetLimit(o.cfg.MaxParallelPapers)
	}
	for _, ref := range refs {
		papers.Go(func() error {
			o.harvestPaper(ctx, logger, ref)
			return nil
		})
	}
	_ = papers.Wait()
}

func (o *Orchestrator) harvestPaper(ctx context.Context, logger *zap.Logger, ref PaperReference) {
	logger = logger.With(zap.String("title", ref.Title))
	metrics.ObservePaper("discovered")

	authors := o.deps.Authors.Resolve(ctx, ref.DetailURL)

	asset, err := o.deps.Downloader.Download(ctx, ref)
	if err != nil {
		o.downloadsFailed.Add(1)
		metrics.ObservePaper("download_failed")
		logger.Warn("pdf download failed",
			zap.String("url", ref.DetailURL),
			zap.Int("status", StatusCode(err)),
			zap.Error(err),
		)
		return
	}
	o.papersDownloaded.Add(1)
	metrics.ObservePaper("downloaded")

	var (
		text      string
		extracted bool
	)
	textOf := func() string {
		if !extracted {
			text = o.deps.Extractor.Extract(asset.Path)
			extracted = true
		}
		return text
	}

	if authors == UnknownAuthors {
		authors = o.deps.Authors.FromText(textOf())
	}

	category, err := Label(ctx, o.deps.Classifier, textOf())
	if err != nil {
		logger.Warn("classification failed", zap.Error(err))
	}

	record := PaperRecord{
		Year:         ref.Year,
		Title:        ref.Title,
		PDFURL:       asset.URL,
		Authors:      authors,
		DownloadedAt: o.deps.Clock.Now(),
		Category:     category,
	}
	if err := o.deps.Sink.Enqueue(context.WithoutCancel(ctx), record); err != nil {
		metrics.ObservePaper("record_dropped")
		logger.Error("record enqueue failed", zap.Error(err))
		return
	}
	o.recordsEmitted.Add(1)
	metrics.ObservePaper("emitted")
}
