package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

// GridFetcher downloads observed precipitation grids into dated folders.
type GridFetcher interface {
	FetchRealtime(ctx context.Context) (domain.FetchStats, error)
	FetchArchive(ctx context.Context, dates []string) (domain.FetchStats, error)
}

// ForecastFetcher downloads the newest published forecast cycle.
type ForecastFetcher interface {
	FetchLatest(ctx context.Context) (domain.FetchStats, error)
}

// GridImporter merges grib folders into DSS grid files.
type GridImporter interface {
	ImportQPE(ctx context.Context, folders []string, destination string) error
	ImportHRRR(ctx context.Context, folders []string, destination string) error
	DSSPath(name string) string
}

// SeriesCombiner folds several DSS files into one destination file.
type SeriesCombiner interface {
	Combine(ctx context.Context, sources []string, destination string) error
}

// ControlUpdater rewrites the simulation window in the model control file.
type ControlUpdater interface {
	Update() (domain.RunWindow, error)
}

// ModelRunner computes every simulation run in the model directory.
type ModelRunner interface {
	RunModel(ctx context.Context) (domain.ComputeSummary, error)
}

// EventPublisher emits stage results for downstream consumers.
type EventPublisher interface {
	PublishStage(ctx context.Context, event domain.PipelineEvent) error
}

// Pipeline orchestrates the download, merge, combine, and compute stages. Each
// stage is also exposed on its own so operators can replay a single step.
type Pipeline struct {
	qpe       GridFetcher
	forecast  ForecastFetcher
	importer  GridImporter
	combiner  SeriesCombiner
	control   ControlUpdater
	model     ModelRunner
	publisher EventPublisher

	gribRoot    string
	hrrrRoot    string
	names       config.ImportConfig
	runTimeout  time.Duration
	stageDelay  time.Duration
	settleDelay time.Duration
	checkPaths  []string

	logger  *slog.Logger
	metrics *observability.Metrics

	running atomic.Bool

	mu         sync.Mutex
	lastReport *domain.RunReport
}

// New creates a Pipeline with the given stages and observability. The
// publisher may be nil, in which case stage events are not emitted.
func New(cfg *config.Config, qpe GridFetcher, forecast ForecastFetcher, importer GridImporter, combiner SeriesCombiner, control ControlUpdater, model ModelRunner, publisher EventPublisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		qpe:         qpe,
		forecast:    forecast,
		importer:    importer,
		combiner:    combiner,
		control:     control,
		model:       model,
		publisher:   publisher,
		gribRoot:    cfg.Paths.GribRoot,
		hrrrRoot:    cfg.Paths.HRRRRoot,
		names:       cfg.Import,
		runTimeout:  cfg.Pipeline.RunTimeout,
		stageDelay:  cfg.Pipeline.StageDelay,
		settleDelay: cfg.Pipeline.SettleDelay,
		checkPaths: []string{
			cfg.Paths.GribRoot,
			cfg.Paths.HRRRRoot,
			cfg.Paths.DSSDir,
			cfg.Paths.HMSDir,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil when every directory the pipeline works in is
// reachable. An unmounted data volume should flip readiness before the next
// cycle fires, not fail it halfway through.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	for _, path := range p.checkPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("required path %s: %w", path, err)
		}
	}
	return nil
}

// DownloadQPE fetches observed precipitation grids. With no dates it walks
// the realtime index and keeps the trailing window; with dates it pulls those
// days from the archive.
func (p *Pipeline) DownloadQPE(ctx context.Context, dates []string) (domain.FetchStats, error) {
	if len(dates) == 0 {
		return p.qpe.FetchRealtime(ctx)
	}
	return p.qpe.FetchArchive(ctx, dates)
}

// DownloadForecast fetches the newest complete forecast cycle.
func (p *Pipeline) DownloadForecast(ctx context.Context) (domain.FetchStats, error) {
	return p.forecast.FetchLatest(ctx)
}

// MergeRealtime imports the hourly observed grids for the given run dates
// into the realtime series file. The returned resolutions let callers report
// dates that found no input folder.
func (p *Pipeline) MergeRealtime(ctx context.Context, dates []string) ([]domain.FolderResolution, error) {
	folders, results, err := p.resolveFolders(p.gribRoot, defaultDates(dates))
	if err != nil {
		return nil, err
	}
	return results, p.importer.ImportQPE(ctx, folders, p.names.RealtimeDSS)
}

// MergePass2 imports the same observed grids into the pass-2 series file,
// kept separate so late gauge corrections can be folded in on their own.
func (p *Pipeline) MergePass2(ctx context.Context, dates []string) ([]domain.FolderResolution, error) {
	folders, results, err := p.resolveFolders(p.gribRoot, defaultDates(dates))
	if err != nil {
		return nil, err
	}
	return results, p.importer.ImportQPE(ctx, folders, p.names.Pass2DSS)
}

// MergeForecast imports the downloaded forecast grids for the given run dates
// into the forecast series file.
func (p *Pipeline) MergeForecast(ctx context.Context, dates []string) ([]domain.FolderResolution, error) {
	folders, results, err := p.resolveFolders(p.hrrrRoot, defaultDates(dates))
	if err != nil {
		return nil, err
	}
	return results, p.importer.ImportHRRR(ctx, folders, p.names.HRRRDSS)
}

// CombinePrimary folds the realtime and pass-2 series into the combined
// observed file.
func (p *Pipeline) CombinePrimary(ctx context.Context) error {
	sources := []string{
		p.importer.DSSPath(p.names.RealtimeDSS),
		p.importer.DSSPath(p.names.Pass2DSS),
	}
	return p.combiner.Combine(ctx, sources, p.importer.DSSPath(p.names.CombinedDSS))
}

// CombineSecondary folds the combined observed series and the forecast series
// into the file the model actually reads.
func (p *Pipeline) CombineSecondary(ctx context.Context) error {
	sources := []string{
		p.importer.DSSPath(p.names.CombinedDSS),
		p.importer.DSSPath(p.names.HRRRDSS),
	}
	return p.combiner.Combine(ctx, sources, p.importer.DSSPath(p.names.ForecastDSS))
}

// CombineAll runs both combinations. The secondary combination is attempted
// even when the primary fails, so callers can tell a total outage from a
// forecast-only one.
func (p *Pipeline) CombineAll(ctx context.Context) (primaryErr, secondaryErr error) {
	primaryErr = p.CombinePrimary(ctx)
	if primaryErr != nil {
		p.logger.Error("primary combination failed", "error", primaryErr)
	}
	secondaryErr = p.CombineSecondary(ctx)
	if secondaryErr != nil {
		p.logger.Error("secondary combination failed", "error", secondaryErr)
	}
	return primaryErr, secondaryErr
}

// UpdateControl recomputes the simulation window from the clock and patches
// it into the model control file.
func (p *Pipeline) UpdateControl() (domain.RunWindow, error) {
	return p.control.Update()
}

// RunModel computes every simulation run in the model directory.
func (p *Pipeline) RunModel(ctx context.Context) (domain.ComputeSummary, error) {
	return p.model.RunModel(ctx)
}

// resolveFolders maps run dates onto the dated folders that exist under root
// and returns their absolute paths alongside the per-date resolutions.
func (p *Pipeline) resolveFolders(root string, dates []string) ([]string, []domain.FolderResolution, error) {
	results, err := domain.ResolveInputFolders(os.DirFS(root), dates, p.logger)
	if err != nil {
		return nil, nil, err
	}
	var folders []string
	for _, name := range domain.ResolvedFolders(results) {
		folders = append(folders, filepath.Join(root, name))
	}
	return folders, results, nil
}

// defaultDates fills an empty date list with today. Earlier days are already
// in the series files from previous cycles; callers pass dates explicitly to
// reprocess them.
func defaultDates(dates []string) []string {
	if len(dates) > 0 {
		return dates
	}
	return []string{domain.Today()}
}

// sleepWithContext waits for d, returning false if the context is cancelled
// first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
