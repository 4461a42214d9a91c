package scheduler

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/pipeline"
)

// The DSS layer occasionally holds the realtime file open for a moment after
// a run finishes, so the post-archive delete retries briefly.
const (
	deleteRetries    = 5
	deleteRetryDelay = 100 * time.Millisecond
)

// PipelineTrigger starts a full pipeline run in the background.
type PipelineTrigger interface {
	TriggerFull(trigger string) (string, error)
}

// Scheduler drives the hourly cycle: archive the previous realtime series,
// then kick off a full pipeline run.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	trigger    PipelineTrigger
	minute     int
	realtime   string
	archiveDir string

	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Scheduler that fires at the configured minute of every hour.
func New(cfg *config.Config, trigger PipelineTrigger, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		trigger:    trigger,
		minute:     cfg.Scheduler.Minute,
		realtime:   filepath.Join(cfg.Paths.DSSDir, cfg.Import.RealtimeDSS),
		archiveDir: cfg.Paths.ArchiveDir,
		metrics:    metrics,
		logger:     logger,
	}
}

// Start schedules the hourly job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	expr := fmt.Sprintf("%d * * * *", s.minute)
	if _, err := s.scheduler.Cron(expr).Do(s.runCycle); err != nil {
		return fmt.Errorf("schedule hourly cycle: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "cron", expr)
	return nil
}

// Stop stops the scheduler and cancels any future jobs. A pipeline run
// already in flight is not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// runCycle archives the previous hour's realtime series and triggers a full
// run. A run still in flight from the previous hour is left alone.
func (s *Scheduler) runCycle() {
	s.metrics.SchedulerRuns.Inc()

	if err := s.ArchiveRealtime(); err != nil {
		s.logger.Error("archive realtime series failed", "error", err)
	}

	runID, err := s.trigger.TriggerFull(pipeline.TriggerScheduler)
	if err != nil {
		s.logger.Warn("scheduled pipeline run not started", "error", err)
		return
	}
	s.logger.Info("scheduled pipeline run started", "run_id", runID)
}

// ArchiveRealtime moves the live realtime series into the archive directory
// under an hour-stamped name, so each day keeps at most 24 snapshots. A
// missing live file is not an error; the first cycle after a wipe has
// nothing to archive.
func (s *Scheduler) ArchiveRealtime() error {
	if _, err := os.Stat(s.realtime); err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no realtime series to archive", "path", s.realtime)
			return nil
		}
		return err
	}

	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(s.realtime), filepath.Ext(s.realtime))
	dest := filepath.Join(s.archiveDir, fmt.Sprintf("%s_%02d.dss", base, domain.Now().Hour()))

	if err := copyFile(s.realtime, dest); err != nil {
		return fmt.Errorf("archive copy: %w", err)
	}
	if err := removeWithRetry(s.realtime, deleteRetries, deleteRetryDelay); err != nil {
		return fmt.Errorf("remove archived original: %w", err)
	}

	s.logger.Info("realtime series archived", "destination", dest)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func removeWithRetry(path string, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = os.Remove(path); err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return err
}
