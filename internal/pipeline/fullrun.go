package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
)

// Trigger sources recorded on run reports and published events.
const (
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
)

// ErrRunInProgress is returned when a full run is requested while another one
// is still in flight.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// RunFull executes the whole cycle synchronously and returns its report. Only
// one full run may be in flight at a time.
func (p *Pipeline) RunFull(ctx context.Context, trigger string) (domain.RunReport, error) {
	if !p.running.CompareAndSwap(false, true) {
		return domain.RunReport{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	start := domain.Now()
	return p.run(ctx, trigger, domain.NewRunID(trigger, start), start)
}

// TriggerFull starts a full run in the background and returns its run ID
// immediately. The run is bounded by the configured run timeout. Only one
// full run may be in flight at a time.
func (p *Pipeline) TriggerFull(trigger string) (string, error) {
	if !p.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}

	start := domain.Now()
	runID := domain.NewRunID(trigger, start)
	go func() {
		defer p.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), p.runTimeout)
		defer cancel()

		if _, err := p.run(ctx, trigger, runID, start); err != nil {
			p.logger.Error("pipeline run failed", "run_id", runID, "trigger", trigger, "error", err)
		}
	}()
	return runID, nil
}

// Running reports whether a full run is currently in flight.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// LastReport returns the report of the most recently completed full run.
func (p *Pipeline) LastReport() (domain.RunReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastReport == nil {
		return domain.RunReport{}, false
	}
	return *p.lastReport, true
}

// run executes the stage sequence and records the outcome. Callers hold the
// running flag.
func (p *Pipeline) run(ctx context.Context, trigger, runID string, start time.Time) (domain.RunReport, error) {
	report := domain.RunReport{
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: start,
	}

	p.logger.Info("pipeline run starting", "run_id", runID, "trigger", trigger)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	err := p.runStages(ctx, &report)
	report.CompletedAt = domain.Now()

	outcome := "success"
	switch {
	case err != nil:
		outcome = "failure"
	case report.Partial():
		outcome = "partial"
	}
	p.metrics.PipelineRuns.WithLabelValues(trigger, outcome).Inc()

	p.mu.Lock()
	p.lastReport = &report
	p.mu.Unlock()

	p.logger.Info("pipeline run finished",
		"run_id", runID,
		"outcome", outcome,
		"stages", len(report.Stages),
		"duration", report.CompletedAt.Sub(report.StartedAt),
	)
	return report, err
}

// runStages walks the cycle in order. Download failures are tolerated because
// grids from earlier cycles may already be on disk; everything downstream of
// a failed merge or combination that the model depends on aborts the run.
func (p *Pipeline) runStages(ctx context.Context, report *domain.RunReport) error {
	dates := defaultDates(nil)

	p.runStage(ctx, report, domain.StageDownloadQPE, func(ctx context.Context) error {
		_, err := p.DownloadQPE(ctx, nil)
		return err
	})
	if !sleepWithContext(ctx, p.stageDelay) {
		return ctx.Err()
	}

	forecastFetched := p.runStage(ctx, report, domain.StageDownloadHRRR, func(ctx context.Context) error {
		_, err := p.DownloadForecast(ctx)
		return err
	}) == nil
	if !sleepWithContext(ctx, p.stageDelay) {
		return ctx.Err()
	}

	if err := p.runStage(ctx, report, domain.StageMergeRealtime, func(ctx context.Context) error {
		_, err := p.MergeRealtime(ctx, dates)
		return err
	}); err != nil {
		return err
	}

	// The DSS native layer holds file locks briefly after the interpreter
	// exits; back-to-back imports into sibling files trip over them without
	// a settle pause.
	if !sleepWithContext(ctx, p.settleDelay) {
		return ctx.Err()
	}

	if err := p.runStage(ctx, report, domain.StageMergePass2, func(ctx context.Context) error {
		_, err := p.MergePass2(ctx, dates)
		return err
	}); err != nil {
		return err
	}
	if !sleepWithContext(ctx, p.stageDelay) {
		return ctx.Err()
	}

	forecastMerged := false
	if forecastFetched {
		forecastMerged = p.runStage(ctx, report, domain.StageMergeHRRR, func(ctx context.Context) error {
			_, err := p.MergeForecast(ctx, dates)
			return err
		}) == nil
	} else {
		p.skipStage(ctx, report, domain.StageMergeHRRR, "forecast download failed")
	}
	if !sleepWithContext(ctx, p.stageDelay) {
		return ctx.Err()
	}

	if err := p.runStage(ctx, report, domain.StageCombinePrimary, func(ctx context.Context) error {
		return p.CombinePrimary(ctx)
	}); err != nil {
		return err
	}
	if !sleepWithContext(ctx, p.stageDelay) {
		return ctx.Err()
	}

	// A missing forecast degrades the run instead of killing it: the model
	// still computes over the observed window.
	if forecastMerged {
		p.runStage(ctx, report, domain.StageCombineSecondary, func(ctx context.Context) error {
			return p.CombineSecondary(ctx)
		})
	} else {
		p.skipStage(ctx, report, domain.StageCombineSecondary, "forecast series not refreshed")
	}
	if !sleepWithContext(ctx, p.stageDelay) {
		return ctx.Err()
	}

	if err := p.runStage(ctx, report, domain.StageControlUpdate, func(context.Context) error {
		_, err := p.UpdateControl()
		return err
	}); err != nil {
		return err
	}
	if !sleepWithContext(ctx, p.stageDelay) {
		return ctx.Err()
	}

	return p.runStage(ctx, report, domain.StageModelRun, func(ctx context.Context) error {
		summary, err := p.model.RunModel(ctx)
		if err != nil {
			return err
		}
		report.Compute = &summary
		if !summary.AllSucceeded() {
			return fmt.Errorf("%w: %d of %d runs failed", domain.ErrProcessFailed, summary.Failed, summary.Attempted)
		}
		return nil
	})
}

// runStage executes one stage, records its result on the report, and emits
// metrics and the stage event.
func (p *Pipeline) runStage(ctx context.Context, report *domain.RunReport, stage string, fn func(context.Context) error) error {
	start := domain.Now()
	err := fn(ctx)
	completed := domain.Now()

	result := domain.StageResult{
		Stage:       stage,
		Status:      domain.StageSucceeded,
		StartedAt:   start,
		CompletedAt: completed,
	}
	if err != nil {
		result.Status = domain.StageFailed
		result.Error = err.Error()
	}
	report.Stages = append(report.Stages, result)

	p.metrics.StageDuration.WithLabelValues(stage).Observe(completed.Sub(start).Seconds())
	p.metrics.StageOutcomes.WithLabelValues(stage, string(result.Status)).Inc()
	p.publish(ctx, report, result)

	if err != nil {
		p.logger.Error("stage failed", "run_id", report.RunID, "stage", stage, "error", err)
		return err
	}
	p.logger.Info("stage complete", "run_id", report.RunID, "stage", stage, "duration", completed.Sub(start))
	return nil
}

// skipStage records a stage that was not attempted because a prerequisite
// already failed.
func (p *Pipeline) skipStage(ctx context.Context, report *domain.RunReport, stage, reason string) {
	now := domain.Now()
	result := domain.StageResult{
		Stage:       stage,
		Status:      domain.StageSkipped,
		StartedAt:   now,
		CompletedAt: now,
		Error:       reason,
	}
	report.Stages = append(report.Stages, result)

	p.metrics.StageOutcomes.WithLabelValues(stage, string(domain.StageSkipped)).Inc()
	p.publish(ctx, report, result)
	p.logger.Warn("stage skipped", "run_id", report.RunID, "stage", stage, "reason", reason)
}

// publish emits the stage result when a publisher is configured. Publishing
// is best effort; a broker outage must not fail the run.
func (p *Pipeline) publish(ctx context.Context, report *domain.RunReport, result domain.StageResult) {
	if p.publisher == nil {
		return
	}
	event := domain.PipelineEvent{
		RunID:       report.RunID,
		Trigger:     report.Trigger,
		StageResult: result,
	}
	if err := p.publisher.PublishStage(ctx, event); err != nil {
		p.logger.Warn("publish stage event failed", "stage", result.Stage, "error", err)
	}
}
