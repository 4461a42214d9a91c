// Command hmsrun runs pipeline stages once from the command line, against the
// same configuration the service uses. Dates are positional YYYYMMDD
// arguments; stages that take no dates ignore them.
//
// Usage:
//
//	go run ./cmd/hmsrun -config config.yaml -stage merge 20250526 20250527
//	go run ./cmd/hmsrun -config config.yaml -stage full
//	go run ./cmd/hmsrun -config config.yaml -stage extract -junction Outlet
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/hms"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/hrrr"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/mrms"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/vortex"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/pipeline"
)

const stageList = "download, forecast, merge, merge-forecast, combine, control, compute, extract, full"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	stage := flag.String("stage", "full", "stage to run: "+stageList)
	junction := flag.String("junction", "", "junction name (required for -stage extract)")
	flag.Parse()

	// .env is optional; deployments usually set real environment variables.
	_ = godotenv.Load()

	os.Exit(run(*configPath, *stage, *junction, flag.Args()))
}

func run(configPath, stage, junction string, dates []string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	logger := observability.NewLogger(cfg.Log)
	metrics := observability.NewMetrics()

	runner := vortex.NewRunner(cfg, metrics, logger)
	p := pipeline.New(cfg,
		mrms.NewClient(cfg, metrics, logger),
		hrrr.NewClient(cfg, metrics, logger),
		vortex.NewImporter(runner, cfg, logger),
		vortex.NewCombiner(runner, cfg, logger),
		hms.NewControlUpdater(cfg, logger),
		hms.NewModelRunner(cfg, metrics, logger),
		nil, // one-shot runs do not publish stage events
		logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch stage {
	case "download":
		stats, err := p.DownloadQPE(ctx, dates)
		if err != nil {
			fmt.Fprintf(os.Stderr, "download failed: %v\n", err)
			return 1
		}
		fmt.Printf("downloaded %d, skipped %d, missing %d, failed %d\n",
			stats.Downloaded, stats.Skipped, stats.Missing, stats.Failed)

	case "forecast":
		stats, err := p.DownloadForecast(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "forecast download failed: %v\n", err)
			return 1
		}
		fmt.Printf("downloaded %d, skipped %d, missing %d, failed %d\n",
			stats.Downloaded, stats.Skipped, stats.Missing, stats.Failed)

	case "merge":
		results, err := p.MergeRealtime(ctx, dates)
		if err != nil {
			fmt.Fprintf(os.Stderr, "realtime import failed: %v\n", err)
			return 1
		}
		warnMisses(results)
		settle(ctx, cfg.Pipeline.SettleDelay)
		if _, err := p.MergePass2(ctx, dates); err != nil {
			fmt.Fprintf(os.Stderr, "pass-2 import failed: %v\n", err)
			return 1
		}
		fmt.Println("realtime and pass-2 series imported")

	case "merge-forecast":
		results, err := p.MergeForecast(ctx, dates)
		if err != nil {
			fmt.Fprintf(os.Stderr, "forecast import failed: %v\n", err)
			return 1
		}
		warnMisses(results)
		fmt.Println("forecast series imported")

	case "combine":
		primaryErr, secondaryErr := p.CombineAll(ctx)
		if secondaryErr != nil {
			fmt.Fprintf(os.Stderr, "forecast combination failed: %v\n", secondaryErr)
		}
		if primaryErr != nil {
			fmt.Fprintf(os.Stderr, "observed combination failed: %v\n", primaryErr)
			return 1
		}
		fmt.Println("series combined")

	case "control":
		window, err := p.UpdateControl()
		if err != nil {
			fmt.Fprintf(os.Stderr, "control update failed: %v\n", err)
			return 1
		}
		fmt.Printf("control window set to %s\n", window)

	case "compute":
		summary, err := p.RunModel(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "model run failed: %v\n", err)
			return 1
		}
		fmt.Printf("%d of %d simulation runs computed\n", summary.Succeeded, summary.Attempted)
		for _, f := range summary.Failures {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Name, f.Message)
		}
		if !summary.AllSucceeded() {
			return 1
		}

	case "extract":
		if junction == "" {
			fmt.Fprintln(os.Stderr, "-stage extract requires -junction")
			return 1
		}
		extractor := vortex.NewExtractor(runner, cfg, cfg.Paths.ResultsDSS, cfg.HMS.RunName, logger)
		flow, err := extractor.ExtractFlow(ctx, junction)
		if err != nil {
			fmt.Fprintf(os.Stderr, "flow extraction failed: %v\n", err)
			return 1
		}
		out, err := json.MarshalIndent(flow, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode flow series: %v\n", err)
			return 1
		}
		fmt.Println(string(out))

	case "full":
		runCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
		defer cancel()
		report, err := p.RunFull(runCtx, pipeline.TriggerCLI)
		printReport(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipeline run failed: %v\n", err)
			return 1
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown stage %q (want one of: %s)\n", stage, stageList)
		return 1
	}
	return 0
}

func warnMisses(results []domain.FolderResolution) {
	for _, date := range domain.UnresolvedDates(results) {
		fmt.Fprintf(os.Stderr, "warning: no input folder for %s\n", date)
	}
}

func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func printReport(report domain.RunReport) {
	fmt.Printf("run %s (%s)\n", report.RunID, report.CompletedAt.Sub(report.StartedAt).Round(time.Second))
	for _, st := range report.Stages {
		status := "\033[32mok\033[0m"
		switch st.Status {
		case domain.StageFailed:
			status = "\033[31mfailed\033[0m"
		case domain.StageSkipped:
			status = "\033[33mskipped\033[0m"
		}
		fmt.Printf("  %-18s %-10s %s\n", st.Stage, status,
			st.CompletedAt.Sub(st.StartedAt).Round(time.Millisecond))
		if st.Error != "" {
			fmt.Printf("      %s\n", st.Error)
		}
	}
	if report.Compute != nil {
		fmt.Printf("compute: %d of %d runs succeeded\n", report.Compute.Succeeded, report.Compute.Attempted)
	}
}
