package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecast pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	PipelineRuns    *prometheus.CounterVec // labels: trigger={api,scheduler}, outcome={success,failure}

	// Per-stage accounting.
	StageDuration *prometheus.HistogramVec // label: stage
	StageOutcomes *prometheus.CounterVec   // labels: stage, outcome={success,failure,skipped}

	// Grid download metrics.
	FilesDownloaded *prometheus.CounterVec // label: source={qpe_realtime,qpe_archive,hrrr}
	DownloadErrors  *prometheus.CounterVec // label: source

	// External tool invocations (geospatial importer, model engine).
	SubprocessDuration *prometheus.HistogramVec // label: tool={jython,hms}

	EventsPublished prometheus.Counter
	SchedulerRuns   prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hms_backend",
			Name:      "pipeline_running",
			Help:      "1 while a full pipeline run is in progress, 0 otherwise.",
		}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hms_backend",
			Name:      "pipeline_runs_total",
			Help:      "Completed full pipeline runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hms_backend",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each pipeline stage.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"stage"}),
		StageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hms_backend",
			Name:      "stage_outcomes_total",
			Help:      "Stage completions by stage name and outcome.",
		}, []string{"stage", "outcome"}),
		FilesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hms_backend",
			Name:      "files_downloaded_total",
			Help:      "Precipitation grid files fetched, by source.",
		}, []string{"source"}),
		DownloadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hms_backend",
			Name:      "download_errors_total",
			Help:      "Per-file download failures, by source.",
		}, []string{"source"}),
		SubprocessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hms_backend",
			Name:      "subprocess_duration_seconds",
			Help:      "Duration of external tool invocations.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"tool"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hms_backend",
			Name:      "events_published_total",
			Help:      "Stage events written to the broker.",
		}),
		SchedulerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hms_backend",
			Name:      "scheduler_runs_total",
			Help:      "Hourly scheduled pipeline triggers.",
		}),
	}

	prometheus.MustRegister(
		m.PipelineRunning,
		m.PipelineRuns,
		m.StageDuration,
		m.StageOutcomes,
		m.FilesDownloaded,
		m.DownloadErrors,
		m.SubprocessDuration,
		m.EventsPublished,
		m.SchedulerRuns,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PipelineRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "hms_backend", Name: "pipeline_running"}),
		PipelineRuns:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hms_backend", Name: "pipeline_runs_total"}, []string{"trigger", "outcome"}),
		StageDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "hms_backend", Name: "stage_duration_seconds"}, []string{"stage"}),
		StageOutcomes:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hms_backend", Name: "stage_outcomes_total"}, []string{"stage", "outcome"}),
		FilesDownloaded:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hms_backend", Name: "files_downloaded_total"}, []string{"source"}),
		DownloadErrors:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hms_backend", Name: "download_errors_total"}, []string{"source"}),
		SubprocessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "hms_backend", Name: "subprocess_duration_seconds"}, []string{"tool"}),
		EventsPublished:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hms_backend", Name: "events_published_total"}),
		SchedulerRuns:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hms_backend", Name: "scheduler_runs_total"}),
	}
}
