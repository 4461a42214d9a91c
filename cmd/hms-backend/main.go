package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/hms"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/hrrr"
	httpadapter "github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/http"
	kafkaadapter "github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/kafka"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/mrms"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/vortex"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/pipeline"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; deployments usually set real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Log)
	metrics := observability.NewMetrics()

	qpe := mrms.NewClient(cfg, metrics, logger)
	forecast := hrrr.NewClient(cfg, metrics, logger)

	runner := vortex.NewRunner(cfg, metrics, logger)
	importer := vortex.NewImporter(runner, cfg, logger)
	combiner := vortex.NewCombiner(runner, cfg, logger)

	// Flow queries spawn an interpreter per call; the cache absorbs repeated
	// dashboard polls between model runs.
	var extractor httpadapter.FlowExtractor = vortex.NewExtractor(runner, cfg, cfg.Paths.ResultsDSS, cfg.HMS.RunName, logger)
	if cfg.Server.FlowCacheSize > 0 {
		extractor = vortex.NewCachedExtractor(extractor, cfg.Server.FlowCacheSize, cfg.Server.FlowCacheTTL)
		logger.Info("flow query cache enabled", "size", cfg.Server.FlowCacheSize, "ttl", cfg.Server.FlowCacheTTL)
	}

	control := hms.NewControlUpdater(cfg, logger)
	model := hms.NewModelRunner(cfg, metrics, logger)

	// Stage event publishing is feature-flagged on broker configuration.
	var publisher pipeline.EventPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, metrics, logger)
		publisher = kafkaPublisher
		logger.Info("stage event publishing enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	} else {
		logger.Info("stage event publishing disabled")
	}

	p := pipeline.New(cfg, qpe, forecast, importer, combiner, control, model, publisher, logger, metrics)

	srv := httpadapter.NewServer(cfg, p, extractor, logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg, p, logger, metrics)
		if err := sched.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("hourly scheduler disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
