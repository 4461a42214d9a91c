package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/pipeline"
)

// PipelineRunner is the slice of pipeline behavior the API exposes.
type PipelineRunner interface {
	DownloadQPE(ctx context.Context, dates []string) (domain.FetchStats, error)
	DownloadForecast(ctx context.Context) (domain.FetchStats, error)
	MergeRealtime(ctx context.Context, dates []string) ([]domain.FolderResolution, error)
	MergePass2(ctx context.Context, dates []string) ([]domain.FolderResolution, error)
	MergeForecast(ctx context.Context, dates []string) ([]domain.FolderResolution, error)
	CombineAll(ctx context.Context) (primaryErr, secondaryErr error)
	UpdateControl() (domain.RunWindow, error)
	RunModel(ctx context.Context) (domain.ComputeSummary, error)
	TriggerFull(trigger string) (string, error)
	Running() bool
	LastReport() (domain.RunReport, bool)
	CheckReadiness(ctx context.Context) error
}

// FlowExtractor reads computed junction flows out of the results database.
type FlowExtractor interface {
	ExtractFlow(ctx context.Context, junction string) (domain.FlowResponse, error)
}

// Server exposes the pipeline trigger endpoints plus health, readiness, and
// metrics routes.
type Server struct {
	app         *fiber.App
	pipeline    PipelineRunner
	flow        FlowExtractor
	addr        string
	settleDelay time.Duration
	logger      *slog.Logger
}

// NewServer builds the Fiber app with all routes registered.
func NewServer(cfg *config.Config, p PipelineRunner, flow FlowExtractor, logger *slog.Logger) *Server {
	s := &Server{
		pipeline:    p,
		flow:        flow,
		addr:        cfg.Server.Addr,
		settleDelay: cfg.Pipeline.SettleDelay,
		logger:      logger,
	}

	// No write timeout: the stage endpoints block for the duration of the
	// external tools, which run for minutes.
	s.app = fiber.New(fiber.Config{
		AppName:               "hms-backend",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{AllowOrigins: cfg.Server.AllowOrigins}))
	s.app.Use(requestLogger(logger))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/readyz", s.handleReady)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.app.Post("/download_grib", s.handleDownloadGrib)
	s.app.Post("/download_hrrr_grib", s.handleDownloadHRRR)
	s.app.Post("/merge_grib", s.handleMergeGrib)
	s.app.Post("/merge_hrrr_grib", s.handleMergeHRRR)
	s.app.Post("/combine_dss", s.handleCombineDSS)
	s.app.Post("/update_control", s.handleUpdateControl)
	s.app.Post("/run_hms", s.handleRunHMS)
	s.app.Post("/get_dss_data", s.handleGetDSSData)
	s.app.Post("/run_full_pipeline", s.handleRunFullPipeline)
	s.app.Get("/pipeline_status", s.handleStatus)
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app, useful for testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// errorHandler maps handler errors onto the JSON error envelope. Domain
// sentinel categories choose the status code; anything unrecognized is an
// internal error.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(apiResponse{
			Status:    "error",
			Message:   fe.Message,
			ErrorType: "request_error",
		})
	}

	status, errType := classify(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	} else {
		s.logger.Warn("request rejected", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(apiResponse{
		Status:    "error",
		Message:   err.Error(),
		ErrorType: errType,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, "value_error"
	case errors.Is(err, domain.ErrInputNotFound), errors.Is(err, domain.ErrNoInputData):
		return fiber.StatusNotFound, "file_not_found"
	case errors.Is(err, pipeline.ErrRunInProgress):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrConfig):
		return fiber.StatusInternalServerError, "config_error"
	case errors.Is(err, domain.ErrProcessFailed):
		return fiber.StatusInternalServerError, "process_failure"
	default:
		return fiber.StatusInternalServerError, "server_error"
	}
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}
