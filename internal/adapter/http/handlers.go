package http

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/pipeline"
)

var validate = validator.New()

// apiResponse is the JSON envelope shared by every trigger endpoint.
type apiResponse struct {
	Status         string             `json:"status"`
	Message        string             `json:"message"`
	ErrorType      string             `json:"error_type,omitempty"`
	RunID          string             `json:"run_id,omitempty"`
	Stats          *domain.FetchStats `json:"stats,omitempty"`
	FailureDetails map[string]any     `json:"failure_details,omitempty"`
}

// dateRequest carries the optional run dates for download and merge triggers.
// Empty means "the current cycle window".
type dateRequest struct {
	Dates []string `json:"dates" validate:"omitempty,dive,len=8,numeric"`
}

type junctionRequest struct {
	Junction string `json:"junction" validate:"required,max=64"`
}

// parseBody decodes the JSON body into out and validates it. An empty body is
// fine; required fields then fail validation with a value error.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(out); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

func (s *Server) handleReady(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := s.pipeline.CheckReadiness(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *Server) handleDownloadGrib(c *fiber.Ctx) error {
	var req dateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	stats, err := s.pipeline.DownloadQPE(c.UserContext(), req.Dates)
	if err != nil {
		return err
	}
	return c.JSON(apiResponse{
		Status:  "success",
		Message: fetchMessage(stats),
		Stats:   &stats,
	})
}

func (s *Server) handleDownloadHRRR(c *fiber.Ctx) error {
	stats, err := s.pipeline.DownloadForecast(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(apiResponse{
		Status:  "success",
		Message: fetchMessage(stats),
		Stats:   &stats,
	})
}

// handleMergeGrib imports the observed grids into the realtime series and
// then the pass-2 series. A pass-2 failure after a successful realtime import
// degrades the response rather than failing it; unresolved run dates are
// reported the same way.
func (s *Server) handleMergeGrib(c *fiber.Ctx) error {
	var req dateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	results, err := s.pipeline.MergeRealtime(ctx, req.Dates)
	if err != nil {
		return err
	}

	details := map[string]any{}
	if misses := domain.UnresolvedDates(results); len(misses) > 0 {
		details["unresolved_dates"] = misses
	}

	s.settle(ctx)

	if _, err := s.pipeline.MergePass2(ctx, req.Dates); err != nil {
		details["pass2"] = err.Error()
		return c.Status(fiber.StatusMultiStatus).JSON(apiResponse{
			Status:         "partial_failure",
			Message:        "realtime series imported, pass-2 import failed",
			FailureDetails: details,
		})
	}

	if len(details) > 0 {
		return c.Status(fiber.StatusMultiStatus).JSON(apiResponse{
			Status:         "partial_success",
			Message:        "series imported, some run dates had no input folder",
			FailureDetails: details,
		})
	}
	return c.JSON(apiResponse{
		Status:  "success",
		Message: "realtime and pass-2 series imported",
	})
}

func (s *Server) handleMergeHRRR(c *fiber.Ctx) error {
	var req dateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	results, err := s.pipeline.MergeForecast(c.UserContext(), req.Dates)
	if err != nil {
		return err
	}

	if misses := domain.UnresolvedDates(results); len(misses) > 0 {
		return c.Status(fiber.StatusMultiStatus).JSON(apiResponse{
			Status:         "partial_success",
			Message:        "forecast series imported, some run dates had no input folder",
			FailureDetails: map[string]any{"unresolved_dates": misses},
		})
	}
	return c.JSON(apiResponse{
		Status:  "success",
		Message: "forecast series imported",
	})
}

// handleCombineDSS runs both combination passes and maps the outcome pair
// onto the response envelope. The observed combination is the one the model
// cannot run without; a forecast-side failure only degrades the response.
func (s *Server) handleCombineDSS(c *fiber.Ctx) error {
	primaryErr, secondaryErr := s.pipeline.CombineAll(c.UserContext())

	switch {
	case primaryErr == nil && secondaryErr == nil:
		return c.JSON(apiResponse{
			Status:  "success",
			Message: "observed and forecast series combined",
		})
	case primaryErr == nil:
		return c.JSON(apiResponse{
			Status:         "partial_success",
			Message:        "observed series combined, forecast combination failed",
			FailureDetails: map[string]any{"secondary": secondaryErr.Error()},
		})
	case secondaryErr == nil:
		return c.Status(fiber.StatusInternalServerError).JSON(apiResponse{
			Status:    "error",
			Message:   primaryErr.Error(),
			ErrorType: "combine_failure_main",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(apiResponse{
			Status:    "error",
			Message:   primaryErr.Error() + "; " + secondaryErr.Error(),
			ErrorType: "combine_failure_all",
		})
	}
}

func (s *Server) handleUpdateControl(c *fiber.Ctx) error {
	window, err := s.pipeline.UpdateControl()
	if err != nil {
		return err
	}
	return c.JSON(apiResponse{
		Status:  "success",
		Message: fmt.Sprintf("control window set to %s", window),
	})
}

func (s *Server) handleRunHMS(c *fiber.Ctx) error {
	summary, err := s.pipeline.RunModel(c.UserContext())
	if err != nil {
		return err
	}

	if summary.AllSucceeded() {
		return c.JSON(apiResponse{
			Status:  "success",
			Message: fmt.Sprintf("%d of %d simulation runs computed", summary.Succeeded, summary.Attempted),
		})
	}

	details := map[string]any{"runs": summary.Failures}
	if summary.Succeeded == 0 {
		return c.Status(fiber.StatusInternalServerError).JSON(apiResponse{
			Status:         "error",
			Message:        "all simulation runs failed",
			ErrorType:      "process_failure",
			FailureDetails: details,
		})
	}
	return c.Status(fiber.StatusMultiStatus).JSON(apiResponse{
		Status:         "partial_failure",
		Message:        fmt.Sprintf("%d of %d simulation runs computed", summary.Succeeded, summary.Attempted),
		FailureDetails: details,
	})
}

func (s *Server) handleGetDSSData(c *fiber.Ctx) error {
	var req junctionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	series, err := s.flow.ExtractFlow(c.UserContext(), req.Junction)
	if err != nil {
		return err
	}
	return c.JSON(series)
}

func (s *Server) handleRunFullPipeline(c *fiber.Ctx) error {
	runID, err := s.pipeline.TriggerFull(pipeline.TriggerAPI)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(apiResponse{
		Status:  "accepted",
		Message: "pipeline run started",
		RunID:   runID,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := fiber.Map{"running": s.pipeline.Running()}
	if report, ok := s.pipeline.LastReport(); ok {
		resp["last_run"] = report
	}
	return c.JSON(resp)
}

// settle waits out the configured pause between sibling series imports.
func (s *Server) settle(ctx context.Context) {
	if s.settleDelay <= 0 {
		return
	}
	timer := time.NewTimer(s.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func fetchMessage(stats domain.FetchStats) string {
	msg := fmt.Sprintf("downloaded %d files, %d already present", stats.Downloaded, stats.Skipped)
	if stats.Missing > 0 {
		msg += fmt.Sprintf(", %d not yet published", stats.Missing)
	}
	if stats.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", stats.Failed)
	}
	return msg
}
