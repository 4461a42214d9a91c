package vortex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
)

// Extractor reads computed junction flows out of the model's results file.
type Extractor struct {
	runner    *Runner
	dssFile   string
	runName   string
	outputCSV string
	heap      string
	logger    *slog.Logger
}

// NewExtractor creates an Extractor reading from the model's results DSS.
func NewExtractor(runner *Runner, cfg *config.Config, dssFile, runName string, logger *slog.Logger) *Extractor {
	return &Extractor{
		runner:    runner,
		dssFile:   dssFile,
		runName:   runName,
		outputCSV: cfg.Paths.FlowOutputCSV,
		heap:      cfg.Jython.InitialHeap,
		logger:    logger,
	}
}

// ExtractFlow pulls the named junction's flow series into a CSV and parses
// it. The results file must exist; a model run has to have completed first.
func (e *Extractor) ExtractFlow(ctx context.Context, junction string) (domain.FlowResponse, error) {
	if junction == "" {
		return domain.FlowResponse{}, fmt.Errorf("junction name is required: %w", domain.ErrInvalidInput)
	}
	if _, err := os.Stat(e.dssFile); err != nil {
		return domain.FlowResponse{}, fmt.Errorf("results file %s: %w", e.dssFile, domain.ErrInputNotFound)
	}

	script, err := renderExtractScript(ExtractRequest{
		DSSFile:   e.dssFile,
		Junction:  junction,
		RunName:   e.runName,
		OutputCSV: e.outputCSV,
	})
	if err != nil {
		return domain.FlowResponse{}, err
	}

	out, err := e.runner.RunScript(ctx, script, e.heap)
	if err != nil {
		return domain.FlowResponse{}, fmt.Errorf("extract %s flow: %w", junction, err)
	}
	if !strings.Contains(out, extractDoneMarker) {
		return domain.FlowResponse{}, fmt.Errorf("extract %s flow: %w: completion marker missing", junction, domain.ErrProcessFailed)
	}

	data, err := os.ReadFile(e.outputCSV)
	if err != nil {
		return domain.FlowResponse{}, fmt.Errorf("read flow csv: %w", err)
	}
	return domain.ParseFlowCSV(data, junction, e.logger), nil
}
