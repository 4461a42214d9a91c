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

// Combiner merges DSS files record by record. The model wants one continuous
// rain grid, so the observed and forecast imports get folded together before
// a run.
type Combiner struct {
	runner *Runner
	heap   string
	logger *slog.Logger
}

// NewCombiner creates a Combiner sharing the given script runner.
func NewCombiner(runner *Runner, cfg *config.Config, logger *slog.Logger) *Combiner {
	return &Combiner{
		runner: runner,
		heap:   cfg.Jython.MaxHeap,
		logger: logger,
	}
}

// Combine copies every record from the sources into destination, in order.
// Missing source files fail up front; the DSS library would otherwise create
// them empty and report success. The script prints a completion marker, and
// a clean exit without it is treated as a failure because the DSS native
// layer is known to swallow errors.
func (c *Combiner) Combine(ctx context.Context, sources []string, destination string) error {
	for _, src := range sources {
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("combine source %s: %w", src, domain.ErrInputNotFound)
		}
	}

	script, err := renderCombineScript(CombineRequest{Sources: sources, Destination: destination})
	if err != nil {
		return err
	}

	c.logger.Info("combining series files", "sources", sources, "destination", destination)
	out, err := c.runner.RunScript(ctx, script, c.heap)
	if err != nil {
		return fmt.Errorf("combine into %s: %w", destination, err)
	}
	if !strings.Contains(out, combineDoneMarker) {
		return fmt.Errorf("combine into %s: %w: completion marker missing", destination, domain.ErrProcessFailed)
	}
	return nil
}
