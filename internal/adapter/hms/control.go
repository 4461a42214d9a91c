// Package hms drives the HEC-HMS model: it rewrites the control file's
// simulation window and executes compute runs through the program's
// scripting interface.
package hms

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
)

// ControlUpdater rewrites the simulation window lines of the model's control
// file in place, keeping a backup of the previous version.
type ControlUpdater struct {
	controlFile string
	lookback    int
	lookahead   int
	logger      *slog.Logger
}

// NewControlUpdater creates an updater for the configured control file.
func NewControlUpdater(cfg *config.Config, logger *slog.Logger) *ControlUpdater {
	return &ControlUpdater{
		controlFile: cfg.Paths.ControlFile,
		lookback:    cfg.HMS.LookbackHours,
		lookahead:   cfg.HMS.LookaheadHours,
		logger:      logger,
	}
}

// Update recomputes the window from the current time and patches the file.
func (u *ControlUpdater) Update() (domain.RunWindow, error) {
	w := domain.ComputeRunWindow(domain.Now(), u.lookback, u.lookahead)
	return w, u.UpdateWindow(w)
}

// UpdateWindow patches the control file to the given window. The previous
// content is kept next to it with a .bak suffix before anything is written.
func (u *ControlUpdater) UpdateWindow(w domain.RunWindow) error {
	original, err := os.ReadFile(u.controlFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("control file %s: %w", u.controlFile, domain.ErrConfig)
		}
		return fmt.Errorf("read control file: %w", err)
	}

	if err := os.WriteFile(u.controlFile+".bak", original, 0o644); err != nil {
		return fmt.Errorf("write control backup: %w", err)
	}

	patched := domain.PatchControlText(string(original), w)
	if err := os.WriteFile(u.controlFile, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("write control file: %w", err)
	}

	u.logger.Info("control window updated",
		"file", u.controlFile,
		"start", w.Start.Format("2006-01-02 15:04"),
		"end", w.End.Format("2006-01-02 15:04"))
	return nil
}
