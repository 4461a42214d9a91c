// Package vortex drives the HEC Vortex geospatial toolkit through its Jython
// interpreter. Scripts are generated from templates, written to a scratch
// directory, and executed with the environment the toolkit's native GDAL and
// DSS libraries expect.
package vortex

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

// Runner executes generated Jython scripts against a Vortex installation.
type Runner struct {
	vortexHome  string
	jythonExe   string
	initialHeap string
	scratchDir  string

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRunner creates a script runner from the service configuration.
func NewRunner(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		vortexHome:  cfg.Paths.VortexHome,
		jythonExe:   cfg.Paths.JythonExe,
		initialHeap: cfg.Jython.InitialHeap,
		scratchDir:  cfg.Paths.ScratchDir,
		metrics:     metrics,
		logger:      logger,
	}
}

// RunScript writes the script to the scratch directory and executes it with
// the given JVM heap ceiling. The grid merges are memory-hungry, so the
// ceiling comes from the caller rather than one shared setting. Returns the
// combined stdout and stderr of the interpreter.
func (r *Runner) RunScript(ctx context.Context, script, maxHeap string) (string, error) {
	if err := r.checkInstall(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.scratchDir, "vortex-*.py")
	if err != nil {
		return "", fmt.Errorf("create script file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(script); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close script: %w", err)
	}

	args := []string{
		"-J-Xms" + r.initialHeap,
		"-J-Xmx" + maxHeap,
		"-J-Djava.library.path=" + libraryPath(r.vortexHome),
		// GDAL bindings misbehave under the default parallel ForkJoinPool.
		"-J-Djava.util.concurrent.ForkJoinPool.common.parallelism=1",
		tmp.Name(),
	}

	cmd := exec.CommandContext(ctx, r.jythonExe, args...)
	cmd.Env = r.environment()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	r.logger.Debug("running jython script", "script", tmp.Name(), "max_heap", maxHeap)
	start := time.Now()
	err = cmd.Run()
	r.metrics.SubprocessDuration.WithLabelValues("jython").Observe(time.Since(start).Seconds())

	if err != nil {
		return out.String(), fmt.Errorf("jython: %w: %s", err, outputTail(out.String()))
	}
	return out.String(), nil
}

// checkInstall verifies the toolkit paths before anything is written or
// spawned. A missing installation is a deployment problem, not a data one.
func (r *Runner) checkInstall() error {
	if info, err := os.Stat(r.vortexHome); err != nil || !info.IsDir() {
		return fmt.Errorf("vortex home %s: %w", r.vortexHome, domain.ErrConfig)
	}
	if _, err := os.Stat(r.jythonExe); err != nil {
		return fmt.Errorf("jython executable %s: %w", r.jythonExe, domain.ErrConfig)
	}
	return nil
}

// environment builds the process environment for the interpreter: the
// toolkit's jars on the classpath and its bundled GDAL libraries and data
// directories resolvable by the native loaders.
func (r *Runner) environment() []string {
	home := r.vortexHome
	gdal := filepath.Join(home, "bin", "gdal")
	sep := string(os.PathListSeparator)

	return append(os.Environ(),
		"VORTEX_HOME="+home,
		"CLASSPATH="+filepath.Join(home, "lib", "*")+sep+filepath.Join(home, "vortex.jar"),
		"PATH="+filepath.Join(home, "bin")+sep+os.Getenv("PATH"),
		"LD_LIBRARY_PATH="+libraryPath(home),
		"JAVA_LIBRARY_PATH="+libraryPath(home),
		"GDAL_DRIVER_PATH="+filepath.Join(gdal, "gdalplugins"),
		"GDAL_DATA="+filepath.Join(gdal, "gdal-data"),
		"PROJ_LIB="+filepath.Join(gdal, "projlib"),
	)
}

func libraryPath(home string) string {
	return filepath.Join(home, "bin") + string(os.PathListSeparator) + filepath.Join(home, "bin", "gdal")
}

// outputTail trims interpreter output to the last few lines for error
// messages; full output is available to callers that want it.
func outputTail(out string) string {
	out = strings.TrimSpace(out)
	lines := strings.Split(out, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
