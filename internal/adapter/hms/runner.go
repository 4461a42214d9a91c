package hms

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

// computeTemplate is the script handed to the model program. It opens the
// project by name, computes every defined run, and saves results before
// exiting so the DSS output is flushed.
var computeTemplate = template.Must(template.New("compute").Funcs(template.FuncMap{
	"py": pyString,
}).Parse(`from hms.model.JythonHms import *
OpenProject({{py .ProjectName}}, {{py .ProjectDir}})
{{- range .Runs}}
ComputeRun({{py .}})
{{- end}}
SaveAllProjectComponents()
Exit(0)
`))

func pyString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// ModelRunner executes the model's compute runs and collects their logs.
type ModelRunner struct {
	modelDir   string
	hmsExe     string
	scratchDir string
	logSuffix  string

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewModelRunner creates a runner for the configured model directory.
func NewModelRunner(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *ModelRunner {
	return &ModelRunner{
		modelDir:   cfg.Paths.HMSDir,
		hmsExe:     cfg.Paths.HMSExe,
		scratchDir: cfg.Paths.ScratchDir,
		logSuffix:  cfg.HMS.LogSuffix,
		metrics:    metrics,
		logger:     logger,
	}
}

// RunModel computes every run defined in the model directory and returns a
// per-run summary. The error covers failures to launch or finish the
// program; individual run failures land in the summary instead.
func (r *ModelRunner) RunModel(ctx context.Context) (domain.ComputeSummary, error) {
	project, runFile, err := r.discoverProject()
	if err != nil {
		return domain.ComputeSummary{}, err
	}

	runs, err := parseRunNames(runFile)
	if err != nil {
		return domain.ComputeSummary{}, err
	}

	script, err := r.renderScript(project, runs)
	if err != nil {
		return domain.ComputeSummary{}, err
	}

	if err := r.execute(ctx, script); err != nil {
		return domain.ComputeSummary{}, err
	}

	return r.collectResults(runs), nil
}

// discoverProject locates the single .hms project file and .run definition
// in the model directory. Anything other than exactly one of each means the
// directory is not the deployed realtime model.
func (r *ModelRunner) discoverProject() (projectFile, runFile string, err error) {
	projects, err := filepath.Glob(filepath.Join(r.modelDir, "*.hms"))
	if err != nil {
		return "", "", fmt.Errorf("scan model dir: %w", err)
	}
	runFiles, err := filepath.Glob(filepath.Join(r.modelDir, "*.run"))
	if err != nil {
		return "", "", fmt.Errorf("scan model dir: %w", err)
	}

	if len(projects) != 1 {
		return "", "", fmt.Errorf("model dir %s: found %d project files, want exactly 1: %w",
			r.modelDir, len(projects), domain.ErrConfig)
	}
	if len(runFiles) != 1 {
		return "", "", fmt.Errorf("model dir %s: found %d run files, want exactly 1: %w",
			r.modelDir, len(runFiles), domain.ErrConfig)
	}
	return projects[0], runFiles[0], nil
}

// parseRunNames reads the run names out of a .run definition file. Each run
// block opens with a "Run: <name>" line.
func parseRunNames(runFile string) ([]string, error) {
	data, err := os.ReadFile(runFile)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}

	var runs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(trimmed, "Run:"); ok {
			runs = append(runs, strings.TrimSpace(name))
		}
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run file %s defines no runs: %w", runFile, domain.ErrConfig)
	}
	return runs, nil
}

func (r *ModelRunner) renderScript(projectFile string, runs []string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(projectFile), filepath.Ext(projectFile))
	var sb strings.Builder
	err := computeTemplate.Execute(&sb, struct {
		ProjectName string
		ProjectDir  string
		Runs        []string
	}{
		ProjectName: name,
		ProjectDir:  r.modelDir,
		Runs:        runs,
	})
	if err != nil {
		return "", fmt.Errorf("render compute script: %w", err)
	}
	return sb.String(), nil
}

// execute runs the model program with the generated script. The program
// resolves project-relative paths against its working directory, so the
// command runs from the model directory.
func (r *ModelRunner) execute(ctx context.Context, script string) error {
	if err := os.MkdirAll(r.scratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.scratchDir, "compute-*.script")
	if err != nil {
		return fmt.Errorf("create script file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(script); err != nil {
		tmp.Close()
		return fmt.Errorf("write script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close script: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.hmsExe, "-script", tmp.Name())
	cmd.Dir = r.modelDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	r.logger.Info("computing model runs", "model_dir", r.modelDir)
	start := time.Now()
	err = cmd.Run()
	r.metrics.SubprocessDuration.WithLabelValues("hms").Observe(time.Since(start).Seconds())

	if err != nil {
		tail := out.String()
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return fmt.Errorf("model run: %w: %s: %s", domain.ErrProcessFailed, err, strings.TrimSpace(tail))
	}
	return nil
}

// collectResults renames each run's log so the next compute cannot clobber
// it, then grades the run by scanning the log for model error lines.
func (r *ModelRunner) collectResults(runs []string) domain.ComputeSummary {
	summary := domain.ComputeSummary{Attempted: len(runs)}

	for _, run := range runs {
		logPath := filepath.Join(r.modelDir, run+".log")
		keptPath := filepath.Join(r.modelDir, run+r.logSuffix+".log")

		if err := os.Rename(logPath, keptPath); err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, domain.ComputeFailure{
				Name:    run,
				Message: fmt.Sprintf("log file missing: %v", err),
			})
			r.logger.Warn("run produced no log", "run", run, "error", err)
			continue
		}

		if msg, failed := firstErrorLine(keptPath); failed {
			summary.Failed++
			summary.Failures = append(summary.Failures, domain.ComputeFailure{Name: run, Message: msg})
			r.logger.Warn("run reported errors", "run", run, "error", msg)
			continue
		}
		summary.Succeeded++
	}
	return summary
}

// firstErrorLine reports the first ERROR line of a run log, if any. The
// program exits zero even when a run fails, so the log is the only signal.
func firstErrorLine(logPath string) (string, bool) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return fmt.Sprintf("read log: %v", err), true
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "ERROR") {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}
