package vortex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
)

// qpeFilter keeps only the hourly Pass2 product; the realtime folders also
// accumulate other MRMS products that must not enter the rain grids.
const qpeFilter = "01H_Pass2"

// Importer merges grib folders into DSS grid files via batch-import scripts.
type Importer struct {
	runner *Runner
	cfg    config.ImportConfig
	shp    string
	dssDir string

	qpeHeap  string
	hrrrHeap string

	logger *slog.Logger
}

// NewImporter creates an Importer sharing the given script runner.
func NewImporter(runner *Runner, cfg *config.Config, logger *slog.Logger) *Importer {
	return &Importer{
		runner:   runner,
		cfg:      cfg.Import,
		shp:      cfg.Paths.Shapefile,
		dssDir:   cfg.Paths.DSSDir,
		qpeHeap:  cfg.Jython.MaxHeap,
		hrrrHeap: cfg.Jython.HRRRMaxHeap,
		logger:   logger,
	}
}

// DSSPath resolves a destination file name against the DSS directory.
// Absolute names pass through untouched.
func (i *Importer) DSSPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(i.dssDir, name)
}

// ImportQPE merges the hourly Pass2 grids from the given folders into the
// destination DSS file.
func (i *Importer) ImportQPE(ctx context.Context, folders []string, destination string) error {
	if err := i.checkShapefile(); err != nil {
		return err
	}
	files, err := collectGribFiles(folders, qpeFilter)
	if err != nil {
		return err
	}
	return i.runImport(ctx, files, destination, i.qpeHeap, true)
}

// ImportHRRR merges forecast grids from the given folders into the
// destination DSS file. Forecast grids are larger, so the import runs with
// the bigger heap, and their records carry interval metadata so no dataType
// override is written.
func (i *Importer) ImportHRRR(ctx context.Context, folders []string, destination string) error {
	if err := i.checkShapefile(); err != nil {
		return err
	}
	files, err := collectGribFiles(folders, "")
	if err != nil {
		return err
	}
	return i.runImport(ctx, files, destination, i.hrrrHeap, false)
}

// checkShapefile verifies the clipping boundary exists before any files are
// enumerated. The merge would otherwise fail deep inside the interpreter with
// a GDAL stack trace instead of a usable message.
func (i *Importer) checkShapefile() error {
	if _, err := os.Stat(i.shp); err != nil {
		return fmt.Errorf("boundary shapefile %s: %w", i.shp, domain.ErrConfig)
	}
	return nil
}

func (i *Importer) runImport(ctx context.Context, files []string, destination, maxHeap string, withDataType bool) error {
	req := ImportRequest{
		Files:            files,
		Variables:        i.cfg.Variables,
		Shapefile:        i.shp,
		TargetCellSize:   i.cfg.TargetCellSize,
		TargetWkt:        i.cfg.TargetWkt,
		ResamplingMethod: i.cfg.ResamplingMethod,
		Destination:      i.DSSPath(destination),
		PartA:            i.cfg.PartA,
		PartB:            i.cfg.PartB,
		PartF:            i.cfg.PartF,
	}
	if withDataType {
		req.DataType = i.cfg.DataType
	}

	script, err := renderImportScript(req)
	if err != nil {
		return err
	}

	i.logger.Info("importing grids", "files", len(files), "destination", req.Destination)
	if _, err := i.runner.RunScript(ctx, script, maxHeap); err != nil {
		return fmt.Errorf("import into %s: %w", req.Destination, err)
	}
	return nil
}

// collectGribFiles gathers grib files from the folders, newest-folder last,
// sorted by name within each folder so records import in time order. An
// empty result is an error: invoking the interpreter over nothing would
// silently produce an empty grid file.
func collectGribFiles(folders []string, nameFilter string) ([]string, error) {
	var files []string
	for _, folder := range folders {
		entries, err := os.ReadDir(folder)
		if err != nil {
			return nil, fmt.Errorf("read folder %s: %w", folder, err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !isGribFile(e.Name()) {
				continue
			}
			if nameFilter != "" && !strings.Contains(e.Name(), nameFilter) {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(folder, n))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no grib files in %v: %w", folders, domain.ErrNoInputData)
	}
	return files, nil
}

func isGribFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".grib2", ".grb2":
		return true
	default:
		return false
	}
}
