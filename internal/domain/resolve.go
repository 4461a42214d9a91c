package domain

import (
	"fmt"
	"io/fs"
	"log/slog"
)

// FolderResolution records where one requested run date actually resolved.
type FolderResolution struct {
	Date     string // requested YYYYMMDD
	Folder   string // folder name that exists, "" when nothing resolved
	FellBack bool   // true when Folder is Date+1 rather than Date
}

// Resolved reports whether the date found a folder.
func (r FolderResolution) Resolved() bool { return r.Folder != "" }

// ResolveInputFolders maps requested run dates to existing dated folders under
// fsys (the grib root, typically os.DirFS of the configured base directory).
//
// All dates are validated before any filesystem access; one bad date aborts
// the whole batch. A date whose folder is missing is probed exactly one day
// forward, because the upstream producer sometimes files a batch under the
// next calendar day. A date that resolves neither way is logged and skipped.
// Only an entirely empty result is an error.
//
// Results keep input order. Duplicate requests are not de-duplicated here.
func ResolveInputFolders(fsys fs.FS, dates []string, logger *slog.Logger) ([]FolderResolution, error) {
	if err := ValidateRunDates(dates); err != nil {
		return nil, err
	}

	results := make([]FolderResolution, 0, len(dates))
	resolved := 0
	for _, date := range dates {
		res := FolderResolution{Date: date}
		switch {
		case dirExists(fsys, date):
			res.Folder = date
		case dirExists(fsys, NextDay(date)):
			res.Folder = NextDay(date)
			res.FellBack = true
			logger.Info("run date folder missing, using next day",
				"date", date,
				"folder", res.Folder,
			)
		default:
			logger.Warn("no folder for run date after one-day fallback", "date", date)
		}
		if res.Resolved() {
			resolved++
		}
		results = append(results, res)
	}

	if resolved == 0 {
		return nil, fmt.Errorf("%w for dates %v", ErrNoInputData, dates)
	}
	return results, nil
}

// ResolvedFolders extracts the folder names that resolved, in order.
func ResolvedFolders(results []FolderResolution) []string {
	var folders []string
	for _, r := range results {
		if r.Resolved() {
			folders = append(folders, r.Folder)
		}
	}
	return folders
}

// UnresolvedDates extracts the requested dates that found no folder.
func UnresolvedDates(results []FolderResolution) []string {
	var dates []string
	for _, r := range results {
		if !r.Resolved() {
			dates = append(dates, r.Date)
		}
	}
	return dates
}

func dirExists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}
