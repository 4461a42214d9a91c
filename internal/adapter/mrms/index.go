package mrms

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
)

// RemoteFile is one downloadable grid discovered on an index page.
type RemoteFile struct {
	Name      string
	URL       string
	Timestamp time.Time
}

var (
	hrefRe      = regexp.MustCompile(`href="([^"]+\.grib2\.gz)"`)
	timestampRe = regexp.MustCompile(`_(\d{8})-(\d{6})\.grib2`)
)

// parseIndex extracts the grib2.gz links from a directory listing page and
// resolves them against the page URL. Links whose filename carries no
// parseable timestamp are dropped.
func parseIndex(body, pageURL string) []RemoteFile {
	base := strings.TrimSuffix(pageURL, "/")

	var files []RemoteFile
	for _, m := range hrefRe.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if strings.Contains(name, "/") {
			// Index pages link plain filenames; anything else is navigation.
			continue
		}
		ts, ok := timestampFromName(name)
		if !ok {
			continue
		}
		files = append(files, RemoteFile{
			Name:      name,
			URL:       base + "/" + name,
			Timestamp: ts,
		})
	}
	return files
}

// timestampFromName reads the valid time encoded in a product filename, e.g.
// MRMS_MultiSensor_QPE_01H_Pass2_00.00_20250527-140000.grib2.gz.
func timestampFromName(name string) (time.Time, bool) {
	m := timestampRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse("20060102-150405", m[1]+"-"+m[2])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// archiveIndexURL builds the archive listing URL for one run date, laid out
// as YYYY/MM/DD/mrms/ncep/<product>/ under the archive root.
func archiveIndexURL(base, product, date string) (string, error) {
	day, err := domain.ParseRunDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/mrms/ncep/%s/",
		strings.TrimSuffix(base, "/"),
		day.Format("2006/01/02"),
		product,
	), nil
}
